package core

import "qctrack/pkg/domain"

type (
	EntityType         = domain.EntityType
	LotStatus          = domain.LotStatus
	ResultStatus       = domain.ResultStatus
	Severity           = domain.Severity
	Base               = domain.Base
	Product            = domain.Product
	Lot                = domain.Lot
	TestSpecification  = domain.TestSpecification
	TestResult         = domain.TestResult
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleView           = domain.RuleView
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityProduct           = domain.EntityProduct
	EntityLot               = domain.EntityLot
	EntityTestSpecification = domain.EntityTestSpecification
	EntityTestResult        = domain.EntityTestResult
)

const (
	LotStatusReceived  = domain.LotStatusReceived
	LotStatusInTesting = domain.LotStatusInTesting
	LotStatusInReview  = domain.LotStatusInReview
	LotStatusApproved  = domain.LotStatusApproved
	LotStatusRejected  = domain.LotStatusRejected
)

const (
	ResultStatusDraft    = domain.ResultStatusDraft
	ResultStatusApproved = domain.ResultStatusApproved
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
