package grid

import (
	"qctrack/internal/speceval"
	"qctrack/pkg/domain"
)

// Reconcile merges the required specifications for a lot's product(s) with
// the results recorded against the lot into one ordered row list.
//
// Specifications are de-duplicated by test name (first occurrence wins,
// covering multi-product lots), each matched to at most one result by exact
// case-sensitive test name. Unmatched specifications become placeholder
// rows; unmatched results become additional rows ordered after all
// specification-derived rows, in store order.
//
// The function is deterministic and side-effect-free: re-running it on
// unchanged inputs yields an identical list, so rendering passes can repeat
// it without disturbing an open edit session.
func Reconcile(specs []domain.TestSpecification, results []domain.TestResult) []Row {
	canonical := make([]domain.TestSpecification, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, dup := seen[spec.TestName]; dup {
			continue
		}
		seen[spec.TestName] = struct{}{}
		canonical = append(canonical, spec)
	}

	claimed := make(map[string]struct{}, len(results))
	rows := make([]Row, 0, len(canonical)+len(results))

	for _, spec := range canonical {
		matched := false
		for _, res := range results {
			if res.TestName != spec.TestName {
				continue
			}
			if _, taken := claimed[res.ID]; taken {
				continue
			}
			claimed[res.ID] = struct{}{}
			rows = append(rows, resultRow(res, &spec))
			matched = true
			break
		}
		if matched {
			continue
		}
		parsed := speceval.Parse(spec.Specification, spec.Unit)
		rows = append(rows, Row{
			ID:            PlaceholderRowID(spec.ID),
			TestName:      spec.TestName,
			Category:      spec.Category,
			Unit:          spec.Unit,
			Specification: spec.Specification,
			Method:        spec.DefaultMethod,
			Required:      spec.Required,
			Spec:          parsed,
			Verdict:       speceval.VerdictPending,
		})
	}

	for _, res := range results {
		if _, taken := claimed[res.ID]; taken {
			continue
		}
		row := resultRow(res, nil)
		row.Additional = true
		rows = append(rows, row)
	}

	return rows
}

func resultRow(res domain.TestResult, spec *domain.TestSpecification) Row {
	parsed := speceval.Parse(res.Specification, res.Unit)
	row := Row{
		ID:            PersistedRowID(res.ID),
		TestName:      res.TestName,
		Value:         res.Value,
		Unit:          res.Unit,
		Specification: res.Specification,
		Method:        res.Method,
		Notes:         res.Notes,
		Status:        res.Status,
		Spec:          parsed,
		Verdict:       parsed.Evaluate(res.Value),
	}
	if res.DocumentKey != nil {
		row.DocumentKey = *res.DocumentKey
	}
	if spec != nil {
		row.Category = spec.Category
		row.Required = spec.Required
		if row.Method == "" {
			row.Method = spec.DefaultMethod
		}
	}
	return row
}
