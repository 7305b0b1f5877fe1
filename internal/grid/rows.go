// Package grid implements the specification-driven result grid: reconciling
// required test specifications with recorded results into a stable row
// collection, the single-cell edit session with its navigation state
// machine, and the save coordinator that turns committed edits into
// create-or-update operations.
package grid

import (
	"encoding/json"
	"fmt"

	"qctrack/internal/speceval"
	"qctrack/pkg/domain"
)

// RowIDKind discriminates the two row identity variants.
type RowIDKind string

// Row identity variants. A placeholder row represents a required test with
// no recorded result yet; it adopts persisted identity exactly once, at its
// first successful save.
const (
	RowIDPlaceholder RowIDKind = "placeholder"
	RowIDPersisted   RowIDKind = "persisted"
)

// RowID is the tagged row identity carried through the row model. The two
// variants are kept explicit instead of overloading one field's sign.
type RowID struct {
	kind RowIDKind
	id   string
}

// PlaceholderRowID derives a placeholder identity from the owning
// specification. Derivation is deterministic: the same specification always
// yields the same placeholder across reconciliation passes.
func PlaceholderRowID(specID string) RowID {
	return RowID{kind: RowIDPlaceholder, id: specID}
}

// PersistedRowID wraps a stored result identity.
func PersistedRowID(resultID string) RowID {
	return RowID{kind: RowIDPersisted, id: resultID}
}

// Kind returns the identity variant.
func (r RowID) Kind() RowIDKind { return r.kind }

// IsPlaceholder reports whether the row has not been persisted yet.
func (r RowID) IsPlaceholder() bool { return r.kind == RowIDPlaceholder }

// IsZero reports whether the identity is unset.
func (r RowID) IsZero() bool { return r.kind == "" && r.id == "" }

// SpecID returns the owning specification id for placeholder identities.
func (r RowID) SpecID() (string, bool) {
	if r.kind != RowIDPlaceholder {
		return "", false
	}
	return r.id, true
}

// ResultID returns the stored result id for persisted identities.
func (r RowID) ResultID() (string, bool) {
	if r.kind != RowIDPersisted {
		return "", false
	}
	return r.id, true
}

func (r RowID) String() string {
	if r.IsZero() {
		return "rowid()"
	}
	return fmt.Sprintf("rowid(%s:%s)", r.kind, r.id)
}

type rowIDJSON struct {
	Kind RowIDKind `json:"kind"`
	ID   string    `json:"id"`
}

// MarshalJSON encodes the tagged identity for HTTP payloads.
func (r RowID) MarshalJSON() ([]byte, error) {
	return json.Marshal(rowIDJSON{Kind: r.kind, ID: r.id})
}

// UnmarshalJSON decodes the tagged identity.
func (r *RowID) UnmarshalJSON(data []byte) error {
	var j rowIDJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	switch j.Kind {
	case RowIDPlaceholder, RowIDPersisted:
	default:
		return fmt.Errorf("unknown row id kind %q", j.Kind)
	}
	*r = RowID{kind: j.Kind, id: j.ID}
	return nil
}

// Column identifies a cell within a row. Result and notes are editable and
// participate in cross-row navigation; method is read-only and reachable
// only by row-local column commands.
type Column string

// Grid columns in fixed order.
const (
	ColumnResult Column = "result"
	ColumnNotes  Column = "notes"
	ColumnMethod Column = "method"
)

// editableColumns is the fixed per-row column order used by cross-row
// navigation.
var editableColumns = []Column{ColumnResult, ColumnNotes}

// Row is the unit the grid operates on: one required specification
// reconciled with its recorded result, or an additional result with no
// matching specification. The verdict is computed, never stored.
type Row struct {
	ID            RowID               `json:"row_id"`
	TestName      string              `json:"test_name"`
	Category      string              `json:"category"`
	Value         string              `json:"value"`
	Unit          string              `json:"unit"`
	Specification string              `json:"specification"`
	Method        string              `json:"method"`
	Notes         string              `json:"notes"`
	Required      bool                `json:"required"`
	Additional    bool                `json:"additional"`
	Status        domain.ResultStatus `json:"status,omitempty"`
	DocumentKey   string              `json:"document_key,omitempty"`
	Spec          speceval.Spec       `json:"spec"`
	Verdict       speceval.Verdict    `json:"verdict"`
}

// FieldValue returns the row's current content for an editable column.
func (r Row) FieldValue(c Column) string {
	switch c {
	case ColumnResult:
		return r.Value
	case ColumnNotes:
		return r.Notes
	case ColumnMethod:
		return r.Method
	}
	return ""
}
