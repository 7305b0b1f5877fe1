// Package speceval classifies free-form test specification strings and
// evaluates recorded values against them. Parsing is total: any string that
// fails binary and numeric classification degrades to free-text equality,
// never an error. Evaluation is pure, so identical inputs always produce
// identical verdicts.
package speceval

import (
	"strconv"
	"strings"
)

// Kind is the specification domain resolved once at parse time. The
// rendering layer switches on it exhaustively instead of re-inspecting the
// raw string.
type Kind string

// Specification kinds.
const (
	KindBinary   Kind = "binary"
	KindNumeric  Kind = "numeric"
	KindFreeText Kind = "text"
)

// Verdict is the computed outcome for a recorded value.
type Verdict string

// Verdicts. Pending means no value has been recorded yet.
const (
	VerdictPending Verdict = "pending"
	VerdictPass    Verdict = "pass"
	VerdictFail    Verdict = "fail"
)

// Op is a comparison operator carried by a numeric specification or a
// reported bounded value.
type Op string

// Comparison operators. OpNone marks a plain quantity.
const (
	OpNone Op = ""
	OpLT   Op = "<"
	OpLE   Op = "<="
	OpGT   Op = ">"
	OpGE   Op = ">="
)

// Spec is a parsed specification string.
type Spec struct {
	Kind Kind `json:"kind"`
	// Raw preserves the original specification text for display and for the
	// free-text equality fallback.
	Raw string `json:"raw"`
	// Term is the accepted answer for binary specifications.
	Term string `json:"term,omitempty"`
	// Op and Threshold describe the inequality for numeric specifications.
	Op        Op      `json:"op,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	// Unit is trailing unit text from a numeric specification ("CFU/g").
	Unit string `json:"unit,omitempty"`
}

// Binary domains recognized in specification strings. A unit of the form
// "Positive/Negative" (two recognized terms joined by a slash) also marks a
// binary domain.
var binaryTerms = map[string]struct{}{
	"positive":     {},
	"negative":     {},
	"present":      {},
	"absent":       {},
	"detected":     {},
	"not detected": {},
	"pass":         {},
	"fail":         {},
}

// Parse classifies a specification string. The unit participates because
// some catalogs record the binary domain there (e.g. unit
// "Positive/Negative" with specification "Negative").
func Parse(spec, unit string) Spec {
	raw := strings.TrimSpace(spec)

	if term, ok := binaryTerm(raw, unit); ok {
		return Spec{Kind: KindBinary, Raw: raw, Term: term}
	}

	if op, threshold, rest, ok := parseQuantity(raw); ok {
		return Spec{Kind: KindNumeric, Raw: raw, Op: op, Threshold: threshold, Unit: rest}
	}

	return Spec{Kind: KindFreeText, Raw: raw}
}

// Evaluate parses the specification and scores the value in one step.
func Evaluate(spec, unit, value string) Verdict {
	return Parse(spec, unit).Evaluate(value)
}

// Evaluate scores a recorded value against the parsed specification.
// An empty value is always pending, regardless of specification.
func (s Spec) Evaluate(value string) Verdict {
	value = strings.TrimSpace(value)
	if value == "" {
		return VerdictPending
	}

	switch s.Kind {
	case KindBinary:
		if strings.EqualFold(value, s.Term) {
			return VerdictPass
		}
		return VerdictFail
	case KindNumeric:
		op, v, _, ok := parseQuantity(value)
		if !ok {
			// A non-numeric reading can never be shown to satisfy a numeric
			// threshold.
			return VerdictFail
		}
		if boundedSatisfies(s.Op, s.Threshold, op, v) {
			return VerdictPass
		}
		return VerdictFail
	default:
		if strings.EqualFold(value, s.Raw) {
			return VerdictPass
		}
		return VerdictFail
	}
}

func binaryTerm(spec, unit string) (string, bool) {
	if _, ok := binaryTerms[strings.ToLower(spec)]; ok {
		return spec, true
	}
	// Unit naming a binary domain, e.g. "Positive/Negative".
	parts := strings.Split(strings.ToLower(strings.TrimSpace(unit)), "/")
	if len(parts) == 2 {
		_, a := binaryTerms[strings.TrimSpace(parts[0])]
		_, b := binaryTerms[strings.TrimSpace(parts[1])]
		if a && b && spec != "" {
			return spec, true
		}
	}
	return "", false
}

// parseQuantity reads an optional leading comparison operator, a number
// (thousands separators allowed), and trailing unit text. ok is false when
// no leading number is present.
func parseQuantity(s string) (Op, float64, string, bool) {
	s = strings.TrimSpace(s)
	op := OpNone
	switch {
	case strings.HasPrefix(s, "<="):
		op, s = OpLE, s[2:]
	case strings.HasPrefix(s, ">="):
		op, s = OpGE, s[2:]
	case strings.HasPrefix(s, "<"):
		op, s = OpLT, s[1:]
	case strings.HasPrefix(s, ">"):
		op, s = OpGT, s[1:]
	}
	s = strings.TrimSpace(s)

	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' {
			end++
			continue
		}
		break
	}
	digits := strings.ReplaceAll(s[:end], ",", "")
	if digits == "" {
		return OpNone, 0, "", false
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return OpNone, 0, "", false
	}
	return op, v, strings.TrimSpace(s[end:]), true
}

// boundedSatisfies reports whether a reported quantity provably satisfies
// the specification threshold. When both sides carry operators the reported
// bound must make violation impossible; ambiguous combinations (e.g.
// reported "> 5" against spec "< 10") are rejected rather than guessed to
// be safe.
func boundedSatisfies(specOp Op, threshold float64, valOp Op, v float64) bool {
	switch specOp {
	case OpNone:
		return valOp == OpNone && v == threshold
	case OpLT:
		switch valOp {
		case OpNone:
			return v < threshold
		case OpLT:
			return v <= threshold
		case OpLE:
			return v < threshold
		default:
			return false
		}
	case OpLE:
		switch valOp {
		case OpNone, OpLT, OpLE:
			return v <= threshold
		default:
			return false
		}
	case OpGT:
		switch valOp {
		case OpNone:
			return v > threshold
		case OpGT:
			return v >= threshold
		case OpGE:
			return v > threshold
		default:
			return false
		}
	case OpGE:
		switch valOp {
		case OpNone, OpGT, OpGE:
			return v >= threshold
		default:
			return false
		}
	}
	return false
}
