package search

import (
	"errors"
	"fmt"
)

// ErrInvalidPredicate indicates a malformed metadata predicate.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Op is a predicate operator.
type Op string

const (
	// OpEqual matches chunks whose metadata field equals the value.
	OpEqual Op = "eq"
	// OpIn matches chunks whose metadata field equals any of the values.
	OpIn Op = "in"
)

// Predicate restricts eligible chunks by a metadata field.
//
// New filter dimensions (company, judgment label, jurisdiction) are plain
// data here; no new code paths are needed to filter on another field.
type Predicate struct {
	Field  string
	Op     Op
	Value  string
	Values []string
}

// Equals builds an exact-match predicate.
func Equals(field, value string) *Predicate {
	return &Predicate{Field: field, Op: OpEqual, Value: value}
}

// In builds an enumerated-value predicate.
func In(field string, values ...string) *Predicate {
	return &Predicate{Field: field, Op: OpIn, Values: values}
}

// Validate checks the predicate shape.
func (p *Predicate) Validate() error {
	if p == nil {
		return nil
	}
	if p.Field == "" {
		return fmt.Errorf("%w: field required", ErrInvalidPredicate)
	}
	switch p.Op {
	case OpEqual:
		if p.Value == "" {
			return fmt.Errorf("%w: eq requires a value", ErrInvalidPredicate)
		}
	case OpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("%w: in requires values", ErrInvalidPredicate)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidPredicate, p.Op)
	}
	return nil
}

// Matches reports whether the chunk metadata satisfies the predicate.
// A nil predicate matches everything.
func (p *Predicate) Matches(metadata map[string]string) bool {
	if p == nil {
		return true
	}
	got, ok := metadata[p.Field]
	if !ok {
		return false
	}
	switch p.Op {
	case OpEqual:
		return got == p.Value
	case OpIn:
		for _, v := range p.Values {
			if got == v {
				return true
			}
		}
	}
	return false
}
