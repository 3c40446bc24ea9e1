package rete

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/codenerd-labs/rete/internal/value"
)

// ConstraintKind distinguishes the per-attribute constraint forms a
// Pattern can carry.
type ConstraintKind int

const (
	// An attribute that is not in a pattern's constraint map at all is
	// unconstrained; there is no separate kind for that case.
	ConstraintEquals ConstraintKind = iota
	ConstraintPredicate
	ConstraintBind
)

// Constraint is one attribute's matching rule within a Pattern.
type Constraint struct {
	Kind      ConstraintKind
	Equals    value.Value
	Predicate func(value.Value) bool
	Var       string
}

// Eq constrains an attribute to equal a constant value.
func Eq(v value.Value) Constraint { return Constraint{Kind: ConstraintEquals, Equals: v} }

// Pred constrains an attribute with a unary predicate. Per the design
// notes, patterns carrying predicate constraints are never shared
// (option (b): predicate identity cannot be compared structurally, so
// such patterns are conservatively treated as distinct).
func Pred(f func(value.Value) bool) Constraint {
	return Constraint{Kind: ConstraintPredicate, Predicate: f}
}

// BindVar places no constraint on the attribute's value but exports it
// under the given variable name to later conditions and to the rule
// action.
func BindVar(name string) Constraint { return Constraint{Kind: ConstraintBind, Var: name} }

// Pattern is a (type, constraints) description of facts of interest.
// Two patterns built with NewPattern from the same type and the same
// constraint set (and carrying no predicate constraints) are
// value-equal and share a single AlphaMemory.
type Pattern struct {
	Type        string
	Constraints map[string]Constraint
	nonce       uint64 // non-zero forces this pattern to never share an AlphaMemory
}

var patternNonce uint64

// NewPattern builds a Pattern. Patterns that include a Predicate
// constraint are assigned a unique nonce so they never spuriously
// share an AlphaMemory with another pattern.
func NewPattern(factType string, constraints map[string]Constraint) Pattern {
	p := Pattern{Type: factType, Constraints: constraints}
	for _, c := range constraints {
		if c.Kind == ConstraintPredicate {
			p.nonce = atomic.AddUint64(&patternNonce, 1)
			break
		}
	}
	return p
}

// Key returns the string used to key the Engine's pattern->AlphaMemory
// sharing map. Equal patterns (by NewPattern's value-equality contract)
// produce equal keys.
func (p Pattern) Key() string {
	if p.nonce != 0 {
		return fmt.Sprintf("%s#unshared#%d", p.Type, p.nonce)
	}
	attrs := make([]string, 0, len(p.Constraints))
	for a := range p.Constraints {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)

	var b strings.Builder
	b.WriteString(p.Type)
	for _, a := range attrs {
		c := p.Constraints[a]
		switch c.Kind {
		case ConstraintEquals:
			fmt.Fprintf(&b, "|%s=eq:%s", a, c.Equals.String())
		case ConstraintBind:
			fmt.Fprintf(&b, "|%s=bind:%s", a, c.Var)
		default:
			fmt.Fprintf(&b, "|%s=?", a)
		}
	}
	return b.String()
}

// Matches reports whether a fact satisfies every constraint in the
// pattern: the type tag agrees, and for each constrained attribute a
// constant equals the fact's value, a predicate returns true, or a
// binding variable places no constraint.
func (p Pattern) Matches(f *Fact) bool {
	if f.Type != p.Type {
		return false
	}
	for attr, c := range p.Constraints {
		v, ok := f.Attributes[attr]
		switch c.Kind {
		case ConstraintEquals:
			if !ok || !v.Equal(c.Equals) {
				return false
			}
		case ConstraintPredicate:
			if !ok || !c.Predicate(v) {
				return false
			}
		case ConstraintBind:
			// Matches anything, including an absent attribute.
		}
	}
	return true
}
