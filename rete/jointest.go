package rete

import "github.com/codenerd-labs/rete/internal/value"

// joinOp is the comparison a joinTest applies.
type joinOp int

const (
	opEq joinOp = iota
	opNeq
)

// joinTest cross-checks a candidate fact against a token produced by
// an earlier condition. tokenIndex names which earlier condition to
// inspect (by its position in the rule's condition list, the same
// index space as Token.FactAtDepth); tokenAttr is the attribute to
// read from the fact bound at that condition. A constant test (built
// by newConstTest) instead compares factAttr against a literal — used
// when a pattern's declared type is overridden by an explicit "type"
// attribute constraint that differs from it.
type joinTest struct {
	tokenIndex int
	tokenAttr  string
	factAttr   string
	op         joinOp
	isConstant bool
	constant   value.Value
}

func newVarTest(tokenIndex int, tokenAttr, factAttr string, op joinOp) joinTest {
	return joinTest{tokenIndex: tokenIndex, tokenAttr: tokenAttr, factAttr: factAttr, op: op}
}

func newConstTest(factAttr string, constant value.Value) joinTest {
	return joinTest{factAttr: factAttr, isConstant: true, constant: constant, op: opEq}
}

// eval reports whether fact f is consistent with token t under this
// test.
func (jt joinTest) eval(t *Token, f *Fact) bool {
	factVal := f.Get(jt.factAttr)

	var left value.Value
	if jt.isConstant {
		left = jt.constant
	} else {
		earlier := t.FactAtDepth(jt.tokenIndex)
		if earlier == nil {
			// The earlier condition was negated and bound no fact;
			// a variable test against it can never be satisfied.
			return false
		}
		left = earlier.Get(jt.tokenAttr)
	}

	switch jt.op {
	case opEq:
		return left.Equal(factVal)
	case opNeq:
		return !left.Equal(factVal)
	default:
		return false
	}
}
