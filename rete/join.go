package rete

// JoinNode cross-produces tokens from its left BetaMemory with facts
// from its right AlphaMemory, keeping only combinations that pass every
// join test.
type JoinNode struct {
	left  *BetaMemory
	right *AlphaMemory
	tests []joinTest

	successors []tokenSink

	leftLinked  bool
	rightLinked bool
}

func newJoinNode(left *BetaMemory, right *AlphaMemory, tests []joinTest) *JoinNode {
	jn := &JoinNode{left: left, right: right, tests: tests}
	left.addSuccessor(jn)
	right.addSuccessor(jn)
	return jn
}

func (jn *JoinNode) addSuccessor(s tokenSink) { jn.successors = append(jn.successors, s) }

// removeSuccessor detaches s, used when a rule is replaced and its old
// ProductionNode must stop receiving activations.
func (jn *JoinNode) removeSuccessor(s tokenSink) {
	for i, succ := range jn.successors {
		if succ == s {
			jn.successors = append(jn.successors[:i], jn.successors[i+1:]...)
			return
		}
	}
}

func (jn *JoinNode) setLeftLinked(v bool)  { jn.leftLinked = v }
func (jn *JoinNode) setRightLinked(v bool) { jn.rightLinked = v }

func (jn *JoinNode) passes(t *Token, f *Fact) bool {
	for _, test := range jn.tests {
		if !test.eval(t, f) {
			return false
		}
	}
	return true
}

// LeftActivate: a token arrived on the left BetaMemory. If the right
// side is known empty (right_unlinked), this is a no-op — there is
// nothing to cross-produce against. Otherwise every matching fact in
// the right AlphaMemory yields a child token.
func (jn *JoinNode) LeftActivate(t *Token) {
	if !jn.rightLinked {
		return
	}
	for _, f := range jn.right.items {
		if jn.passes(t, f) {
			child := newChildToken(t, f, jn)
			for _, s := range jn.successors {
				s.Activate(child)
			}
		}
	}
}

// LeftDeactivate: the token was withdrawn from the left BetaMemory.
// Every child token this node built on top of it is deactivated and
// detached from the parent's children list.
func (jn *JoinNode) LeftDeactivate(t *Token) {
	children := append([]*Token(nil), t.children...)
	for _, c := range children {
		if c.node != jn {
			continue
		}
		for _, s := range jn.successors {
			s.Deactivate(c)
		}
		c.detachFromParent()
	}
}

// RightActivate: a fact arrived on the right AlphaMemory. If the left
// side is known empty (left_unlinked), this is a no-op.
func (jn *JoinNode) RightActivate(f *Fact) {
	if !jn.leftLinked {
		return
	}
	for _, t := range jn.left.tokens {
		if jn.passes(t, f) {
			child := newChildToken(t, f, jn)
			for _, s := range jn.successors {
				s.Activate(child)
			}
		}
	}
}

// RightDeactivate: the fact was retracted. Every child token keyed to
// it, across every left token, is deactivated and detached.
func (jn *JoinNode) RightDeactivate(f *Fact) {
	for _, t := range jn.left.tokens {
		children := append([]*Token(nil), t.children...)
		for _, c := range children {
			if c.node != jn || c.fact != f {
				continue
			}
			for _, s := range jn.successors {
				s.Deactivate(c)
			}
			c.detachFromParent()
		}
	}
}
