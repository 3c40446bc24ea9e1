package rete

// NegationNode forwards each left token to its successors iff the
// right-hand AlphaMemory holds no fact that passes the join tests
// against that token. It keeps, per left token, the list of right
// facts currently inhibiting it.
type NegationNode struct {
	left  *BetaMemory
	right *AlphaMemory
	tests []joinTest

	successors []tokenSink

	// inhibitors maps each left token to the right facts currently
	// blocking propagation. A token with an empty (but present) slice
	// has had a child token emitted.
	inhibitors map[*Token][]*Fact
	emitted    map[*Token]*Token // left token -> child token currently emitted, if any
}

func newNegationNode(left *BetaMemory, right *AlphaMemory, tests []joinTest) *NegationNode {
	nn := &NegationNode{
		left:       left,
		right:      right,
		tests:      tests,
		inhibitors: make(map[*Token][]*Fact),
		emitted:    make(map[*Token]*Token),
	}
	left.addSuccessor(nn)
	right.addSuccessor(nn)
	return nn
}

func (nn *NegationNode) addSuccessor(s tokenSink) { nn.successors = append(nn.successors, s) }

// removeSuccessor detaches s, used when a rule is replaced and its old
// ProductionNode must stop receiving activations.
func (nn *NegationNode) removeSuccessor(s tokenSink) {
	for i, succ := range nn.successors {
		if succ == s {
			nn.successors = append(nn.successors[:i], nn.successors[i+1:]...)
			return
		}
	}
}

// NegationNode never unlinks: the absence side must always be checked.
func (nn *NegationNode) setLeftLinked(bool)  {}
func (nn *NegationNode) setRightLinked(bool) {}

func (nn *NegationNode) matchingFacts(t *Token) []*Fact {
	var out []*Fact
	for _, f := range nn.right.items {
		ok := true
		for _, test := range nn.tests {
			if !test.eval(t, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out
}

// LeftActivate: collect every right-hand fact passing the tests. If
// none, emit a child token (fact=nil, negation carries no fact) to
// successors. Otherwise record the inhibitors and propagate nothing.
func (nn *NegationNode) LeftActivate(t *Token) {
	inhibitors := nn.matchingFacts(t)
	nn.inhibitors[t] = inhibitors
	if len(inhibitors) == 0 {
		child := newChildToken(t, nil, nn)
		nn.emitted[t] = child
		for _, s := range nn.successors {
			s.Activate(child)
		}
	}
}

// LeftDeactivate: deactivate whatever child this token produced (if
// any) and forget its bookkeeping.
func (nn *NegationNode) LeftDeactivate(t *Token) {
	if child, ok := nn.emitted[t]; ok {
		for _, s := range nn.successors {
			s.Deactivate(child)
		}
		child.detachFromParent()
		delete(nn.emitted, t)
	}
	delete(nn.inhibitors, t)
}

// RightActivate: a new fact arrived. For every left token it now
// inhibits, if it was the first inhibitor, deactivate the previously
// emitted child; then record the fact as an inhibitor.
func (nn *NegationNode) RightActivate(f *Fact) {
	for _, t := range nn.left.tokens {
		if !nn.testsPass(t, f) {
			continue
		}
		if len(nn.inhibitors[t]) == 0 {
			if child, ok := nn.emitted[t]; ok {
				for _, s := range nn.successors {
					s.Deactivate(child)
				}
				child.detachFromParent()
				delete(nn.emitted, t)
			}
		}
		nn.inhibitors[t] = append(nn.inhibitors[t], f)
	}
}

// RightDeactivate: remove the fact from every inhibitor set it
// belongs to; if a set becomes empty, emit a fresh child token.
func (nn *NegationNode) RightDeactivate(f *Fact) {
	for _, t := range nn.left.tokens {
		inhib := nn.inhibitors[t]
		idx := -1
		for i, other := range inhib {
			if other == f {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		inhib = append(inhib[:idx], inhib[idx+1:]...)
		nn.inhibitors[t] = inhib
		if len(inhib) == 0 {
			child := newChildToken(t, nil, nn)
			nn.emitted[t] = child
			for _, s := range nn.successors {
				s.Activate(child)
			}
		}
	}
}

func (nn *NegationNode) testsPass(t *Token, f *Fact) bool {
	for _, test := range nn.tests {
		if !test.eval(t, f) {
			return false
		}
	}
	return true
}
