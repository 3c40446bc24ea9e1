package rete

// leftReceiver is implemented by join/negation nodes that take a
// BetaMemory as their left input.
type leftReceiver interface {
	LeftActivate(t *Token)
	LeftDeactivate(t *Token)
	setLeftLinked(bool)
}

// rightReceiver is implemented by join/negation nodes that take an
// AlphaMemory as their right input.
type rightReceiver interface {
	RightActivate(f *Fact)
	RightDeactivate(f *Fact)
	setRightLinked(bool)
}

// tokenSink is implemented by whatever a join/negation node forwards
// completed tokens to: the next BetaMemory, or a rule's ProductionNode.
type tokenSink interface {
	Activate(t *Token)
	Deactivate(t *Token)
}

// AlphaMemory holds the set of facts currently matching its pattern.
// At most one AlphaMemory exists per distinct Pattern (see Pattern.Key);
// rules that share a pattern share the memory, which is mandatory for
// unlinking correctness as well as efficiency.
type AlphaMemory struct {
	Pattern    Pattern
	items      []*Fact
	successors []rightReceiver
}

func newAlphaMemory(p Pattern) *AlphaMemory {
	return &AlphaMemory{Pattern: p}
}

func (am *AlphaMemory) addSuccessor(r rightReceiver) {
	am.successors = append(am.successors, r)
	r.setRightLinked(len(am.items) > 0)
}

// RightActivate is called by the Engine's WorkingMemory observer when
// a fact newly matches this memory's pattern.
func (am *AlphaMemory) RightActivate(f *Fact) {
	wasEmpty := len(am.items) == 0
	am.items = append(am.items, f)
	if wasEmpty {
		for _, s := range am.successors {
			s.setRightLinked(true)
		}
	}
	for _, s := range am.successors {
		s.RightActivate(f)
	}
}

// RightDeactivate is called when a previously-matching fact is
// retracted.
func (am *AlphaMemory) RightDeactivate(f *Fact) {
	for i, it := range am.items {
		if it == f {
			am.items = append(am.items[:i], am.items[i+1:]...)
			break
		}
	}
	for _, s := range am.successors {
		s.RightDeactivate(f)
	}
	if len(am.items) == 0 {
		for _, s := range am.successors {
			s.setRightLinked(false)
		}
	}
}

// Items returns the facts currently matching this memory's pattern.
func (am *AlphaMemory) Items() []*Fact {
	out := make([]*Fact, len(am.items))
	copy(out, am.items)
	return out
}

// BetaMemory holds the set of tokens at a given depth in a rule's
// condition chain.
type BetaMemory struct {
	tokens     []*Token
	successors []leftReceiver
}

func newBetaMemory() *BetaMemory {
	return &BetaMemory{}
}

func (bm *BetaMemory) addSuccessor(l leftReceiver) {
	bm.successors = append(bm.successors, l)
	l.setLeftLinked(len(bm.tokens) > 0)
}

// Activate implements tokenSink: a join/negation node upstream has
// produced a token destined for this depth.
func (bm *BetaMemory) Activate(t *Token) {
	wasEmpty := len(bm.tokens) == 0
	bm.tokens = append(bm.tokens, t)
	if wasEmpty {
		for _, s := range bm.successors {
			s.setLeftLinked(true)
		}
	}
	for _, s := range bm.successors {
		s.LeftActivate(t)
	}
}

// Deactivate implements tokenSink: the upstream token was withdrawn.
func (bm *BetaMemory) Deactivate(t *Token) {
	for i, tok := range bm.tokens {
		if tok == t {
			bm.tokens = append(bm.tokens[:i], bm.tokens[i+1:]...)
			break
		}
	}
	for _, s := range bm.successors {
		s.LeftDeactivate(t)
	}
	if len(bm.tokens) == 0 {
		for _, s := range bm.successors {
			s.setLeftLinked(false)
		}
	}
}

// Tokens returns the tokens currently held at this depth.
func (bm *BetaMemory) Tokens() []*Token {
	out := make([]*Token, len(bm.tokens))
	copy(out, bm.tokens)
	return out
}

func (bm *BetaMemory) reset(sentinel *Token) {
	if sentinel != nil {
		bm.tokens = []*Token{sentinel}
	} else {
		bm.tokens = nil
	}
}
