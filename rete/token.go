package rete

// Token is an immutable cons cell representing a partial match of the
// first k conditions of a rule: a parent token pointer, a fact pointer
// (nil for negation-produced tokens and for the root sentinel), the
// node that produced it, and its children (tokens built on top of it
// by the next join/negation node down the chain).
type Token struct {
	parent   *Token
	fact     *Fact
	node     interface{} // the join/negation node that produced this token
	depth    int         // -1 for the sentinel, else the condition index it closes
	children []*Token
	fired    bool
}

// newSentinelToken builds the root token: parent=nil, fact=nil. It
// represents "no conditions matched yet" and lives permanently in the
// root BetaMemory; it is never unlinked, never fires, and is never
// visible to rule authors.
func newSentinelToken() *Token {
	return &Token{depth: -1}
}

func newChildToken(parent *Token, f *Fact, node interface{}) *Token {
	t := &Token{parent: parent, fact: f, node: node, depth: parent.depth + 1}
	parent.children = append(parent.children, t)
	return t
}

// Facts walks the parent chain to the root, excluding null fact slots,
// and returns the facts this token represents, earliest condition
// first.
func (t *Token) Facts() []*Fact {
	var rev []*Fact
	for cur := t; cur != nil; cur = cur.parent {
		if cur.fact != nil {
			rev = append(rev, cur.fact)
		}
	}
	out := make([]*Fact, len(rev))
	for i, f := range rev {
		out[len(rev)-1-i] = f
	}
	return out
}

// FactAtDepth returns the fact bound at the given condition index (the
// same index space joinTest.tokenIndex uses), or nil if that condition
// was negated and so bound no fact. Walking to a depth before the
// token's own is how a join test inspects an earlier condition's fact.
func (t *Token) FactAtDepth(depth int) *Fact {
	cur := t
	for cur != nil && cur.depth > depth {
		cur = cur.parent
	}
	if cur == nil || cur.depth != depth {
		return nil
	}
	return cur.fact
}

// detachFromParent removes t from its parent's children list. The
// sentinel token has no parent and this is a no-op for it.
func (t *Token) detachFromParent() {
	if t.parent == nil {
		return
	}
	siblings := t.parent.children
	for i, c := range siblings {
		if c == t {
			t.parent.children = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}
