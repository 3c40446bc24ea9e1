package rete

import "github.com/codenerd-labs/rete/internal/value"

// ProductionNode is the terminal node for one rule: it accumulates
// complete matches and dispatches the rule's action under the
// Engine's run policy.
type ProductionNode struct {
	Rule   *Rule
	tokens []*Token
}

func newProductionNode(rule *Rule) *ProductionNode {
	return &ProductionNode{Rule: rule}
}

// Activate appends a newly-complete match. It does not fire
// immediately — a later retraction or negation toggle may invalidate
// this match before the Engine's next Run call.
func (pn *ProductionNode) Activate(t *Token) {
	pn.tokens = append(pn.tokens, t)
}

// Deactivate removes a match. If the token had already fired, its
// action's side effects are not undone; this is bookkeeping only.
func (pn *ProductionNode) Deactivate(t *Token) {
	for i, tok := range pn.tokens {
		if tok == t {
			pn.tokens = append(pn.tokens[:i], pn.tokens[i+1:]...)
			return
		}
	}
}

// Tokens returns the matches currently held, in activation order.
func (pn *ProductionNode) Tokens() []*Token {
	out := make([]*Token, len(pn.tokens))
	copy(out, pn.tokens)
	return out
}

// fire invokes the rule action for t if it has not already fired. A
// token never fires twice within an engine's lifetime. ActionFailure
// (panic or returned error) is caught and reported to onFailure rather
// than propagated, so other tokens still get their turn.
func (pn *ProductionNode) fire(t *Token, onFailure func(t *Token, err error)) {
	if t.fired {
		return
	}
	facts := t.Facts()
	bindings := pn.Rule.bindings(t)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &actionPanic{value: r}
			}
		}()
		return pn.Rule.Action(facts, bindings)
	}()

	t.fired = true
	if err != nil && onFailure != nil {
		onFailure(t, err)
	}
}

type actionPanic struct{ value interface{} }

func (p *actionPanic) Error() string {
	return "rete: rule action panicked"
}

// bindings reconstructs the variable->value map for a token by
// walking the rule's conditions in order and, for non-negated
// conditions, exporting each binding variable against the fact bound
// at that depth.
func (r *Rule) bindings(t *Token) map[string]value.Value {
	out := make(map[string]value.Value)
	for i, cond := range r.Conditions {
		if cond.Negated {
			continue
		}
		f := t.FactAtDepth(i)
		if f == nil {
			continue
		}
		for attr, c := range cond.Pattern.Constraints {
			if c.Kind == ConstraintBind {
				out[c.Var] = f.Get(attr)
			}
		}
	}
	return out
}
