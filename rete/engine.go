package rete

import (
	"fmt"
	"sort"
	"sync"

	"github.com/codenerd-labs/rete/internal/logging"
	"github.com/codenerd-labs/rete/internal/reteerr"
	"github.com/codenerd-labs/rete/internal/value"
)

// terminalNode is whatever a rule's last condition's join/negation node
// is: the thing a ProductionNode attaches to and can later be detached
// from when the rule is replaced.
type terminalNode interface {
	addSuccessor(tokenSink)
	removeSuccessor(tokenSink)
}

// chainHead is whatever a rule's first condition's join/negation node
// is: the entry point replay drives the sentinel token through.
type chainHead interface {
	LeftActivate(t *Token)
}

// Engine owns the discrimination network: working memory, the
// pattern-keyed AlphaMemory sharing table, the root BetaMemory, and the
// per-rule join/negation/production chains compiled from it. See
// SPEC_FULL.md §4.1-§4.7.
type Engine struct {
	mu sync.Mutex

	wm       *WorkingMemory
	rootBeta *BetaMemory
	sentinel *Token

	alphaByKey  map[string]*AlphaMemory
	rules       map[string]*Rule
	productions map[string]*ProductionNode
	heads       map[string]chainHead
	terminals   map[string]terminalNode
}

// ActionFailureReport pairs a rule firing failure with the token's rule
// name for audit and operator visibility.
type ActionFailureReport struct {
	RuleName string
	Err      error
}

// New constructs an empty, ready-to-use Engine with no rules and no
// facts.
func New() *Engine {
	e := &Engine{
		wm:          NewWorkingMemory(),
		alphaByKey:  make(map[string]*AlphaMemory),
		rules:       make(map[string]*Rule),
		productions: make(map[string]*ProductionNode),
		heads:       make(map[string]chainHead),
		terminals:   make(map[string]terminalNode),
	}
	e.sentinel = newSentinelToken()
	e.rootBeta = newBetaMemory()
	e.rootBeta.tokens = []*Token{e.sentinel}
	e.wm.Subscribe(e.onEvent)
	return e
}

// WorkingMemory exposes the underlying fact store so a caller layering
// persistence on top (the blackboard engine) can assert/retract
// directly and still drive this engine's network.
func (e *Engine) WorkingMemory() *WorkingMemory { return e.wm }

func (e *Engine) onEvent(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev.Kind {
	case EventAdd:
		for _, am := range e.alphaByKey {
			if am.Pattern.Matches(ev.Fact) {
				logging.Get(logging.CategoryNetwork).Debugf("alpha right_activate pattern=%s fact=%s", am.Pattern.Key(), ev.Fact.ID)
				am.RightActivate(ev.Fact)
			}
		}
	case EventRemove:
		for _, am := range e.alphaByKey {
			if am.Pattern.Matches(ev.Fact) {
				am.RightDeactivate(ev.Fact)
			}
		}
	}
}

// Assert creates a fact of the given type/attributes and adds it to
// WorkingMemory. The ephemeral engine mints an opaque handle for its
// identity; the blackboard engine instead assigns a UUID via
// AssertFact.
func (e *Engine) Assert(factType string, attrs value.Attributes) *Fact {
	f := &Fact{ID: NewEphemeralID(), Type: factType, Attributes: attrs}
	e.wm.Assert(f)
	return f
}

// AssertFact adds an already-constructed fact.
func (e *Engine) AssertFact(f *Fact) { e.wm.Assert(f) }

// Retract removes a fact from WorkingMemory.
func (e *Engine) Retract(f *Fact) { e.wm.Retract(f) }

// alphaMemoryFor returns the shared AlphaMemory for a pattern,
// creating and seeding it with currently-matching facts if this is the
// first rule to reference it.
func (e *Engine) alphaMemoryFor(p Pattern) *AlphaMemory {
	key := p.Key()
	if am, ok := e.alphaByKey[key]; ok {
		return am
	}
	am := newAlphaMemory(p)
	for _, f := range e.wm.Facts() {
		if p.Matches(f) {
			am.items = append(am.items, f)
		}
	}
	e.alphaByKey[key] = am
	return am
}

// AddRule compiles a rule into the network, sharing AlphaMemories by
// pattern with every other compiled rule. Re-adding a rule name
// replaces its previous ProductionNode in place: the old node is
// detached from its terminal join/negation node and the new chain is
// built fresh, but unrelated rules' shared AlphaMemories are
// untouched.
func (e *Engine) AddRule(rule *Rule) error {
	if len(rule.Conditions) == 0 {
		return reteerr.Wrap(reteerr.ErrEmptyConditions, fmt.Sprintf("rule %q", rule.Name), nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if old, exists := e.productions[rule.Name]; exists {
		if term, ok := e.terminals[rule.Name]; ok {
			term.removeSuccessor(old)
		}
	}

	currentBeta := e.rootBeta
	var head chainHead
	var terminal terminalNode

	for i, cond := range rule.Conditions {
		pattern := cond.Pattern
		am := e.alphaMemoryFor(pattern)

		tests := deriveJoinTests(rule.Conditions, i)
		if c, ok := pattern.Constraints["type"]; ok && c.Kind == ConstraintEquals && c.Equals.String() != pattern.Type {
			tests = append(tests, newConstTest("type", c.Equals))
		}

		var node terminalNode
		if cond.Negated {
			node = newNegationNode(currentBeta, am, tests)
		} else {
			node = newJoinNode(currentBeta, am, tests)
		}
		if head == nil {
			head = node.(chainHead)
		}

		if i == len(rule.Conditions)-1 {
			terminal = node
			break
		}
		nextBeta := newBetaMemory()
		node.addSuccessor(nextBeta)
		currentBeta = nextBeta
	}

	pn := newProductionNode(rule)
	terminal.addSuccessor(pn)

	e.rules[rule.Name] = rule
	e.productions[rule.Name] = pn
	e.heads[rule.Name] = head
	e.terminals[rule.Name] = terminal

	// AlphaMemories were seeded with pre-existing matching facts above;
	// driving the sentinel through the freshly built chain's head
	// cascades those facts through every join/negation node exactly as
	// a live RightActivate would, so the new rule sees facts asserted
	// before it was added.
	head.LeftActivate(e.sentinel)

	return nil
}

// deriveJoinTests implements §4.7's join-test derivation: for each
// binding variable referenced at condition i, find the earliest
// earlier non-negated condition exporting the same variable name and
// emit an equality test against it. A variable with no earlier binder
// is simply being introduced here and needs no test.
func deriveJoinTests(conds []Condition, i int) []joinTest {
	var tests []joinTest
	cond := conds[i]
	attrs := make([]string, 0, len(cond.Pattern.Constraints))
	for a := range cond.Pattern.Constraints {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)

	for _, attr := range attrs {
		c := cond.Pattern.Constraints[attr]
		if c.Kind != ConstraintBind {
			continue
		}
		for j := 0; j < i; j++ {
			if conds[j].Negated {
				continue
			}
			earlierAttrs := make([]string, 0, len(conds[j].Pattern.Constraints))
			for a := range conds[j].Pattern.Constraints {
				earlierAttrs = append(earlierAttrs, a)
			}
			sort.Strings(earlierAttrs)

			found := false
			for _, a2 := range earlierAttrs {
				c2 := conds[j].Pattern.Constraints[a2]
				if c2.Kind == ConstraintBind && c2.Var == c.Var {
					tests = append(tests, newVarTest(j, a2, attr, opEq))
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return tests
}

// Run fires every eligible not-yet-fired token exactly once. Within a
// run, production nodes fire in rule-name order and, within a node, in
// token-activation order — deterministic regardless of the Priority
// field, which SPEC_FULL.md documents as carried but not load-bearing
// for dispatch order. The tokens to fire are snapshotted under the
// engine lock and the actions run after it is released, so an action
// may assert or retract facts; matches those changes create fire on
// the next Run.
func (e *Engine) Run() []ActionFailureReport {
	e.mu.Lock()
	names := make([]string, 0, len(e.productions))
	for name := range e.productions {
		names = append(names, name)
	}
	sort.Strings(names)

	type batch struct {
		name   string
		pn     *ProductionNode
		tokens []*Token
	}
	batches := make([]batch, 0, len(names))
	for _, name := range names {
		pn := e.productions[name]
		batches = append(batches, batch{name: name, pn: pn, tokens: pn.Tokens()})
	}
	e.mu.Unlock()

	var failures []ActionFailureReport
	for _, b := range batches {
		name := b.name
		for _, t := range b.tokens {
			b.pn.fire(t, func(tok *Token, err error) {
				logging.Get(logging.CategoryEngine).Warnf("rule %s action failed: %v", name, err)
				failures = append(failures, ActionFailureReport{RuleName: name, Err: err})
			})
		}
	}
	return failures
}

// Reset clears every fact, every AlphaMemory's item set, every
// BetaMemory's token set (the root reverts to holding a fresh
// sentinel), every NegationNode's inhibitor/emitted bookkeeping, and
// every ProductionNode's accumulated tokens, then re-drives every
// rule's chain head with the fresh sentinel exactly as AddRule does
// for a newly compiled rule — required for a negated-first-condition
// rule, whose match is produced only by that activation. The compiled
// network structure — AlphaMemories, join/negation nodes, beta chains,
// production nodes — is left in place, so no rule needs recompiling.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wm.clear()
	for _, am := range e.alphaByKey {
		am.items = nil
		for _, s := range am.successors {
			s.setRightLinked(false)
		}
	}
	e.sentinel = newSentinelToken()
	e.rootBeta.tokens = []*Token{e.sentinel}
	resetDownstream(e.rootBeta)
	for _, pn := range e.productions {
		pn.tokens = nil
	}

	// rootBeta.tokens was assigned directly above, not through
	// BetaMemory.Activate, so no chain head was actually left-activated
	// with the fresh sentinel. For a rule whose first condition is
	// negated, the only way its match is ever produced is exactly this
	// activation (a later matching fact can only inhibit it, never
	// create it) — without this, that production token is permanently
	// lost after Reset, which would violate AddRule's own replay
	// guarantee ("Reset; replay; run" must match an equivalent fresh
	// engine).
	for _, h := range e.heads {
		h.LeftActivate(e.sentinel)
	}
}

// resetDownstream clears every BetaMemory and NegationNode reachable
// below bm, and recomputes each JoinNode/NegationNode's leftLinked flag
// against the now-empty (or sentinel-only) state.
func resetDownstream(bm *BetaMemory) {
	nonEmpty := len(bm.tokens) > 0
	for _, s := range bm.successors {
		switch v := s.(type) {
		case *JoinNode:
			v.leftLinked = nonEmpty
			for _, succ := range v.successors {
				if next, ok := succ.(*BetaMemory); ok {
					next.tokens = nil
					resetDownstream(next)
				}
			}
		case *NegationNode:
			v.inhibitors = make(map[*Token][]*Fact)
			v.emitted = make(map[*Token]*Token)
			for _, succ := range v.successors {
				if next, ok := succ.(*BetaMemory); ok {
					next.tokens = nil
					resetDownstream(next)
				}
			}
		}
	}
}

// Rules returns the set of registered rules, keyed by name.
func (e *Engine) Rules() map[string]*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*Rule, len(e.rules))
	for k, v := range e.rules {
		out[k] = v
	}
	return out
}

// AlphaMemories returns the pattern-key to AlphaMemory sharing map.
func (e *Engine) AlphaMemories() map[string]*AlphaMemory {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*AlphaMemory, len(e.alphaByKey))
	for k, v := range e.alphaByKey {
		out[k] = v
	}
	return out
}

// Productions returns the rule-name to ProductionNode map.
func (e *Engine) Productions() map[string]*ProductionNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*ProductionNode, len(e.productions))
	for k, v := range e.productions {
		out[k] = v
	}
	return out
}

// Facts returns every fact currently in WorkingMemory.
func (e *Engine) Facts() []*Fact { return e.wm.Facts() }
