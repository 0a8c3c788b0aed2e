package rules

import (
	"fmt"

	"github.com/obsidianstack/trapbridge/internal/mib"
	"github.com/obsidianstack/trapbridge/internal/trap"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

// Tokens always bound before rule arguments.
const (
	TokenOID  = "oid"
	TokenTrap = "trap"
)

// Rule maps one trap identity to an alert event.
// A Rule is immutable after load.
type Rule struct {
	// ID is the rule's key in the rule file.
	ID string

	// Trap is the identity a Record must carry to match.
	Trap mib.Symbol

	// Args maps each recognised argument identity to its template token.
	Args map[mib.Symbol]string

	NameTemplate   string
	OutputTemplate string
	Severity       types.Severity
	Handlers       []string
}

// Matches reports whether rec has the rule's identity and carries no
// arguments beyond the rule's Args and the implicit sysUpTime.
func (r *Rule) Matches(rec *trap.Record) bool {
	if rec.Identifier() != r.Trap {
		return false
	}
	for sym := range rec.Arguments() {
		if sym == mib.SysUpTime {
			continue
		}
		if _, ok := r.Args[sym]; !ok {
			return false
		}
	}
	return true
}

// Bindings builds the substitution table for rec. Later layers override
// earlier ones: oid and trap, then the source properties, then the values
// of the rule's arguments under their tokens.
func (r *Rule) Bindings(rec *trap.Record) map[string]string {
	b := make(map[string]string, 5+len(r.Args))
	b[TokenOID] = rec.OID()
	b[TokenTrap] = rec.Identifier().String()
	for k, v := range rec.Properties() {
		b[k] = v
	}
	for sym, token := range r.Args {
		if v, ok := rec.Arg(sym); ok {
			b[token] = v
		}
	}
	return b
}

// Transform renders both templates against rec and builds the event.
// An unbound token fails with *TemplateBindingError.
func (r *Rule) Transform(rec *trap.Record) (*types.AlertEvent, error) {
	b := r.Bindings(rec)
	name, err := Render(r.NameTemplate, b)
	if err != nil {
		return nil, fmt.Errorf("rule %s: name: %w", r.ID, err)
	}
	output, err := Render(r.OutputTemplate, b)
	if err != nil {
		return nil, fmt.Errorf("rule %s: output: %w", r.ID, err)
	}
	ev := types.NewAlertEvent(name, output, r.Severity, r.Handlers)
	ev.Rule = r.ID
	return ev, nil
}

func (r *Rule) String() string {
	return fmt.Sprintf("<Rule %s trap=%s args=%d>", r.ID, r.Trap, len(r.Args))
}

// RuleSet is an ordered, immutable collection of rules.
type RuleSet struct {
	rules  []*Rule
	byTrap map[mib.Symbol][]*Rule
}

// NewRuleSet indexes rules, keeping their order. Rule IDs must be unique.
func NewRuleSet(rules []*Rule) (*RuleSet, error) {
	s := &RuleSet{
		rules:  make([]*Rule, 0, len(rules)),
		byTrap: make(map[mib.Symbol][]*Rule),
	}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.ID] {
			return nil, fmt.Errorf("rules: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		s.rules = append(s.rules, r)
		s.byTrap[r.Trap] = append(s.byTrap[r.Trap], r)
	}
	return s, nil
}

// Match returns the first rule, in declaration order, that matches rec.
func (s *RuleSet) Match(rec *trap.Record) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	for _, r := range s.byTrap[rec.Identifier()] {
		if r.Matches(rec) {
			return r, true
		}
	}
	return nil, false
}

// Rules returns the rules in declaration order.
func (s *RuleSet) Rules() []*Rule {
	if s == nil {
		return nil
	}
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
