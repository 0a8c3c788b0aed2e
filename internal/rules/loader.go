package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/obsidianstack/trapbridge/internal/mib"
	"github.com/obsidianstack/trapbridge/internal/trap"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

// DefaultHandler is used when a rule lists no handlers.
const DefaultHandler = "default"

// SymbolTable resolves rule identities. *mib.Table satisfies it.
type SymbolTable interface {
	Lookup(oid string) (mib.Symbol, string)
	OID(sym mib.Symbol) (string, bool)
}

// Loader parses rule files against a symbol table.
type Loader struct {
	table  SymbolTable
	logger *slog.Logger

	// OnReloadError, when set before Watch, is called for every reload
	// that failed and left the previous RuleSet in place.
	OnReloadError func(error)
}

// NewLoader returns a Loader resolving identities through table.
func NewLoader(table SymbolTable, logger *slog.Logger) *Loader {
	return &Loader{table: table, logger: logger.With("component", "rules")}
}

type rawRule struct {
	Trap struct {
		Type json.RawMessage            `json:"type"`
		Args map[string]json.RawMessage `json:"args"`
	} `json:"trap"`
	Event struct {
		Name     *string  `json:"name"`
		Output   *string  `json:"output"`
		Handlers []string `json:"handlers"`
		Severity any      `json:"severity"`
	} `json:"event"`
}

// LoadFile reads and parses the rule file at path.
func (l *Loader) LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %q: %w", path, err)
	}
	rs, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse decodes a rule document. Rules keep the order of their keys in the
// document, which is the order Match evaluates them in.
func (l *Loader) Parse(data []byte) (*RuleSet, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var rules []*Rule
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		id, _ := tok.(string)
		if seen[id] {
			return nil, fmt.Errorf("rules: duplicate rule id %q", id)
		}
		seen[id] = true

		var raw rawRule
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", id, err)
		}
		r, err := l.build(id, &raw)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %q: %w", id, err)
		}
		rules = append(rules, r)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rules: trailing data after rule object")
	}
	return NewRuleSet(rules)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("rules: expected %q, got %v", want, tok)
	}
	return nil
}

func (l *Loader) build(id string, raw *rawRule) (*Rule, error) {
	if len(raw.Trap.Type) == 0 {
		return nil, fmt.Errorf("trap.type is required")
	}
	trapID, err := l.identity(raw.Trap.Type, true)
	if err != nil {
		return nil, fmt.Errorf("trap.type: %w", err)
	}
	if raw.Event.Name == nil || *raw.Event.Name == "" {
		return nil, fmt.Errorf("event.name is required")
	}
	if raw.Event.Output == nil {
		return nil, fmt.Errorf("event.output is required")
	}
	if raw.Event.Severity == nil {
		return nil, fmt.Errorf("event.severity is required")
	}
	sev, err := severity(raw.Event.Severity)
	if err != nil {
		return nil, fmt.Errorf("event.severity: %w", err)
	}

	r := &Rule{
		ID:             id,
		Trap:           trapID,
		Args:           make(map[mib.Symbol]string, len(raw.Trap.Args)),
		NameTemplate:   *raw.Event.Name,
		OutputTemplate: *raw.Event.Output,
		Severity:       sev,
		Handlers:       slices.Clone(raw.Event.Handlers),
	}
	if len(r.Handlers) == 0 {
		r.Handlers = []string{DefaultHandler}
	}

	for token, rawID := range raw.Trap.Args {
		if token == "" {
			return nil, fmt.Errorf("trap.args: empty token name")
		}
		sym, err := l.identity(rawID, false)
		if err != nil {
			return nil, fmt.Errorf("trap.args.%s: %w", token, err)
		}
		if prev, dup := r.Args[sym]; dup {
			return nil, fmt.Errorf("trap.args: %s bound to both %q and %q", sym, prev, token)
		}
		r.Args[sym] = token
	}

	if err := l.checkTokens(r); err != nil {
		return nil, err
	}
	return r, nil
}

// identity decodes [module, symbol] or a numeric OID string. Numeric trap
// identities resolve only on an exact OID; argument identities drop the
// instance index the way decoded Records do.
func (l *Loader) identity(raw json.RawMessage, exact bool) (mib.Symbol, error) {
	var pair []string
	if err := json.Unmarshal(raw, &pair); err == nil {
		if len(pair) != 2 || pair[0] == "" || pair[1] == "" {
			return mib.Symbol{}, fmt.Errorf("want [module, symbol], got %s", raw)
		}
		sym := mib.Symbol{Module: pair[0], Name: pair[1]}
		if _, ok := l.table.OID(sym); !ok {
			l.logger.Warn("symbol not in mib table, numeric notifications will not match it", "symbol", sym.String())
		}
		return sym, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return mib.Symbol{}, fmt.Errorf("want [module, symbol] or an oid string, got %s", raw)
	}
	if strings.Contains(s, "::") {
		return mib.ParseSymbol(s)
	}
	if !mib.IsNumericOID(s) {
		return mib.Symbol{}, fmt.Errorf("%q is not a numeric oid", s)
	}
	oid := mib.NormalizeOID(s)
	sym, index := l.table.Lookup(oid)
	if !sym.Resolved() || (exact && index != "") {
		return mib.Symbol{Name: oid}, nil
	}
	return sym, nil
}

// checkTokens validates template syntax and warns about tokens that only a
// source property could bind.
func (l *Loader) checkTokens(r *Rule) error {
	known := map[string]bool{
		TokenOID:            true,
		TokenTrap:           true,
		trap.PropHostname:   true,
		trap.PropIPAddress:  true,
		trap.PropDomain:     true,
		trap.PropEnterprise: true,
	}
	for _, token := range r.Args {
		known[token] = true
	}
	for field, tpl := range map[string]string{"event.name": r.NameTemplate, "event.output": r.OutputTemplate} {
		tokens, err := Placeholders(tpl)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		for _, tok := range tokens {
			if !known[tok] {
				l.logger.Warn("template token is never bound by this rule", "rule", r.ID, "field", field, "token", tok)
			}
		}
	}
	return nil
}

// severity accepts a severity name or an integer JSON number.
func severity(v any) (types.Severity, error) {
	if n, ok := v.(json.Number); ok {
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid severity %s", n)
		}
		return types.ParseSeverity(i)
	}
	return types.ParseSeverity(v)
}
