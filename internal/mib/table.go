package mib

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the OID lookup cache.
const DefaultCacheSize = 4096

type lookupResult struct {
	sym   Symbol
	index string
}

// Table is an in-memory symbol resolver: built-in symbols plus whatever the
// configuration adds. Lookups resolve the longest registered prefix of an
// OID and cache the result.
//
// Table is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	byOID map[string]Symbol
	bySym map[Symbol]string
	enums map[Symbol]map[int64]string
	cache *lru.Cache[string, lookupResult]
}

// NewTable returns a Table pre-loaded with the built-in symbols.
func NewTable(cacheSize int) (*Table, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, lookupResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("mib: create cache: %w", err)
	}
	t := &Table{
		byOID: make(map[string]Symbol, len(builtinSymbols)),
		bySym: make(map[Symbol]string, len(builtinSymbols)),
		enums: make(map[Symbol]map[int64]string, len(builtinEnums)),
		cache: cache,
	}
	for sym, oid := range builtinSymbols {
		t.byOID[oid] = sym
		t.bySym[sym] = oid
	}
	for sym, vals := range builtinEnums {
		t.enums[sym] = vals
	}
	return t, nil
}

// Add registers sym at oid, replacing any previous mapping for either.
func (t *Table) Add(sym Symbol, oid string) error {
	if !sym.Resolved() {
		return fmt.Errorf("mib: symbol %q has no module", sym.Name)
	}
	oid = NormalizeOID(oid)
	if !IsNumericOID(oid) {
		return fmt.Errorf("mib: %s: invalid oid %q", sym, oid)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.bySym[sym]; ok {
		delete(t.byOID, old)
	}
	t.byOID[oid] = sym
	t.bySym[sym] = oid
	t.cache.Purge()
	return nil
}

// Extend adds configured symbols ("MODULE::name" -> OID) and enum labels.
// Keys are applied in sorted order so the first bad entry is reported
// deterministically.
func (t *Table) Extend(symbols map[string]string, enums map[string]map[int64]string) error {
	for _, key := range slices.Sorted(maps.Keys(symbols)) {
		sym, err := ParseSymbol(key)
		if err != nil {
			return fmt.Errorf("mib: symbols: %w", err)
		}
		if err := t.Add(sym, symbols[key]); err != nil {
			return err
		}
	}
	for _, key := range slices.Sorted(maps.Keys(enums)) {
		sym, err := ParseSymbol(key)
		if err != nil {
			return fmt.Errorf("mib: enums: %w", err)
		}
		t.AddEnum(sym, enums[key])
	}
	return nil
}

// AddEnum registers display labels for the integer values of sym.
func (t *Table) AddEnum(sym Symbol, values map[int64]string) {
	cp := make(map[int64]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	t.mu.Lock()
	t.enums[sym] = cp
	t.mu.Unlock()
}

// Lookup resolves oid to the symbol of its longest registered prefix and the
// remaining instance index ("0" for scalars). Unknown OIDs come back as an
// unresolved Symbol holding the OID itself and an empty index.
func (t *Table) Lookup(oid string) (Symbol, string) {
	oid = NormalizeOID(oid)
	if r, ok := t.cache.Get(oid); ok {
		return r.sym, r.index
	}

	t.mu.RLock()
	r := lookupResult{sym: Symbol{Name: oid}}
	arcs := strings.Split(oid, ".")
	for i := len(arcs); i > 0; i-- {
		if sym, ok := t.byOID[strings.Join(arcs[:i], ".")]; ok {
			r = lookupResult{sym: sym, index: strings.Join(arcs[i:], ".")}
			break
		}
	}
	t.mu.RUnlock()

	t.cache.Add(oid, r)
	return r.sym, r.index
}

// OID returns the registered OID for sym. Unresolved symbols return their
// own numeric name.
func (t *Table) OID(sym Symbol) (string, bool) {
	if !sym.Resolved() {
		return sym.Name, IsNumericOID(sym.Name)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	oid, ok := t.bySym[sym]
	return oid, ok
}

// Display converts a raw rendered value into its display form. Integers of
// enumerated objects become their label; everything else passes through.
func (t *Table) Display(sym Symbol, raw string) string {
	t.mu.RLock()
	vals, ok := t.enums[sym]
	t.mu.RUnlock()
	if !ok {
		return raw
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	if label, ok := vals[n]; ok {
		return label
	}
	return raw
}

// Len returns the number of registered symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bySym)
}
