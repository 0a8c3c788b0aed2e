package mib

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol is a resolved MIB object name. A Symbol with an empty Module
// carries an unresolved numeric OID in Name.
type Symbol struct {
	Module string
	Name   string
}

// Well-known SNMPv2-MIB objects.
var (
	SysUpTime          = Symbol{Module: "SNMPv2-MIB", Name: "sysUpTime"}
	SnmpTrapOID        = Symbol{Module: "SNMPv2-MIB", Name: "snmpTrapOID"}
	SnmpTrapEnterprise = Symbol{Module: "SNMPv2-MIB", Name: "snmpTrapEnterprise"}
)

// String renders MODULE::name, or the bare OID for unresolved symbols.
func (s Symbol) String() string {
	if s.Module == "" {
		return s.Name
	}
	return s.Module + "::" + s.Name
}

// IsZero reports whether s carries no name at all.
func (s Symbol) IsZero() bool { return s.Module == "" && s.Name == "" }

// Resolved reports whether s was mapped to a module.
func (s Symbol) Resolved() bool { return s.Module != "" }

// ParseSymbol accepts "MODULE::name" or a numeric OID.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	if mod, name, ok := strings.Cut(s, "::"); ok {
		if mod == "" || name == "" {
			return Symbol{}, fmt.Errorf("mib: malformed symbol %q", s)
		}
		return Symbol{Module: mod, Name: name}, nil
	}
	if IsNumericOID(s) {
		return Symbol{Name: NormalizeOID(s)}, nil
	}
	return Symbol{}, fmt.Errorf("mib: %q is neither MODULE::name nor a numeric OID", s)
}

// NormalizeOID strips surrounding space and the leading dot gosnmp emits.
func NormalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}

// IsNumericOID reports whether s is a dotted sequence of decimal arcs.
func IsNumericOID(s string) bool {
	s = NormalizeOID(s)
	if s == "" {
		return false
	}
	for _, arc := range strings.Split(s, ".") {
		if arc == "" {
			return false
		}
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return false
		}
	}
	return true
}
