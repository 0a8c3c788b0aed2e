package types

import (
	"fmt"
	"math"
	"strings"
)

// Severity is the check status reported to the collector.
type Severity int

const (
	SeverityOK       Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

// String returns the upper-case name used in rule files.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Severity) Valid() bool {
	return s >= SeverityOK && s <= SeverityCritical
}

// ParseSeverity accepts a severity name (case-insensitive) or an integer
// status. JSON numbers decoded into interface{} arrive as float64 and are
// accepted when integral.
func ParseSeverity(v any) (Severity, error) {
	var s Severity
	switch x := v.(type) {
	case Severity:
		s = x
	case string:
		switch strings.ToUpper(strings.TrimSpace(x)) {
		case "OK":
			return SeverityOK, nil
		case "WARNING":
			return SeverityWarning, nil
		case "CRITICAL":
			return SeverityCritical, nil
		default:
			return 0, fmt.Errorf("unknown severity %q", x)
		}
	case int:
		s = Severity(x)
	case int64:
		s = Severity(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("severity %v is not an integer", x)
		}
		s = Severity(int(x))
	default:
		return 0, fmt.Errorf("unsupported severity type %T", v)
	}
	if !s.Valid() {
		return 0, fmt.Errorf("severity %d out of range [0, 2]", int(s))
	}
	return s, nil
}
