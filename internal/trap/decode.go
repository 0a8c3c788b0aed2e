package trap

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/gosnmp/gosnmp"

	"github.com/obsidianstack/trapbridge/internal/mib"
)

// PropEnterprise carries the enterprise OID of SNMPv1 traps.
const PropEnterprise = "enterprise"

// genericTrapPrefix is snmpTraps; v1 generic trap g maps to prefix.(g+1).
const genericTrapPrefix = "1.3.6.1.6.3.1.1.5"

// enterpriseSpecific is the v1 generic-trap value for vendor traps.
const enterpriseSpecific = 6

// Resolver maps numeric OIDs to symbols and raw values to display values.
// *mib.Table satisfies it.
type Resolver interface {
	Lookup(oid string) (mib.Symbol, string)
	Display(sym mib.Symbol, raw string) string
}

// Decode converts a received notification into a Record.
//
// SNMPv2c/v3 notifications take their identity from snmpTrapOID.0. SNMPv1
// traps are translated the RFC 3584 way: generic traps become the matching
// snmpTraps OID, enterprise-specific traps become enterprise.0.specific, and
// the agent timestamp becomes the sysUpTime argument.
//
// Every other variable binding becomes an argument keyed by its symbol with
// the instance index dropped. Unknown OIDs are kept under their numeric name.
func Decode(pkt *gosnmp.SnmpPacket, src Source, res Resolver) (*Record, error) {
	if pkt == nil {
		return nil, fmt.Errorf("trap: nil packet")
	}

	var trapOID string
	args := make(map[mib.Symbol]string, len(pkt.Variables)+1)
	props := src.Properties()

	if pkt.Version == gosnmp.Version1 && pkt.PDUType == gosnmp.Trap {
		trapOID = v1TrapOID(pkt.SnmpTrap)
		args[mib.SysUpTime] = strconv.FormatUint(uint64(pkt.Timestamp), 10)
		props[PropEnterprise] = mib.NormalizeOID(pkt.Enterprise)
	}

	for _, v := range pkt.Variables {
		name := mib.NormalizeOID(v.Name)
		sym, _ := res.Lookup(name)
		if sym == mib.SnmpTrapOID {
			if s, ok := v.Value.(string); ok {
				trapOID = mib.NormalizeOID(s)
			}
			continue
		}
		args[sym] = res.Display(sym, RenderValue(v))
	}

	if trapOID == "" {
		return nil, ErrNoIdentifier
	}

	// Trap identities resolve on exact OIDs only.
	id, index := res.Lookup(trapOID)
	if index != "" {
		id = mib.Symbol{Name: trapOID}
	}
	return NewRecord(trapOID, id, args, props)
}

func v1TrapOID(t gosnmp.SnmpTrap) string {
	if t.GenericTrap >= 0 && t.GenericTrap < enterpriseSpecific {
		return genericTrapPrefix + "." + strconv.Itoa(t.GenericTrap+1)
	}
	return mib.NormalizeOID(t.Enterprise) + ".0." + strconv.Itoa(t.SpecificTrap)
}

// RenderValue renders a variable binding's raw value by its ASN.1 type.
// Octet strings are text when printable and 0x-prefixed hex otherwise.
func RenderValue(v gosnmp.SnmpPDU) string {
	switch v.Type {
	case gosnmp.OctetString:
		b, ok := v.Value.([]byte)
		if !ok {
			return fmt.Sprint(v.Value)
		}
		return renderOctets(b)
	case gosnmp.ObjectIdentifier:
		if s, ok := v.Value.(string); ok {
			return mib.NormalizeOID(s)
		}
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks,
		gosnmp.Counter64, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(v.Value).String()
	case gosnmp.Null, gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView:
		return ""
	case gosnmp.Opaque, gosnmp.BitString:
		if b, ok := v.Value.([]byte); ok {
			return "0x" + hex.EncodeToString(b)
		}
	}
	if v.Value == nil {
		return ""
	}
	return fmt.Sprint(v.Value)
}

func renderOctets(b []byte) string {
	trimmed := bytes.TrimRight(b, "\x00")
	if printable(trimmed) {
		return string(trimmed)
	}
	return "0x" + hex.EncodeToString(b)
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	// A leading combining mark has nothing to attach to; short binary values
	// such as 0xdead decode that way.
	if first, _ := utf8.DecodeRune(b); len(b) > 0 && unicode.Is(unicode.M, first) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
