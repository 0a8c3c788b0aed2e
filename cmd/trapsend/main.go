// Command trapsend sends one SNMPv2c trap, for exercising a running
// trapbridge:
//
//	trapsend -target 127.0.0.1:1610 -oid 1.3.6.1.6.3.1.1.5.1 -var 1.3.6.1.2.1.1.5.0=web01
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	sysUpTimeOID   = ".1.3.6.1.2.1.1.3.0"
	snmpTrapOIDOID = ".1.3.6.1.6.3.1.1.4.1.0"
)

// varFlags collects repeated -var oid=value flags.
type varFlags []string

func (v *varFlags) String() string     { return strings.Join(*v, ",") }
func (v *varFlags) Set(s string) error { *v = append(*v, s); return nil }

func main() {
	target := flag.String("target", "127.0.0.1:1610", "trap receiver host:port")
	community := flag.String("community", "public", "SNMPv2c community")
	oid := flag.String("oid", "1.3.6.1.6.3.1.1.5.1", "notification OID (snmpTrapOID.0 value)")
	uptime := flag.Uint("uptime", 0, "sysUpTime.0 in hundredths of a second")
	inform := flag.Bool("inform", false, "send an inform and wait for the acknowledgment")
	var vars varFlags
	flag.Var(&vars, "var", "varbind as oid=value; value is sent as an integer when numeric, otherwise as a string (repeatable)")
	flag.Parse()

	if err := send(*target, *community, *oid, uint32(*uptime), *inform, vars); err != nil {
		fmt.Fprintf(os.Stderr, "trapsend: %v\n", err)
		os.Exit(1)
	}
}

func send(target, community, oid string, uptime uint32, inform bool, vars []string) error {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return fmt.Errorf("target %q: %w", target, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return fmt.Errorf("target port %q: %w", portStr, err)
	}

	pdus := []gosnmp.SnmpPDU{
		{Name: sysUpTimeOID, Type: gosnmp.TimeTicks, Value: uptime},
		{Name: snmpTrapOIDOID, Type: gosnmp.ObjectIdentifier, Value: dotted(oid)},
	}
	for _, v := range vars {
		pdu, err := parseVar(v)
		if err != nil {
			return err
		}
		pdus = append(pdus, pdu)
	}

	g := &gosnmp.GoSNMP{
		Target:    host,
		Port:      uint16(port),
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	if err := g.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer g.Conn.Close()

	if _, err := g.SendTrap(gosnmp.SnmpTrap{Variables: pdus, IsInform: inform}); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	fmt.Printf("sent %s to %s with %d varbinds\n", oid, target, len(vars))
	return nil
}

// parseVar turns "oid=value" into a varbind.
func parseVar(s string) (gosnmp.SnmpPDU, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return gosnmp.SnmpPDU{}, fmt.Errorf("-var %q: want oid=value", s)
	}
	if n, err := strconv.Atoi(value); err == nil {
		return gosnmp.SnmpPDU{Name: dotted(name), Type: gosnmp.Integer, Value: n}, nil
	}
	return gosnmp.SnmpPDU{Name: dotted(name), Type: gosnmp.OctetString, Value: []byte(value)}, nil
}

func dotted(oid string) string {
	return "." + strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
