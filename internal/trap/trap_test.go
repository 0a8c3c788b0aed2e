package trap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/obsidianstack/trapbridge/internal/config"
	"github.com/obsidianstack/trapbridge/internal/mib"
)

var (
	coldStart = mib.Symbol{Module: "SNMPv2-MIB", Name: "coldStart"}
	linkDown  = mib.Symbol{Module: "IF-MIB", Name: "linkDown"}
	ifIndex   = mib.Symbol{Module: "IF-MIB", Name: "ifIndex"}
	ifOper    = mib.Symbol{Module: "IF-MIB", Name: "ifOperStatus"}
	ifDescr   = mib.Symbol{Module: "IF-MIB", Name: "ifDescr"}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTable(t *testing.T) *mib.Table {
	t.Helper()
	tbl, err := mib.NewTable(64)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func testSource() Source {
	return Source{Address: "10.0.0.5", Hostname: "web01", Domain: "example.com"}
}

func mustDecode(t *testing.T, pkt *gosnmp.SnmpPacket, tbl *mib.Table) *Record {
	t.Helper()
	r, err := Decode(pkt, testSource(), tbl)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return r
}

func TestNewRecord(t *testing.T) {
	args := map[mib.Symbol]string{ifIndex: "3"}
	props := map[string]string{PropIPAddress: "10.0.0.5"}

	r, err := NewRecord(".1.3.6.1.6.3.1.1.5.3", linkDown, args, props)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}

	args[ifIndex] = "mutated"
	props[PropIPAddress] = "mutated"

	if v, ok := r.Arg(ifIndex); !ok || v != "3" {
		t.Errorf("Arg(ifIndex): got (%q, %v), want (\"3\", true)", v, ok)
	}
	if got := r.Source(); got != "10.0.0.5" {
		t.Errorf("Source(): got %q", got)
	}
	if got := r.OID(); got != "1.3.6.1.6.3.1.1.5.3" {
		t.Errorf("OID(): got %q", got)
	}
	if got := r.Identifier(); got != linkDown {
		t.Errorf("Identifier(): got %v", got)
	}

	for _, k := range []string{PropHostname, PropIPAddress, PropDomain} {
		if _, ok := r.Property(k); !ok {
			t.Errorf("property %s must be present", k)
		}
	}
}

func TestNewRecord_ZeroIdentifier(t *testing.T) {
	_, err := NewRecord("1.3.6", mib.Symbol{}, nil, nil)
	if !errors.Is(err, ErrNoIdentifier) {
		t.Errorf("NewRecord: got %v, want %v", err, ErrNoIdentifier)
	}
}

func TestNewRecord_UnresolvedKeepsOID(t *testing.T) {
	r, err := NewRecord("", mib.Symbol{Name: "1.3.6.1.4.1.9.0.1"}, nil, nil)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if got := r.OID(); got != "1.3.6.1.4.1.9.0.1" {
		t.Errorf("OID(): got %q", got)
	}
}

func TestArgumentKeys_Sorted(t *testing.T) {
	r, err := NewRecord("1.3.6.1.6.3.1.1.5.3", linkDown, map[mib.Symbol]string{
		ifOper:        "down",
		mib.SysUpTime: "1",
		ifIndex:       "3",
	}, nil)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	want := []mib.Symbol{ifIndex, ifOper, mib.SysUpTime}
	if got := r.ArgumentKeys(); !slices.Equal(got, want) {
		t.Errorf("ArgumentKeys(): got %v, want %v", got, want)
	}
}

func TestDecode_V2c(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		PDUType:   gosnmp.SNMPv2Trap,
		Community: "public",
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(4711)},
			{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.6.3.1.1.5.3"},
			{Name: ".1.3.6.1.2.1.2.2.1.1.3", Type: gosnmp.Integer, Value: 3},
			{Name: ".1.3.6.1.2.1.2.2.1.8.3", Type: gosnmp.Integer, Value: 2},
			{Name: ".1.3.6.1.2.1.2.2.1.2.3", Type: gosnmp.OctetString, Value: []byte("eth0")},
			{Name: ".1.3.6.1.4.1.99999.1.1", Type: gosnmp.OctetString, Value: []byte{0xde, 0xad}},
		},
	}

	r := mustDecode(t, pkt, newTable(t))

	if got := r.Identifier(); got != linkDown {
		t.Errorf("Identifier(): got %v, want %v", got, linkDown)
	}
	if got := r.OID(); got != "1.3.6.1.6.3.1.1.5.3" {
		t.Errorf("OID(): got %q", got)
	}
	if n := r.NumArgs(); n != 5 {
		t.Errorf("NumArgs(): got %d, want 5 (snmpTrapOID is not an argument)", n)
	}

	want := map[mib.Symbol]string{
		mib.SysUpTime:                   "4711",
		ifIndex:                         "3",
		ifOper:                          "down",
		ifDescr:                         "eth0",
		{Name: "1.3.6.1.4.1.99999.1.1"}: "0xdead",
	}
	for sym, v := range want {
		got, ok := r.Arg(sym)
		if !ok {
			t.Errorf("missing argument %s", sym)
			continue
		}
		if got != v {
			t.Errorf("%s: got %q, want %q", sym, got, v)
		}
	}

	if host, _ := r.Property(PropHostname); host != "web01" {
		t.Errorf("hostname: got %q, want web01", host)
	}
}

func TestDecode_V1Generic(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version1,
		PDUType:   gosnmp.Trap,
		Community: "public",
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:  ".1.3.6.1.4.1.8072.3.2.10",
			GenericTrap: 0,
			Timestamp:   99,
		},
	}

	r := mustDecode(t, pkt, newTable(t))
	if got := r.Identifier(); got != coldStart {
		t.Errorf("Identifier(): got %v, want %v", got, coldStart)
	}
	if up, ok := r.Arg(mib.SysUpTime); !ok || up != "99" {
		t.Errorf("sysUpTime: got (%q, %v), want (\"99\", true)", up, ok)
	}
	if ent, _ := r.Property(PropEnterprise); ent != "1.3.6.1.4.1.8072.3.2.10" {
		t.Errorf("enterprise: got %q", ent)
	}
}

func TestDecode_V1EnterpriseSpecific(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version1,
		PDUType: gosnmp.Trap,
		SnmpTrap: gosnmp.SnmpTrap{
			Enterprise:   ".1.3.6.1.4.1.99999",
			GenericTrap:  6,
			SpecificTrap: 7,
		},
	}

	r := mustDecode(t, pkt, newTable(t))
	if r.Identifier().Resolved() {
		t.Errorf("Identifier(): got resolved %v", r.Identifier())
	}
	if got := r.OID(); got != "1.3.6.1.4.1.99999.0.7" {
		t.Errorf("OID(): got %q", got)
	}
}

func TestDecode_TrapIdentityNeedsExactOID(t *testing.T) {
	tbl := newTable(t)
	if err := tbl.Add(mib.Symbol{Module: "ACME-MIB", Name: "acme"}, "1.3.6.1.4.1.99999"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		PDUType: gosnmp.SNMPv2Trap,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.99999.0.5"},
		},
	}
	r := mustDecode(t, pkt, tbl)
	if want := (mib.Symbol{Name: "1.3.6.1.4.1.99999.0.5"}); r.Identifier() != want {
		t.Errorf("Identifier(): got %v, want %v", r.Identifier(), want)
	}
}

func TestDecode_NoIdentifier(t *testing.T) {
	pkt := &gosnmp.SnmpPacket{
		Version: gosnmp.Version2c,
		PDUType: gosnmp.SNMPv2Trap,
		Variables: []gosnmp.SnmpPDU{
			{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(1)},
		},
	}
	_, err := Decode(pkt, testSource(), newTable(t))
	if !errors.Is(err, ErrNoIdentifier) {
		t.Errorf("Decode: got %v, want %v", err, ErrNoIdentifier)
	}
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want string
	}{
		{"text", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("core-sw1")}, "core-sw1"},
		{"text nul padded", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("ab\x00\x00")}, "ab"},
		{"utf8 text", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0xc3, 0xa9}}, "é"},
		{"binary", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0x00, 0x1b, 0x21}}, "0x001b21"},
		{"binary leading nul", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0x00, 0x41}}, "0x0041"},
		{"binary valid utf8 mark", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0xde, 0xad}}, "0xdead"},
		{"empty", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{}}, ""},
		{"oid", gosnmp.SnmpPDU{Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.4.1.9"}, "1.3.6.1.4.1.9"},
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -5}, "-5"},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(1 << 40)}, "1099511627776"},
		{"gauge", gosnmp.SnmpPDU{Type: gosnmp.Gauge32, Value: uint(42)}, "42"},
		{"ip", gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "192.0.2.1"}, "192.0.2.1"},
		{"null", gosnmp.SnmpPDU{Type: gosnmp.Null}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RenderValue(tc.pdu); got != tc.want {
				t.Errorf("RenderValue: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHostResolver(t *testing.T) {
	h, err := NewHostResolver(true, time.Second, 8, discardLogger())
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}

	calls := 0
	h.lookup = func(_ context.Context, addr string) ([]string, error) {
		calls++
		switch addr {
		case "10.0.0.5":
			return []string{"web01.dc1.example.com."}, nil
		case "10.0.0.6":
			return []string{"printer"}, nil
		}
		return nil, errors.New("no PTR record")
	}

	cases := []struct {
		addr string
		want Source
	}{
		{"10.0.0.5", Source{Address: "10.0.0.5", Hostname: "web01", Domain: "dc1.example.com"}},
		{"10.0.0.6", Source{Address: "10.0.0.6", Hostname: "printer", Domain: ""}},
		{"10.0.0.7", Source{Address: "10.0.0.7", Hostname: "10.0.0.7", Domain: "10.0.0.7"}},
	}
	for _, tc := range cases {
		if got := h.Resolve(context.Background(), tc.addr); got != tc.want {
			t.Errorf("Resolve(%s): got %+v, want %+v", tc.addr, got, tc.want)
		}
	}

	h.Resolve(context.Background(), "10.0.0.5")
	h.Resolve(context.Background(), "10.0.0.7")
	if calls != 3 {
		t.Errorf("lookups: got %d, want 3 (repeats served from cache)", calls)
	}
}

func TestHostResolver_Disabled(t *testing.T) {
	h, err := NewHostResolver(false, time.Second, 8, discardLogger())
	if err != nil {
		t.Fatalf("NewHostResolver: %v", err)
	}
	h.lookup = func(context.Context, string) ([]string, error) {
		t.Fatal("lookup called while disabled")
		return nil, nil
	}
	if got := h.Resolve(context.Background(), "10.0.0.5"); got.Hostname != "10.0.0.5" {
		t.Errorf("Hostname: got %q, want the address", got.Hostname)
	}
}

func newReceiver(t *testing.T, cfg config.SNMPConfig, handler Handler) *Receiver {
	t.Helper()
	r, err := NewReceiver(cfg, newTable(t), nil, handler, discardLogger())
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	return r
}

func TestReceiver_Authorize(t *testing.T) {
	cfg := config.Defaults().SNMP
	cfg.Version2.Community = "s3cret"
	r := newReceiver(t, cfg, func(*Record) {})

	cases := []struct {
		name string
		pkt  *gosnmp.SnmpPacket
		want string
	}{
		{"v2c ok", &gosnmp.SnmpPacket{Version: gosnmp.Version2c, Community: "s3cret"}, ""},
		{"v1 ok", &gosnmp.SnmpPacket{Version: gosnmp.Version1, Community: "s3cret"}, ""},
		{"bad community", &gosnmp.SnmpPacket{Version: gosnmp.Version2c, Community: "public"}, RejectCommunity},
		{"v3 disabled", &gosnmp.SnmpPacket{Version: gosnmp.Version3}, RejectVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.authorize(tc.pkt); got != tc.want {
				t.Errorf("authorize: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReceiver_AuthorizeV3(t *testing.T) {
	cfg := config.Defaults().SNMP
	cfg.Version2.Enabled = false
	cfg.Version3 = config.V3Config{Enabled: true, User: "monitor", AuthProtocol: "SHA"}
	r := newReceiver(t, cfg, func(*Record) {})

	v3 := func(flags gosnmp.SnmpV3MsgFlags, user string) *gosnmp.SnmpPacket {
		return &gosnmp.SnmpPacket{
			Version:            gosnmp.Version3,
			MsgFlags:           flags,
			SecurityParameters: &gosnmp.UsmSecurityParameters{UserName: user},
		}
	}
	cases := []struct {
		name string
		pkt  *gosnmp.SnmpPacket
		want string
	}{
		{"ok", v3(gosnmp.AuthNoPriv, "monitor"), ""},
		{"wrong user", v3(gosnmp.AuthNoPriv, "guest"), RejectUser},
		{"below security level", v3(gosnmp.NoAuthNoPriv, "monitor"), RejectSecurity},
		{"v2c disabled", &gosnmp.SnmpPacket{Version: gosnmp.Version2c, Community: "public"}, RejectVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.authorize(tc.pkt); got != tc.want {
				t.Errorf("authorize: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestReceiver_EndToEnd(t *testing.T) {
	port := freeUDPPort(t)
	cfg := config.Defaults().SNMP
	cfg.ListenPort = port

	got := make(chan *Record, 1)
	r := newReceiver(t, cfg, func(rec *Record) { got <- rec })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-r.Ready():
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("receiver never became ready")
	}

	sender := &gosnmp.GoSNMP{
		Target:    "127.0.0.1",
		Port:      uint16(port),
		Community: config.DefaultCommunity,
		Version:   gosnmp.Version2c,
		Timeout:   time.Second,
	}
	if err := sender.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sender.Conn.Close()

	_, err := sender.SendTrap(gosnmp.SnmpTrap{Variables: []gosnmp.SnmpPDU{
		{Name: ".1.3.6.1.2.1.1.3.0", Type: gosnmp.TimeTicks, Value: uint32(100)},
		{Name: ".1.3.6.1.6.3.1.1.4.1.0", Type: gosnmp.ObjectIdentifier, Value: ".1.3.6.1.6.3.1.1.5.1"},
	}})
	if err != nil {
		t.Fatalf("SendTrap: %v", err)
	}

	select {
	case rec := <-got:
		if rec.Identifier() != coldStart {
			t.Errorf("Identifier(): got %v, want %v", rec.Identifier(), coldStart)
		}
		if rec.Source() != "127.0.0.1" {
			t.Errorf("Source(): got %q", rec.Source())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no record received")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func freeUDPPort(t *testing.T) int {
	t.Helper()
	c, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	port := c.LocalAddr().(*net.UDPAddr).Port
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return port
}
