package trap

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"

	"github.com/obsidianstack/trapbridge/internal/config"
)

// Reject reasons reported through Receiver.OnReject.
const (
	RejectVersion   = "version"
	RejectCommunity = "community"
	RejectUser      = "user"
	RejectSecurity  = "security_level"
	RejectDecode    = "decode"
)

// Handler receives each accepted, decoded Record. It runs on the listener
// goroutine and must not block on network I/O.
type Handler func(*Record)

// Receiver listens for SNMP notifications, authenticates them against the
// configured community and USM user, decodes them into Records and hands
// them to a Handler. Informs are acknowledged by the listener itself.
type Receiver struct {
	cfg      config.SNMPConfig
	resolver Resolver
	hosts    *HostResolver
	handler  Handler
	logger   *slog.Logger

	// OnReject, when set before Run, is called with the reason for every
	// dropped notification.
	OnReject func(reason string)

	listener  *gosnmp.TrapListener
	v3Flags   gosnmp.SnmpV3MsgFlags
	ready     chan struct{}
	readyOnce sync.Once
}

// NewReceiver builds a Receiver for cfg. hosts may be nil, in which case
// sources are not reverse-resolved.
func NewReceiver(cfg config.SNMPConfig, res Resolver, hosts *HostResolver, handler Handler, logger *slog.Logger) (*Receiver, error) {
	if handler == nil {
		return nil, fmt.Errorf("trap: nil handler")
	}
	log := logger.With("component", "receiver")

	params := &gosnmp.GoSNMP{
		Version:   gosnmp.Version2c,
		Community: cfg.Version2.Community,
		Logger:    gosnmp.NewLogger(slog.NewLogLogger(log.Handler(), slog.LevelDebug)),
	}
	var flags gosnmp.SnmpV3MsgFlags
	if cfg.Version3.Enabled {
		usm, f, err := usmParams(cfg.Version3)
		if err != nil {
			return nil, err
		}
		params.Version = gosnmp.Version3
		params.SecurityModel = gosnmp.UserSecurityModel
		params.MsgFlags = f
		params.SecurityParameters = usm
		flags = f
	}

	tl := gosnmp.NewTrapListener()
	tl.Params = params

	r := &Receiver{
		cfg:      cfg,
		resolver: res,
		hosts:    hosts,
		handler:  handler,
		logger:   log,
		listener: tl,
		v3Flags:  flags,
		ready:    make(chan struct{}),
	}
	tl.OnNewTrap = r.handle
	return r, nil
}

// Run binds the UDP listener and serves until ctx is cancelled.
// A bind failure is returned immediately.
func (r *Receiver) Run(ctx context.Context) error {
	addr := r.cfg.Address()
	errc := make(chan error, 1)
	go func() { errc <- r.listener.Listen(addr) }()

	select {
	case <-r.listener.Listening():
		r.readyOnce.Do(func() { close(r.ready) })
		r.logger.Info("listening", "addr", addr,
			"v2c", r.cfg.Version2.Enabled, "v3", r.cfg.Version3.Enabled)
	case err := <-errc:
		return fmt.Errorf("trap: listen %s: %w", addr, err)
	case <-ctx.Done():
		// Listen may still be binding; wait for it so Close has a socket.
		select {
		case <-r.listener.Listening():
			r.listener.Close()
			<-errc
		case <-errc:
		}
		return nil
	}

	select {
	case <-ctx.Done():
		r.listener.Close()
		<-errc
		r.logger.Info("stopped", "addr", addr)
		return nil
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("trap: listener %s: %w", addr, err)
		}
		return nil
	}
}

// Ready is closed once the listener is bound.
func (r *Receiver) Ready() <-chan struct{} { return r.ready }

func (r *Receiver) handle(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	ip := ""
	if addr != nil {
		ip = addr.IP.String()
	}
	if reason := r.authorize(pkt); reason != "" {
		r.logger.Warn("notification rejected", "source", ip, "version", pkt.Version.String(), "reason", reason)
		r.reject(reason)
		return
	}

	src := Source{Address: ip, Hostname: ip, Domain: ip}
	if r.hosts != nil {
		src = r.hosts.Resolve(context.Background(), ip)
	}

	rec, err := Decode(pkt, src, r.resolver)
	if err != nil {
		r.logger.Warn("notification dropped", "source", ip, "err", err)
		r.reject(RejectDecode)
		return
	}
	r.logger.Debug("notification received", "source", ip, "trap", rec.Identifier().String(), "args", rec.NumArgs())
	r.handler(rec)
}

// authorize returns a reject reason, or "" when pkt is acceptable.
func (r *Receiver) authorize(pkt *gosnmp.SnmpPacket) string {
	switch pkt.Version {
	case gosnmp.Version1, gosnmp.Version2c:
		if !r.cfg.Version2.Enabled {
			return RejectVersion
		}
		if subtle.ConstantTimeCompare([]byte(pkt.Community), []byte(r.cfg.Version2.Community)) != 1 {
			return RejectCommunity
		}
	case gosnmp.Version3:
		if !r.cfg.Version3.Enabled {
			return RejectVersion
		}
		usm, ok := pkt.SecurityParameters.(*gosnmp.UsmSecurityParameters)
		if !ok || usm.UserName != r.cfg.Version3.User {
			return RejectUser
		}
		need := r.v3Flags & gosnmp.AuthPriv
		if pkt.MsgFlags&need != need {
			return RejectSecurity
		}
	default:
		return RejectVersion
	}
	return ""
}

func (r *Receiver) reject(reason string) {
	if r.OnReject != nil {
		r.OnReject(reason)
	}
}

func usmParams(v3 config.V3Config) (*gosnmp.UsmSecurityParameters, gosnmp.SnmpV3MsgFlags, error) {
	usm := &gosnmp.UsmSecurityParameters{
		UserName:               v3.User,
		AuthenticationProtocol: gosnmp.NoAuth,
		PrivacyProtocol:        gosnmp.NoPriv,
	}
	if v3.EngineID != "" {
		id, err := v3.EngineIDBytes()
		if err != nil {
			return nil, 0, fmt.Errorf("trap: engine id: %w", err)
		}
		usm.AuthoritativeEngineID = string(id)
	}

	flags := gosnmp.NoAuthNoPriv
	if v3.AuthProtocol != "" {
		p, ok := authProtocols[strings.ToUpper(v3.AuthProtocol)]
		if !ok {
			return nil, 0, fmt.Errorf("trap: unknown auth protocol %q", v3.AuthProtocol)
		}
		usm.AuthenticationProtocol = p
		usm.AuthenticationPassphrase = v3.AuthPassphrase()
		flags = gosnmp.AuthNoPriv
	}
	if v3.PrivProtocol != "" {
		p, ok := privProtocols[strings.ToUpper(v3.PrivProtocol)]
		if !ok {
			return nil, 0, fmt.Errorf("trap: unknown privacy protocol %q", v3.PrivProtocol)
		}
		usm.PrivacyProtocol = p
		usm.PrivacyPassphrase = v3.PrivPassphrase()
		flags = gosnmp.AuthPriv
	}
	return usm, flags, nil
}

var authProtocols = map[string]gosnmp.SnmpV3AuthProtocol{
	"MD5":    gosnmp.MD5,
	"SHA":    gosnmp.SHA,
	"SHA224": gosnmp.SHA224,
	"SHA256": gosnmp.SHA256,
	"SHA384": gosnmp.SHA384,
	"SHA512": gosnmp.SHA512,
}

var privProtocols = map[string]gosnmp.SnmpV3PrivProtocol{
	"DES":     gosnmp.DES,
	"AES":     gosnmp.AES,
	"AES192":  gosnmp.AES192,
	"AES256":  gosnmp.AES256,
	"AES192C": gosnmp.AES192C,
	"AES256C": gosnmp.AES256C,
}
