package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/trapbridge/internal/config"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

const (
	// ackPollInterval bounds each read while waiting for an acknowledgment.
	ackPollInterval = 100 * time.Millisecond

	// ackSettle is how long an unterminated "ok" must stand alone.
	ackSettle = 50 * time.Millisecond
)

var (
	// ErrNoAck means the collector sent nothing before the timeout.
	ErrNoAck = errors.New("dispatch: no acknowledgment")
	// ErrBadAck means the collector replied with something other than "ok".
	ErrBadAck = errors.New("dispatch: unexpected acknowledgment")
)

var ackOK = []byte("ok")

// DispatchError is a failed delivery attempt. Reason is one of
// ReasonConnect, ReasonWrite or ReasonAck.
type DispatchError struct {
	Reason string
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch: %s: %v", e.Reason, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// dialFunc opens the collector connection. Abstracted so tests can inject
// failures.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Sender delivers one event at a time over a persistent TCP connection and
// waits for the collector's "ok". Any failure discards the connection; the
// next Dispatch reconnects.
//
// Sender is not safe for concurrent Dispatch calls; it is owned by the
// dispatch worker.
type Sender struct {
	cfg       config.DispatcherConfig
	addr      string
	conn      net.Conn
	dialFn    dialFunc // injectable for tests
	rec       Recorder
	logger    *slog.Logger
	connected atomic.Bool
	cert      atomic.Pointer[CertStatus]
}

// NewSender builds a Sender for cfg. rec may be nil.
func NewSender(cfg config.DispatcherConfig, rec Recorder, logger *slog.Logger) (*Sender, error) {
	if rec == nil {
		rec = NopRecorder{}
	}
	s := &Sender{
		cfg:    cfg,
		addr:   cfg.Address(),
		rec:    rec,
		logger: logger.With("component", "sender", "collector", cfg.Address()),
	}

	dialer := &net.Dialer{Timeout: cfg.Timeout.Duration()}
	if cfg.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(cfg.TLS, cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("dispatch: build tls config: %w", err)
		}
		td := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
		s.dialFn = func(ctx context.Context, addr string) (net.Conn, error) {
			return td.DialContext(ctx, "tcp", addr)
		}
	} else {
		s.dialFn = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}
	return s, nil
}

// Dispatch sends ev and waits for its acknowledgment. nil means the
// collector accepted the event.
//
// A connect failure sleeps for the configured backoff before returning, so
// a caller retrying in a loop is throttled. Write and acknowledgment
// failures return at once.
func (s *Sender) Dispatch(ctx context.Context, ev *types.AlertEvent) error {
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
	}

	payload, err := ev.MarshalWire()
	if err != nil {
		return err
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.Timeout.Duration()))
	if _, err := s.conn.Write(payload); err != nil {
		return s.fail(ReasonWrite, err)
	}
	if !s.cfg.CheckResponse {
		return nil
	}
	if err := s.awaitAck(ctx); err != nil {
		if ctx.Err() != nil {
			// Shutdown, not a collector fault; the event stays queued.
			s.drop()
			return ctx.Err()
		}
		return s.fail(ReasonAck, err)
	}
	return nil
}

func (s *Sender) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout.Duration())
	conn, err := s.dialFn(dialCtx, s.addr)
	cancel()
	if err != nil {
		s.rec.DispatchFailed(ReasonConnect)
		s.setConnected(false)
		wait := s.cfg.Backoff.Duration()
		s.logger.Warn("connect failed, backing off", "err", err, "retry_in", wait)
		if serr := sleepCtx(ctx, wait); serr != nil {
			return serr
		}
		return &DispatchError{Reason: ReasonConnect, Err: err}
	}
	s.conn = conn
	s.setConnected(true)
	if tc, ok := conn.(*tls.Conn); ok {
		if cs := certStatus(tc.ConnectionState(), time.Now()); cs != nil {
			s.cert.Store(cs)
			if cs.Status != "valid" {
				s.logger.Warn("collector certificate "+cs.Status, "subject", cs.Subject, "not_after", cs.NotAfter, "days_left", cs.DaysLeft)
			}
		}
	}
	s.logger.Info("connected")
	return nil
}

// awaitAck reads until the trimmed reply is decided or the timeout elapses.
// Read timeouts inside the window are retried. An "ok" without a line end is
// held for ackSettle so a longer reply arriving in pieces is not mistaken
// for it.
func (s *Sender) awaitAck(ctx context.Context) error {
	deadline := time.Now().Add(s.cfg.Timeout.Duration())
	var reply bytes.Buffer
	chunk := make([]byte, 256)
	settling := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		_ = s.conn.SetReadDeadline(now.Add(min(deadline.Sub(now), ackPollInterval)))

		n, err := s.conn.Read(chunk)
		reply.Write(chunk[:n])

		if done, ackErr := judgeAck(reply.Bytes()); done {
			return ackErr
		}
		if !settling && bytes.Equal(bytes.TrimSpace(reply.Bytes()), ackOK) {
			settling = true
			deadline = minTime(deadline, time.Now().Add(ackSettle))
		}
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if settling {
				return nil
			}
			return fmt.Errorf("%w: connection closed after %q", ErrNoAck, reply.Bytes())
		}
		return err
	}

	if reply.Len() == 0 {
		return ErrNoAck
	}
	if bytes.Equal(bytes.TrimSpace(reply.Bytes()), ackOK) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrBadAck, reply.Bytes())
}

// judgeAck decides on a partial reply. A complete line is accepted only when
// it trims to "ok"; a reply that can no longer become "ok" fails at once.
func judgeAck(reply []byte) (bool, error) {
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) == 0 {
		return false, nil
	}
	if !bytes.HasPrefix(trimmed, ackOK) && !bytes.HasPrefix(ackOK, trimmed) {
		return true, fmt.Errorf("%w: %q", ErrBadAck, reply)
	}
	if bytes.IndexByte(reply, '\n') < 0 {
		if len(trimmed) > len(ackOK) {
			return true, fmt.Errorf("%w: %q", ErrBadAck, reply)
		}
		return false, nil
	}
	if bytes.Equal(trimmed, ackOK) {
		return true, nil
	}
	return true, fmt.Errorf("%w: %q", ErrBadAck, reply)
}

func minTime(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func (s *Sender) fail(reason string, err error) error {
	s.rec.DispatchFailed(reason)
	s.logger.Warn("delivery failed, dropping connection", "reason", reason, "err", err)
	s.drop()
	return &DispatchError{Reason: reason, Err: err}
}

func (s *Sender) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.setConnected(false)
}

func (s *Sender) setConnected(v bool) {
	if s.connected.Swap(v) != v {
		s.rec.CollectorConnected(v)
	}
}

// Connected reports whether a collector connection is open.
// Safe to call from any goroutine.
func (s *Sender) Connected() bool { return s.connected.Load() }

// CollectorCert returns the certificate status from the last TLS connection,
// or nil when TLS is off or no connection has been made.
// Safe to call from any goroutine.
func (s *Sender) CollectorCert() *CertStatus { return s.cert.Load() }

// Close releases the connection. Call it from the goroutine that owns the
// Sender.
func (s *Sender) Close() error {
	s.drop()
	return nil
}

// buildTLSConfig loads the optional client certificate and CA.
func buildTLSConfig(c config.TLSConfig, serverName string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for internal CAs
		MinVersion:         tls.VersionTLS12,
	}

	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if c.CAFile != "" {
		caPEM, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", c.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
