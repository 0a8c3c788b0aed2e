package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/trapbridge/internal/config"
	"github.com/obsidianstack/trapbridge/internal/dispatch"
	"github.com/obsidianstack/trapbridge/internal/mib"
	"github.com/obsidianstack/trapbridge/internal/rules"
	"github.com/obsidianstack/trapbridge/internal/store"
	"github.com/obsidianstack/trapbridge/internal/trap"
	"github.com/obsidianstack/trapbridge/pkg/types"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("daemon: already started")

// Runner is a notification source. *trap.Receiver implements it.
type Runner interface {
	Run(ctx context.Context) error
	Ready() <-chan struct{}
}

// Metrics receives per-record counters. *metrics.Metrics implements it.
type Metrics interface {
	TrapReceived()
	TrapUnmatched()
	TransformFailed()
	EventEnqueued()
	SetRules(n int)
}

type nopMetrics struct{}

func (nopMetrics) TrapReceived()    {}
func (nopMetrics) TrapUnmatched()   {}
func (nopMetrics) TransformFailed() {}
func (nopMetrics) EventEnqueued()   {}
func (nopMetrics) SetRules(int)     {}

// Options configures a Coordinator. Only Config is required; every other
// component is built from it when left nil.
type Options struct {
	Config *config.Config
	Rules  *rules.RuleSet

	// Resolver and Hosts feed the trap receiver built when Receiver is nil.
	// A nil Resolver gets a table of the built-in symbols.
	Resolver trap.Resolver
	Hosts    *trap.HostResolver

	Receiver Runner
	Sender   dispatch.Dispatcher
	Queue    *dispatch.Queue
	Store    *store.Store

	Metrics  Metrics
	Recorder dispatch.Recorder

	// OnDelivered runs on the dispatch worker after each acknowledged event.
	OnDelivered func(*types.AlertEvent)
	// OnReject is passed to the trap receiver built by New.
	OnReject func(reason string)

	Logger *slog.Logger
}

// Status is a point-in-time view of the daemon for the API.
type Status struct {
	Running            bool                 `json:"running"`
	StartedAt          time.Time            `json:"started_at,omitempty"`
	Collector          string               `json:"collector"`
	CollectorConnected bool                 `json:"collector_connected"`
	CollectorCert      *dispatch.CertStatus `json:"collector_cert,omitempty"`
	QueueDepth         int                  `json:"queue_depth"`
	Rules              int                  `json:"rules"`
	Sources            int                  `json:"sources"`
}

// Coordinator owns the rule set, the delivery queue and the dispatch worker,
// and turns each received Record into a queued AlertEvent.
type Coordinator struct {
	cfg      *config.Config
	queue    *dispatch.Queue
	sender   dispatch.Dispatcher
	loop     *dispatch.Loop
	receiver Runner
	store    *store.Store
	metrics  Metrics
	logger   *slog.Logger

	rulesMu sync.RWMutex
	rules   *rules.RuleSet

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New wires a Coordinator from opts.
func New(opts Options) (*Coordinator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("daemon: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}
	q := opts.Queue
	if q == nil {
		q = dispatch.NewQueue()
	}

	c := &Coordinator{
		cfg:     opts.Config,
		queue:   q,
		store:   opts.Store,
		metrics: m,
		logger:  logger.With("component", "coordinator"),
	}
	c.SetRules(opts.Rules)

	c.sender = opts.Sender
	if c.sender == nil {
		s, err := dispatch.NewSender(opts.Config.Dispatcher, opts.Recorder, logger)
		if err != nil {
			return nil, err
		}
		c.sender = s
	}
	c.loop = dispatch.NewLoop(q, c.sender, opts.Config.Dispatcher.PollInterval.Duration(), opts.Recorder, logger)
	c.loop.OnDelivered = opts.OnDelivered

	c.receiver = opts.Receiver
	if c.receiver == nil {
		res := opts.Resolver
		if res == nil {
			tbl, err := mib.NewTable(opts.Config.MIBs.CacheSize)
			if err != nil {
				return nil, err
			}
			res = tbl
		}
		r, err := trap.NewReceiver(opts.Config.SNMP, res, opts.Hosts, c.OnRecord, logger)
		if err != nil {
			return nil, err
		}
		r.OnReject = opts.OnReject
		c.receiver = r
	}
	return c, nil
}

// OnRecord matches rec, renders the event and queues it. It never blocks on
// the network and never panics into the caller: unmatched records, template
// failures and malformed records are logged and dropped.
func (c *Coordinator) OnRecord(rec *trap.Record) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("record handling failed", "panic", r)
		}
	}()
	if rec == nil {
		c.logger.Warn("nil record dropped")
		return
	}
	c.metrics.TrapReceived()

	rule, ok := c.Rules().Match(rec)
	if c.store != nil {
		c.store.Record(rec, ok)
	}
	if !ok {
		c.metrics.TrapUnmatched()
		c.logger.Warn("no rule matched", "trap", rec.Identifier().String(), "source", rec.Source(), "args", rec.NumArgs())
		return
	}

	ev, err := rule.Transform(rec)
	if err != nil {
		c.metrics.TransformFailed()
		c.logger.Error("event dropped", "rule", rule.ID, "trap", rec.Identifier().String(), "err", err)
		return
	}

	c.queue.Enqueue(ev)
	c.metrics.EventEnqueued()
	c.logger.Debug("event queued", "event", ev.ID, "rule", rule.ID, "name", ev.Name, "depth", c.queue.Len())
}

// SetRules replaces the active rule set. A nil set disables matching.
func (c *Coordinator) SetRules(rs *rules.RuleSet) {
	c.rulesMu.Lock()
	c.rules = rs
	c.rulesMu.Unlock()
	c.metrics.SetRules(rs.Len())
}

// Rules returns the active rule set.
func (c *Coordinator) Rules() *rules.RuleSet {
	c.rulesMu.RLock()
	defer c.rulesMu.RUnlock()
	return c.rules
}

// Pending returns a copy of the undelivered events, oldest first.
func (c *Coordinator) Pending() []*types.AlertEvent { return c.queue.Pending() }

// Start runs the dispatch worker, the source eviction loop and the receiver.
// It returns once the receiver is listening, or with the receiver's bind
// error after stopping everything it started.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.startedAt = time.Now().UTC()
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop.Run(ctx)
	}()

	if c.store != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.store.Run(ctx)
		}()
	}

	errc := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.receiver.Run(ctx); err != nil {
			c.logger.Error("receiver stopped", "err", err)
			errc <- err
		}
	}()

	select {
	case <-c.receiver.Ready():
		c.logger.Info("daemon started", "collector", c.cfg.Dispatcher.Address(), "rules", c.Rules().Len())
		return nil
	case err := <-errc:
		c.Stop()
		return err
	case <-ctx.Done():
		return nil
	}
}

// Stop cancels the receiver and the dispatch worker and waits for both to
// return. An attempt in flight is abandoned; its event stays queued.
// Stop is idempotent and safe to call before Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	first := c.started && !c.stopped
	c.stopped = c.started
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	c.wg.Wait()
	if first {
		c.logger.Info("daemon stopped", "pending", c.queue.Len())
	}
}

// Status reports the daemon's current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	st := Status{
		Running:   c.started && !c.stopped,
		StartedAt: c.startedAt,
	}
	c.mu.Unlock()

	st.Collector = c.cfg.Dispatcher.Address()
	if cs, ok := c.sender.(interface{ Connected() bool }); ok {
		st.CollectorConnected = cs.Connected()
	}
	if cc, ok := c.sender.(interface{ CollectorCert() *dispatch.CertStatus }); ok {
		st.CollectorCert = cc.CollectorCert()
	}
	st.QueueDepth = c.queue.Len()
	st.Rules = c.Rules().Len()
	if c.store != nil {
		st.Sources = c.store.Count()
	}
	return st
}
