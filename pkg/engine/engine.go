package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/conciliation"
	"supvisors/pkg/config"
	"supvisors/pkg/eventloop"
	"supvisors/pkg/events"
	"supvisors/pkg/failurehandler"
	"supvisors/pkg/fsm"
	"supvisors/pkg/log"
	"supvisors/pkg/rpc"
	"supvisors/pkg/starter"
	"supvisors/pkg/state"
	"supvisors/pkg/stopper"
	"supvisors/pkg/types"
)

// Config parameterizes a single node's Engine. Nodes, Local, and the
// rules Document are the populated configuration the core consumes per
// spec.md §1 ("configuration parsing... is out of scope").
type Config struct {
	Local       string
	Nodes       []string
	Rules       *config.Document
	Transport   eventloop.Transport
	TickPeriod  time.Duration
	RPCDeadline time.Duration

	StarterDeadline time.Duration
	StopperDeadline time.Duration

	SynchroTimeout       time.Duration
	IsolationDelay       time.Duration
	ConciliationStrategy types.ConciliationStrategy
}

// defaults fills in the teacher's convention of sane zero-value
// fallbacks rather than rejecting an under-specified Config outright.
func (c *Config) defaults() {
	if c.TickPeriod <= 0 {
		c.TickPeriod = 2 * time.Second
	}
	if c.RPCDeadline <= 0 {
		c.RPCDeadline = c.TickPeriod
	}
	if c.StarterDeadline <= 0 {
		c.StarterDeadline = 30 * time.Second
	}
	if c.StopperDeadline <= 0 {
		c.StopperDeadline = 15 * time.Second
	}
	if c.SynchroTimeout <= 0 {
		c.SynchroTimeout = 10 * time.Second
	}
	if c.IsolationDelay <= 0 {
		c.IsolationDelay = 5 * time.Second
	}
	if c.ConciliationStrategy == "" {
		c.ConciliationStrategy = types.ConciliationSenicide
	}
}

// Engine owns every subsystem of one node's supvisors instance and
// drives them from a single control-thread loop (§5).
type Engine struct {
	cfg Config

	mapper *addressmapper.AddressMapper
	ctx    *state.Context
	broker *events.Broker
	proxy  *eventloop.Proxy
	loop   *eventloop.EventLoop

	starter      *starter.Starter
	stopper      *stopper.Stopper
	handler      *failurehandler.Handler
	conciliation *conciliation.Engine
	fsm          *fsm.FSM
	rpc          *rpc.Server

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool

	log zerolog.Logger
}

// New composes an Engine from cfg. now is the construction time, used to
// seed the FSM's INITIALIZATION clock (§4.7).
func New(cfg Config, now time.Time) (*Engine, error) {
	cfg.defaults()

	mapper, err := addressmapper.New(cfg.Nodes, cfg.Local)
	if err != nil {
		return nil, err
	}

	ctx := state.New(mapper, cfg.SynchroTimeout, cfg.IsolationDelay)
	if cfg.Rules != nil {
		for _, name := range cfg.Rules.ApplicationNames() {
			ctx.RegisterApplication(name, cfg.Rules.ApplicationRules(name))
		}
		for namespec, rules := range cfg.Rules.ProcessRules() {
			if err := ctx.RegisterProcess(namespec, rules); err != nil {
				return nil, err
			}
		}
	}

	broker := events.NewBroker()
	proxy := eventloop.NewProxy(cfg.Transport, cfg.RPCDeadline)
	loop := eventloop.New(ctx, mapper, broker, proxy)

	sp := stopper.New(ctx, proxy, cfg.StopperDeadline)
	st := starter.New(ctx, proxy, sp, cfg.Local, cfg.StarterDeadline)
	handler := failurehandler.New(ctx, st, sp)
	ce := conciliation.New(ctx, sp, handler)
	machine := fsm.New(ctx, mapper, st, ce, proxy, cfg.ConciliationStrategy, cfg.SynchroTimeout, now)
	server := rpc.New(ctx, mapper, machine, st, sp)

	return &Engine{
		cfg:          cfg,
		mapper:       mapper,
		ctx:          ctx,
		broker:       broker,
		proxy:        proxy,
		loop:         loop,
		starter:      st,
		stopper:      sp,
		handler:      handler,
		conciliation: ce,
		fsm:          machine,
		rpc:          server,
		stopCh:       make(chan struct{}),
		log:          log.WithComponent("engine"),
	}, nil
}

// RPC returns the external RPC surface (spec.md §6) for a transport
// front end to serve.
func (e *Engine) RPC() *rpc.Server { return e.rpc }

// Context returns the single source of truth, for read-only diagnostics.
func (e *Engine) Context() *state.Context { return e.ctx }

// Broker returns the peer event broker a transport receiver publishes
// inbound TICK/STATE/PROCESS/... events onto.
func (e *Engine) Broker() *events.Broker { return e.broker }

// Start authorizes the local node (it never needs a CHECK_INSTANCE round
// trip against itself), then launches the broker, the EventLoop, and the
// control-thread ticker.
func (e *Engine) Start(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true

	_ = e.ctx.LoadNodeEvent(e.cfg.Local, now.Unix(), now)
	_ = e.ctx.AuthorizeNode(e.cfg.Local, true, now)

	e.broker.Start()
	e.loop.Start()

	e.wg.Add(1)
	go e.run()
}

// Stop signals the control-thread loop to exit, then tears down the
// EventLoop and broker in reverse order. Cooperative: it never joins a
// goroutine blocked issuing an RPC into the local agent (§5).
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	e.loop.Stop()
	e.broker.Stop()
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			e.tick(now)
		case <-e.stopCh:
			return
		}
	}
}

// tick runs one control-thread iteration in the order spec.md §4's data
// flow implies: liveness bookkeeping, inbound-triggered outbound probes,
// job-engine reaping/advancement, reactive failure handling, then the
// FSM transition check that consumes everything above.
func (e *Engine) tick(now time.Time) {
	e.reportLocal(now)
	e.ctx.OnTimer(now)
	e.loop.Tick(now)
	e.starter.Tick(now)
	e.stopper.Tick(now)
	e.handler.TriggerJobs(context.Background())
	e.fsm.Tick(now)
}

// reportLocal ingests the local supervisor agent's own process list
// directly, without a CHECK_INSTANCE round trip: a node's own agent
// reports its state in-process rather than over the peer event channel
// (§4's "each node periodically emits... a state event" is this state
// event's local-origin case).
func (e *Engine) reportLocal(now time.Time) {
	a, ok := e.cfg.Transport.Agent(e.cfg.Local)
	if !ok {
		return
	}
	rpcCtx, cancel := context.WithTimeout(context.Background(), e.cfg.RPCDeadline)
	defer cancel()
	infos, err := a.GetAllProcessInfo(rpcCtx)
	if err != nil {
		e.log.Warn().Err(err).Msg("local agent process report failed")
		return
	}
	if err := e.ctx.LoadProcessInfo(e.cfg.Local, infos, now); err != nil {
		e.log.Warn().Err(err).Msg("failed to ingest local process report")
	}
}

// --- pkg/metrics.Source ---

// NodeCounts implements pkg/metrics.Source.
func (e *Engine) NodeCounts() map[string]int { return e.ctx.NodeCounts() }

// ApplicationCounts implements pkg/metrics.Source.
func (e *Engine) ApplicationCounts() map[string]int { return e.ctx.ApplicationCounts() }

// ProcessCounts implements pkg/metrics.Source.
func (e *Engine) ProcessCounts() map[string]int { return e.ctx.ProcessCounts() }

// IsMaster implements pkg/metrics.Source.
func (e *Engine) IsMaster() bool { return e.fsm.IsMaster() }

// FSMState implements pkg/metrics.Source.
func (e *Engine) FSMState() string { return e.fsm.FSMState() }
