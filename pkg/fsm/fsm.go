package fsm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// State is one of the cluster-wide FSM states of §4.7.
type State string

const (
	Initialization State = "INITIALIZATION"
	Deployment     State = "DEPLOYMENT"
	Operation      State = "OPERATION"
	Conciliation   State = "CONCILIATION"
	Restarting     State = "RESTARTING"
	ShuttingDown   State = "SHUTTING_DOWN"
	Shutdown       State = "SHUTDOWN"
)

// StarterClient is the subset of pkg/starter.Starter the FSM calls to
// replay a managed application's deployment on entering DEPLOYMENT.
type StarterClient interface {
	StartApplication(strategy types.PlacementStrategy, app *state.ApplicationStatus) (done bool, err error)
	InProgress() bool
}

// ConciliationClient is the subset of pkg/conciliation.Engine the FSM
// invokes on entering CONCILIATION.
type ConciliationClient interface {
	Conciliate(strategy types.ConciliationStrategy)
}

// PeerDispatcher issues the restart/shutdown RPC to a peer on entering
// RESTARTING/SHUTTING_DOWN. pkg/eventloop.Proxy satisfies this.
type PeerDispatcher interface {
	Restart(ctx context.Context, identifier string) error
	Shutdown(ctx context.Context, identifier string) error
}

// FSM is the cluster-wide state machine of §4.7.
type FSM struct {
	mu sync.Mutex

	ctx          *state.Context
	mapper       *addressmapper.AddressMapper
	starter      StarterClient
	conciliation ConciliationClient
	peers        PeerDispatcher

	conciliationStrategy types.ConciliationStrategy
	synchroTimeout       time.Duration

	state              State
	master             string
	enteredInitAt      time.Time
	restartRequested   bool
	shutdownRequested  bool

	log zerolog.Logger
}

// New creates an FSM starting in INITIALIZATION at now.
func New(
	ctx *state.Context,
	mapper *addressmapper.AddressMapper,
	starter StarterClient,
	conciliation ConciliationClient,
	peers PeerDispatcher,
	conciliationStrategy types.ConciliationStrategy,
	synchroTimeout time.Duration,
	now time.Time,
) *FSM {
	return &FSM{
		ctx:                   ctx,
		mapper:                mapper,
		starter:               starter,
		conciliation:          conciliation,
		peers:                 peers,
		conciliationStrategy:  conciliationStrategy,
		synchroTimeout:        synchroTimeout,
		state:                 Initialization,
		enteredInitAt:         now,
		log:                   log.WithComponent("fsm"),
	}
}

// State returns the current FSM state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// FSMState satisfies pkg/metrics.Source.
func (f *FSM) FSMState() string {
	return string(f.State())
}

// Master returns the currently pinned master identifier, or "" if none
// is pinned (before the first pin, and after every return to
// INITIALIZATION). The pin is kept through RESTARTING, SHUTTING_DOWN and
// SHUTDOWN.
func (f *FSM) Master() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.master
}

// IsMaster satisfies pkg/metrics.Source.
func (f *FSM) IsMaster() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.master != "" && f.master == f.mapper.Local()
}

// RequestRestart schedules a transition to RESTARTING the next time
// Tick observes OPERATION.
func (f *FSM) RequestRestart() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartRequested = true
}

// RequestShutdown schedules a transition to SHUTTING_DOWN the next time
// Tick observes OPERATION.
func (f *FSM) RequestShutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownRequested = true
}

// Tick advances the FSM by one control-thread iteration.
func (f *FSM) Tick(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Initialization:
		if f.allExpectedRunning() || now.Sub(f.enteredInitAt) > f.synchroTimeout {
			f.transition(Deployment, now)
		}
	case Deployment:
		if !f.masterRunning() {
			f.transition(Initialization, now)
			return
		}
		if !f.starter.InProgress() {
			metrics.DeploymentCyclesTotal.WithLabelValues("completed").Inc()
			f.transition(Operation, now)
		}
	case Operation:
		if !f.masterRunning() {
			f.transition(Initialization, now)
			return
		}
		if len(f.ctx.Conflicts()) > 0 {
			f.transition(Conciliation, now)
			return
		}
		if f.restartRequested {
			f.transition(Restarting, now)
			return
		}
		if f.shutdownRequested {
			f.transition(ShuttingDown, now)
			return
		}
	case Conciliation:
		if !f.masterRunning() {
			f.transition(Initialization, now)
			return
		}
		if len(f.ctx.Conflicts()) == 0 {
			f.transition(Operation, now)
		}
	case Shutdown:
		// terminal for this run.
	}
}

func (f *FSM) masterRunning() bool {
	if f.master == "" {
		return false
	}
	n, ok := f.ctx.Node(f.master)
	return ok && n.Running()
}

func (f *FSM) allExpectedRunning() bool {
	running := make(map[string]bool)
	for _, id := range f.ctx.RunningNodes() {
		running[id] = true
	}
	for _, id := range f.mapper.Identifiers() {
		if !running[id] {
			return false
		}
	}
	return true
}

// transition moves to to and runs its entry side effects (§4.7).
func (f *FSM) transition(to State, now time.Time) {
	from := f.state
	f.state = to
	metrics.FSMTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	f.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("fsm transition")

	switch to {
	case Initialization:
		f.master = ""
		f.enteredInitAt = now
		f.restartRequested = false
		f.shutdownRequested = false
	case Deployment:
		f.pinMaster()
		f.replayDeployment()
	case Conciliation:
		f.conciliation.Conciliate(f.conciliationStrategy)
	case Restarting:
		f.dispatchToEveryPeer(f.peers.Restart)
		f.state = Shutdown
		metrics.FSMTransitionsTotal.WithLabelValues(string(Restarting), string(Shutdown)).Inc()
	case ShuttingDown:
		f.dispatchToEveryPeer(f.peers.Shutdown)
		f.state = Shutdown
		metrics.FSMTransitionsTotal.WithLabelValues(string(ShuttingDown), string(Shutdown)).Inc()
	}
}

// pinMaster selects the lexicographically smallest RUNNING identifier,
// per invariant 4 (S6).
func (f *FSM) pinMaster() {
	running := f.ctx.RunningNodes()
	if len(running) == 0 {
		f.master = ""
		return
	}
	sort.Strings(running)
	f.master = running[0]
}

func (f *FSM) replayDeployment() {
	for _, app := range f.ctx.Applications() {
		if !app.Managed() {
			continue
		}
		if _, err := f.starter.StartApplication(app.Rules.Strategy, app); err != nil {
			f.log.Warn().Err(err).Str("application", app.Name).Msg("deployment replay failed")
		}
	}
}

// dispatchToEveryPeer issues action to every remote peer before the
// local node, per §4.7's "remote peers first, local last".
func (f *FSM) dispatchToEveryPeer(action func(context.Context, string) error) {
	local := f.mapper.Local()
	order := make([]string, 0, len(f.mapper.Identifiers()))
	for _, id := range f.mapper.Identifiers() {
		if id != local {
			order = append(order, id)
		}
	}
	order = append(order, local)

	for _, id := range order {
		rpcCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := action(rpcCtx, id)
		cancel()
		if err != nil {
			f.log.Warn().Err(err).Str("identifier", id).Msg("peer shutdown/restart RPC failed")
		}
	}
}
