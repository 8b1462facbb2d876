package starter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"supvisors/pkg/log"
	"supvisors/pkg/placement"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// Dispatcher issues the outbound RPC a Starter job needs; the call
// returns once the agent answers or the ctx deadline passes.
// pkg/eventloop.Proxy satisfies this; Starter never talks to the network
// directly (§5).
type Dispatcher interface {
	StartProcess(ctx context.Context, identifier, namespec, extraArgs string) error
}

// StopperClient is the subset of pkg/stopper.Stopper the Starter calls
// when a STOP starting_failure_strategy fires.
type StopperClient interface {
	StopApplication(name string) (done bool, err error)
}

// job is one in-flight start request.
type job struct {
	id         string
	namespec   string
	identifier string
	deadline   time.Time
}

// appRun tracks one application's deployment in progress: the remaining
// sub-sequence keys (ascending), the current sub-sequence's in-flight
// jobs, and whether ABORT has already cancelled the rest.
type appRun struct {
	name     string
	strategy types.PlacementStrategy
	keys     []int
	groups   map[int][]*state.ProcessStatus
	current  map[string]*job // namespec -> job, for the active sub-sequence
	aborted  bool
}

// Starter is the ordered startup job engine of §4.3.
type Starter struct {
	mu sync.Mutex

	ctx        *state.Context
	dispatcher Dispatcher
	stopper    StopperClient
	local      string

	perProcessDeadline time.Duration

	apps map[string]*appRun

	log zerolog.Logger
}

// New creates a Starter. local is this node's identifier, used by the
// LOCAL placement strategy.
func New(ctx *state.Context, dispatcher Dispatcher, stopper StopperClient, local string, perProcessDeadline time.Duration) *Starter {
	return &Starter{
		ctx:                 ctx,
		dispatcher:          dispatcher,
		stopper:             stopper,
		local:               local,
		perProcessDeadline:  perProcessDeadline,
		apps:                make(map[string]*appRun),
		log:                 log.WithComponent("starter"),
	}
}

// StartApplication schedules every not-already-running process of app
// through its sub-sequences. done is true if there was nothing to do.
func (s *Starter) StartApplication(strategy types.PlacementStrategy, app *state.ApplicationStatus) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, already := s.apps[app.Name]; already {
		return false, fmt.Errorf("starter: %s already in progress", app.Name)
	}

	keys, groups := app.StartSequence()
	groups = filterNotRunning(groups)
	keys = nonEmptyKeys(keys, groups)
	if len(keys) == 0 {
		return true, nil
	}

	run := &appRun{name: app.Name, strategy: strategy, keys: keys, groups: groups, current: make(map[string]*job)}
	s.apps[app.Name] = run
	s.advance(run)
	return false, nil
}

// StartProcess schedules a single process outside any application
// sequence (the start_process / start_args RPC surface).
func (s *Starter) StartProcess(strategy types.PlacementStrategy, p *state.ProcessStatus, extraArgs string) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.State() == types.ProcessRunning {
		return true, nil
	}

	id, ok := s.chooseNode(strategy, p)
	if !ok {
		return false, fmt.Errorf("starter: no eligible node for %s", p.Namespec)
	}

	run := &appRun{name: p.Application, current: make(map[string]*job)}
	s.apps[processJobKey(p)] = run
	s.dispatchJob(run, p, id, extraArgs)
	return false, nil
}

// InProgress reports whether any application or standalone process
// startup is still active.
func (s *Starter) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps) > 0
}

// OwnedApplications returns the set of application names with a startup
// currently in flight, keyed by application name regardless of whether
// the run was scheduled via StartApplication or a standalone
// StartProcess. pkg/failurehandler uses this to defer jobs that would
// race an in-progress start.
func (s *Starter) OwnedApplications() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.apps))
	for _, run := range s.apps {
		out[run.name] = true
	}
	return out
}

// Tick reaps settled jobs and advances sub-sequences. Call once per FSM
// tick.
func (s *Starter) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, run := range s.apps {
		s.reap(run, now)
		if len(run.current) > 0 {
			continue // sub-sequence still in flight
		}
		if run.aborted || len(run.keys) == 0 {
			delete(s.apps, name)
			continue
		}
		s.advance(run)
		if len(run.keys) == 0 && len(run.current) == 0 {
			delete(s.apps, name)
		}
	}
}

// reap checks every in-flight job of run against its process's actual
// state and the job deadline, applying starting_failure_strategy on
// failure.
func (s *Starter) reap(run *appRun, now time.Time) {
	for namespec, j := range run.current {
		p := s.lookup(namespec)
		if p == nil {
			delete(run.current, namespec)
			continue
		}

		switch {
		case p.State() == types.ProcessRunning, p.State() == types.ProcessExited && expectedExit(p, j.identifier):
			delete(run.current, namespec)
		case p.State() == types.ProcessFatal, p.State() == types.ProcessExited && !expectedExit(p, j.identifier):
			s.onFailure(run, p)
			delete(run.current, namespec)
		case now.After(j.deadline):
			s.onFailure(run, p)
			delete(run.current, namespec)
		}
	}
}

func expectedExit(p *state.ProcessStatus, identifier string) bool {
	info, ok := p.Info[identifier]
	return ok && info.ExpectedExit
}

// onFailure applies p's starting_failure_strategy (§4.3).
func (s *Starter) onFailure(run *appRun, p *state.ProcessStatus) {
	switch p.Rules.StartingFailureStrategy {
	case types.StartingFailureAbort:
		run.aborted = true
		run.keys = nil
		s.log.Warn().Str("application", run.name).Str("namespec", p.Namespec).Msg("aborting deployment after starting failure")
	case types.StartingFailureStop:
		run.aborted = true
		run.keys = nil
		if s.stopper != nil {
			if _, err := s.stopper.StopApplication(run.name); err != nil {
				s.log.Error().Err(err).Str("application", run.name).Msg("failed to push application to stopper")
			}
		}
	case types.StartingFailureContinue:
		s.log.Info().Str("namespec", p.Namespec).Msg("ignoring starting failure, continuing sequence")
	}
}

// advance pops the next sub-sequence and dispatches every process in it
// concurrently.
func (s *Starter) advance(run *appRun) {
	if len(run.keys) == 0 {
		return
	}
	key := run.keys[0]
	run.keys = run.keys[1:]

	for _, p := range run.groups[key] {
		id, ok := s.chooseNode(run.strategy, p)
		if !ok {
			s.onFailure(run, p)
			continue
		}
		s.dispatchJob(run, p, id, "")
	}
}

func (s *Starter) dispatchJob(run *appRun, p *state.ProcessStatus, identifier, extraArgs string) {
	j := &job{
		id:         uuid.New().String(),
		namespec:   p.Namespec,
		identifier: identifier,
		deadline:   time.Now().Add(s.perProcessDeadline),
	}
	run.current[p.Namespec] = j

	// The Dispatcher (pkg/eventloop.Proxy) runs this request on the
	// calling goroutine, so the control thread waits until the agent
	// answers or the job deadline passes.
	rpcCtx, cancel := context.WithDeadline(context.Background(), j.deadline)
	defer cancel()
	if err := s.dispatcher.StartProcess(rpcCtx, identifier, p.Namespec, extraArgs); err != nil {
		s.log.Warn().Err(err).Str("namespec", p.Namespec).Str("identifier", identifier).Msg("start_process dispatch failed")
	}
}

func (s *Starter) chooseNode(strategy types.PlacementStrategy, p *state.ProcessStatus) (string, bool) {
	candidates := make([]placement.Candidate, 0, len(p.Rules.Nodes))
	for _, id := range p.Rules.Nodes {
		n, ok := s.ctx.Node(id)
		if !ok {
			continue
		}
		candidates = append(candidates, placement.Candidate{Identifier: n.Identifier, Running: n.Running(), Load: n.Load, Sequence: n.Sequence})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Sequence < candidates[j].Sequence })
	return placement.ChooseNode(strategy, candidates, p.Rules.ExpectedLoad, s.local)
}

func (s *Starter) lookup(namespec string) *state.ProcessStatus {
	app, name, ok := types.SplitNamespec(namespec)
	if !ok {
		return nil
	}
	a, ok := s.ctx.Application(app)
	if !ok {
		return nil
	}
	return a.Processes[name]
}

func filterNotRunning(groups map[int][]*state.ProcessStatus) map[int][]*state.ProcessStatus {
	out := make(map[int][]*state.ProcessStatus, len(groups))
	for k, procs := range groups {
		var remaining []*state.ProcessStatus
		for _, p := range procs {
			if p.State() != types.ProcessRunning {
				remaining = append(remaining, p)
			}
		}
		if len(remaining) > 0 {
			out[k] = remaining
		}
	}
	return out
}

func nonEmptyKeys(keys []int, groups map[int][]*state.ProcessStatus) []int {
	var out []int
	for _, k := range keys {
		if len(groups[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

func processJobKey(p *state.ProcessStatus) string {
	return "proc:" + p.Namespec
}
