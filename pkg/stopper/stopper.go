package stopper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supvisors/pkg/log"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// Dispatcher issues the outbound stopProcess RPC a Stopper job needs;
// the call returns once the agent answers or the ctx deadline passes.
// pkg/eventloop.Proxy satisfies this.
type Dispatcher interface {
	StopProcess(ctx context.Context, identifier, namespec string) error
}

type job struct {
	namespec string
	deadline time.Time
}

type appRun struct {
	name    string
	keys    []int
	groups  map[int][]*state.ProcessStatus
	current map[string]*job
}

// Stopper is the ordered shutdown job engine of §4.4.
type Stopper struct {
	mu sync.Mutex

	ctx        *state.Context
	dispatcher Dispatcher

	perProcessDeadline time.Duration

	apps map[string]*appRun

	log zerolog.Logger
}

// New creates a Stopper.
func New(ctx *state.Context, dispatcher Dispatcher, perProcessDeadline time.Duration) *Stopper {
	return &Stopper{
		ctx:                ctx,
		dispatcher:         dispatcher,
		perProcessDeadline: perProcessDeadline,
		apps:               make(map[string]*appRun),
		log:                log.WithComponent("stopper"),
	}
}

// StopApplication schedules every running process of name through its
// stop sub-sequences. done is true if the application was already fully
// stopped.
func (s *Stopper) StopApplication(name string) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.ctx.Application(name)
	if !ok {
		return false, fmt.Errorf("stopper: unknown application %q", name)
	}
	if _, already := s.apps[name]; already {
		return false, nil
	}

	keys, groups := app.StopSequence()
	groups = filterRunning(groups)
	keys = nonEmptyKeys(keys, groups)
	if len(keys) == 0 {
		return true, nil
	}

	run := &appRun{name: name, keys: keys, groups: groups, current: make(map[string]*job)}
	s.apps[name] = run
	s.advance(run)
	return false, nil
}

// StopProcess schedules a single process's shutdown across every node
// currently reporting it running.
func (s *Stopper) StopProcess(p *state.ProcessStatus) (done bool, err error) {
	return s.StopIdentifiers(p, p.RunningIdentifiers())
}

// StopIdentifiers schedules p's shutdown on exactly the given node
// identifiers, regardless of what else is running it. pkg/conciliation
// uses this to stop every conflicting instance but the one SENICIDE or
// INFANTICIDE elects to keep.
func (s *Stopper) StopIdentifiers(p *state.ProcessStatus, identifiers []string) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(identifiers) == 0 {
		return true, nil
	}

	run := &appRun{name: p.Application, current: make(map[string]*job)}
	s.apps["proc:"+p.Namespec] = run
	s.dispatch(run, p, identifiers)
	return false, nil
}

// InProgress reports whether any application or process shutdown is
// still active.
func (s *Stopper) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps) > 0
}

// OwnedApplications returns the set of application names with a
// shutdown currently in flight. pkg/failurehandler uses this to defer
// jobs that would race an in-progress stop.
func (s *Stopper) OwnedApplications() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.apps))
	for _, run := range s.apps {
		out[run.name] = true
	}
	return out
}

// Tick reaps settled jobs and advances to the next stop sub-sequence.
func (s *Stopper) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, run := range s.apps {
		s.reap(run, now)
		if len(run.current) > 0 {
			continue
		}
		if len(run.keys) == 0 {
			delete(s.apps, name)
			continue
		}
		s.advance(run)
		if len(run.keys) == 0 && len(run.current) == 0 {
			delete(s.apps, name)
		}
	}
}

func (s *Stopper) reap(run *appRun, now time.Time) {
	for namespec, j := range run.current {
		p := s.lookup(namespec)
		if p == nil || p.Stopped() || now.After(j.deadline) {
			delete(run.current, namespec)
		}
	}
}

func (s *Stopper) advance(run *appRun) {
	if len(run.keys) == 0 {
		return
	}
	key := run.keys[0]
	run.keys = run.keys[1:]

	for _, p := range run.groups[key] {
		s.dispatch(run, p, p.RunningIdentifiers())
	}
}

func (s *Stopper) dispatch(run *appRun, p *state.ProcessStatus, identifiers []string) {
	deadline := time.Now().Add(s.perProcessDeadline)
	run.current[p.Namespec] = &job{namespec: p.Namespec, deadline: deadline}

	rpcCtx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	for _, id := range identifiers {
		if err := s.dispatcher.StopProcess(rpcCtx, id, p.Namespec); err != nil {
			s.log.Warn().Err(err).Str("namespec", p.Namespec).Str("identifier", id).Msg("stop_process dispatch failed")
		}
	}
}

func (s *Stopper) lookup(namespec string) *state.ProcessStatus {
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

func filterRunning(groups map[int][]*state.ProcessStatus) map[int][]*state.ProcessStatus {
	out := make(map[int][]*state.ProcessStatus, len(groups))
	for k, procs := range groups {
		var remaining []*state.ProcessStatus
		for _, p := range procs {
			if !p.Stopped() {
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
