package failurehandler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// StarterClient is the subset of pkg/starter.Starter the FailureHandler
// needs to replay a job once its stop has settled.
type StarterClient interface {
	StartApplication(strategy types.PlacementStrategy, app *state.ApplicationStatus) (done bool, err error)
	StartProcess(strategy types.PlacementStrategy, p *state.ProcessStatus, extraArgs string) (done bool, err error)
	OwnedApplications() map[string]bool
}

// StopperClient is the subset of pkg/stopper.Stopper the FailureHandler
// needs to tear a failed application or process down before restarting
// it.
type StopperClient interface {
	StopApplication(name string) (done bool, err error)
	StopProcess(p *state.ProcessStatus) (done bool, err error)
	OwnedApplications() map[string]bool
}

// Handler holds the six disjoint job sets of §4.5 and drives them to
// completion against the Starter/Stopper.
type Handler struct {
	mu sync.Mutex

	ctx     *state.Context
	starter StarterClient
	stopper StopperClient

	stopApplicationJobs    map[string]bool
	restartApplicationJobs map[string]bool
	restartProcessJobs     map[string]*state.ProcessStatus
	continueProcessJobs    map[string]*state.ProcessStatus

	startApplicationJobs map[string]bool
	startProcessJobs     map[string]*state.ProcessStatus

	log zerolog.Logger
}

// New creates a Handler.
func New(ctx *state.Context, starter StarterClient, stopper StopperClient) *Handler {
	return &Handler{
		ctx:                    ctx,
		starter:                starter,
		stopper:                stopper,
		stopApplicationJobs:    make(map[string]bool),
		restartApplicationJobs: make(map[string]bool),
		restartProcessJobs:     make(map[string]*state.ProcessStatus),
		continueProcessJobs:    make(map[string]*state.ProcessStatus),
		startApplicationJobs:   make(map[string]bool),
		startProcessJobs:       make(map[string]*state.ProcessStatus),
		log:                    log.WithComponent("failurehandler"),
	}
}

// AddJob schedules p's reaction to an unexpected exit under strategy.
// A strategy discards every strictly-lower-priority entry concerning
// p's application (invariant 6: the six job sets stay pairwise
// disjoint per application); a strategy is itself discarded if a
// strictly higher-priority entry already covers it (STOP_APPLICATION or
// RESTART_APPLICATION for the same application, RESTART_PROCESS for the
// same namespec); an equal-priority add records its entry again (§4.5,
// boundary scenario S3).
func (h *Handler) AddJob(strategy types.RunningFailureStrategy, p *state.ProcessStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	app := p.Application
	if h.higherPriorityPending(app, p.Namespec, strategy.Priority()) {
		return
	}
	metrics.RunningFailuresTotal.WithLabelValues(string(strategy)).Inc()

	switch strategy {
	case types.RunningFailureStopApplication:
		h.clearBelow(app, strategy.Priority())
		h.stopApplicationJobs[app] = true
	case types.RunningFailureRestartApplication:
		h.clearBelow(app, strategy.Priority())
		h.restartApplicationJobs[app] = true
	case types.RunningFailureRestartProcess:
		delete(h.continueProcessJobs, p.Namespec)
		h.restartProcessJobs[p.Namespec] = p
	case types.RunningFailureContinue:
		h.continueProcessJobs[p.Namespec] = p
	}
	h.log.Info().Str("application", app).Str("namespec", p.Namespec).Str("strategy", string(strategy)).Msg("running failure scheduled")
}

// higherPriorityPending reports whether app or namespec already has a
// job strictly above priority queued; such a job fully subsumes a
// weaker one so the weaker add is a no-op.
func (h *Handler) higherPriorityPending(app, namespec string, priority int) bool {
	if priority < types.RunningFailureStopApplication.Priority() && h.stopApplicationJobs[app] {
		return true
	}
	if priority < types.RunningFailureRestartApplication.Priority() && h.restartApplicationJobs[app] {
		return true
	}
	if priority < types.RunningFailureRestartProcess.Priority() && h.restartProcessJobs[namespec] != nil {
		return true
	}
	return false
}

// clearBelow removes every entry concerning app whose strategy
// priority is strictly below priority.
func (h *Handler) clearBelow(app string, priority int) {
	if priority > types.RunningFailureRestartApplication.Priority() {
		delete(h.restartApplicationJobs, app)
	}
	if priority > types.RunningFailureRestartProcess.Priority() {
		for namespec, p := range h.restartProcessJobs {
			if p.Application == app {
				delete(h.restartProcessJobs, namespec)
			}
		}
	}
	if priority > types.RunningFailureContinue.Priority() {
		for namespec, p := range h.continueProcessJobs {
			if p.Application == app {
				delete(h.continueProcessJobs, namespec)
			}
		}
	}
}

// RestartProcessJobs returns a snapshot of the processes currently
// scheduled for RESTART_PROCESS, keyed by namespec.
func (h *Handler) RestartProcessJobs() map[string]*state.ProcessStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]*state.ProcessStatus, len(h.restartProcessJobs))
	for k, v := range h.restartProcessJobs {
		out[k] = v
	}
	return out
}

// RestartApplicationJobs returns the application names currently
// scheduled for RESTART_APPLICATION.
func (h *Handler) RestartApplicationJobs() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.restartApplicationJobs))
	for k := range h.restartApplicationJobs {
		out[k] = true
	}
	return out
}

// StopApplicationJobs returns the application names currently scheduled
// for STOP_APPLICATION.
func (h *Handler) StopApplicationJobs() map[string]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]bool, len(h.stopApplicationJobs))
	for k := range h.stopApplicationJobs {
		out[k] = true
	}
	return out
}

// InProgress reports whether any job remains in any of the six sets.
func (h *Handler) InProgress() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stopApplicationJobs)+len(h.restartApplicationJobs)+len(h.restartProcessJobs)+
		len(h.continueProcessJobs)+len(h.startApplicationJobs)+len(h.startProcessJobs) > 0
}

// TriggerJobs drives every pending job one step: applications already
// owned by an in-flight Starter or Stopper run are left for the next
// tick so the two engines never race the same application.
func (h *Handler) TriggerJobs(_ context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owned := h.ownedApplications()

	for app := range h.stopApplicationJobs {
		if owned[app] {
			continue
		}
		if h.applicationSettled(app) {
			delete(h.stopApplicationJobs, app)
			continue
		}
		if _, err := h.stopper.StopApplication(app); err != nil {
			h.log.Warn().Err(err).Str("application", app).Msg("stop_application job failed")
		}
	}

	for app := range h.restartApplicationJobs {
		if owned[app] {
			continue
		}
		if h.applicationSettled(app) {
			delete(h.restartApplicationJobs, app)
			h.startApplicationJobs[app] = true
			continue
		}
		if _, err := h.stopper.StopApplication(app); err != nil {
			h.log.Warn().Err(err).Str("application", app).Msg("restart_application stop phase failed")
		}
	}

	for namespec, p := range h.restartProcessJobs {
		if owned[p.Application] {
			continue
		}
		if p.Stopped() {
			delete(h.restartProcessJobs, namespec)
			h.startProcessJobs[namespec] = p
			continue
		}
		if _, err := h.stopper.StopProcess(p); err != nil {
			h.log.Warn().Err(err).Str("namespec", namespec).Msg("restart_process stop phase failed")
		}
	}

	for namespec, p := range h.continueProcessJobs {
		h.log.Info().Str("namespec", namespec).Msg("running failure: continuing without corrective action")
		delete(h.continueProcessJobs, namespec)
	}

	for app := range h.startApplicationJobs {
		if owned[app] {
			continue
		}
		appStatus, ok := h.ctx.Application(app)
		if !ok {
			delete(h.startApplicationJobs, app)
			continue
		}
		if _, err := h.starter.StartApplication(appStatus.Rules.Strategy, appStatus); err == nil {
			delete(h.startApplicationJobs, app)
		}
	}

	for namespec, p := range h.startProcessJobs {
		if owned[p.Application] {
			continue
		}
		if _, err := h.starter.StartProcess(types.PlacementConfig, p, ""); err == nil {
			delete(h.startProcessJobs, namespec)
		}
	}
}

func (h *Handler) ownedApplications() map[string]bool {
	owned := h.starter.OwnedApplications()
	for app := range h.stopper.OwnedApplications() {
		owned[app] = true
	}
	return owned
}

func (h *Handler) applicationSettled(app string) bool {
	a, ok := h.ctx.Application(app)
	if !ok {
		return true
	}
	for _, p := range a.Processes {
		if !p.Stopped() {
			return false
		}
	}
	return true
}
