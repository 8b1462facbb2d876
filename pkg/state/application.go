package state

import (
	"sort"
	"time"

	"supvisors/pkg/types"
)

// ApplicationStatus groups the ProcessStatuses of one application and
// computes its derived state and failure flags.
type ApplicationStatus struct {
	Name  string
	Rules types.ApplicationRules

	// Processes holds this application's ProcessStatuses, keyed by
	// process name (not the full namespec).
	Processes map[string]*ProcessStatus

	LastStartedAt time.Time
	LastStoppedAt time.Time
}

// NewApplicationStatus creates an application with no processes yet.
func NewApplicationStatus(name string, rules types.ApplicationRules) *ApplicationStatus {
	return &ApplicationStatus{
		Name:      name,
		Rules:     rules,
		Processes: make(map[string]*ProcessStatus),
	}
}

// Managed reports whether this application is subject to automatic
// deployment and coordinated failure handling (glossary).
func (a *ApplicationStatus) Managed() bool {
	return a.Rules.Managed()
}

// AddProcess registers a process as belonging to this application.
func (a *ApplicationStatus) AddProcess(p *ProcessStatus) {
	a.Processes[p.Name] = p
}

// State derives the application's state from its processes' aggregate
// states, per invariant 1: any STOPPING ⇒ STOPPING; any STARTING|BACKOFF
// ⇒ STARTING; any RUNNING ⇒ RUNNING; else STOPPED.
func (a *ApplicationStatus) State() types.ApplicationState {
	if len(a.Processes) == 0 {
		return types.ApplicationStopped
	}

	anyStopping, anyStarting, anyRunning := false, false, false
	for _, p := range a.Processes {
		switch p.State() {
		case types.ProcessStopping:
			anyStopping = true
		case types.ProcessStarting, types.ProcessBackoff:
			anyStarting = true
		case types.ProcessRunning:
			anyRunning = true
		}
	}

	switch {
	case anyStopping:
		return types.ApplicationStopping
	case anyStarting:
		return types.ApplicationStarting
	case anyRunning:
		return types.ApplicationRunning
	default:
		return types.ApplicationStopped
	}
}

// MajorFailure reports whether any required process is stopped while the
// application is running (invariant 2).
func (a *ApplicationStatus) MajorFailure() bool {
	if a.State() != types.ApplicationRunning {
		return false
	}
	for _, p := range a.Processes {
		if p.Rules.Required && p.Stopped() {
			return true
		}
	}
	return false
}

// MinorFailure reports whether any non-required process crashed or
// exited unexpectedly (invariant 2).
func (a *ApplicationStatus) MinorFailure() bool {
	for _, p := range a.Processes {
		if p.Rules.Required {
			continue
		}
		for _, info := range p.Info {
			if info.State == types.ProcessFatal {
				return true
			}
			if info.State == types.ProcessExited && !info.ExpectedExit {
				return true
			}
		}
	}
	return false
}

// StartSequence groups processes by their configured start_sequence.
// Sub-sequence keys are returned in ascending order; processes sharing a
// key are issued concurrently by the Starter (§4.3).
func (a *ApplicationStatus) StartSequence() (keys []int, groups map[int][]*ProcessStatus) {
	return a.sequenceBy(func(p *ProcessStatus) int { return p.Rules.StartSequence })
}

// StopSequence groups processes by their configured stop_sequence,
// mirroring StartSequence (§4.4).
func (a *ApplicationStatus) StopSequence() (keys []int, groups map[int][]*ProcessStatus) {
	return a.sequenceBy(func(p *ProcessStatus) int { return p.Rules.StopSequence })
}

func (a *ApplicationStatus) sequenceBy(key func(*ProcessStatus) int) ([]int, map[int][]*ProcessStatus) {
	groups := make(map[int][]*ProcessStatus)
	for _, p := range a.Processes {
		k := key(p)
		groups[k] = append(groups[k], p)
	}

	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for _, procs := range groups {
		sort.Slice(procs, func(i, j int) bool { return procs[i].Name < procs[j].Name })
	}

	return keys, groups
}
