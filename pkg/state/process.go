package state

import (
	"fmt"
	"time"

	"supvisors/pkg/types"
)

// ProcessStatus is the aggregated state of one process across every node
// reporting it. Identity is its namespec "group:name".
type ProcessStatus struct {
	Namespec    string
	Application string
	Name        string

	Rules types.ProcessRules

	// Info holds this process's per-node report, keyed by node identifier.
	Info map[string]types.ProcessInfo

	// LastEventAt is the most recent process event ingested, for
	// diagnostics/metrics only; never consulted for state derivation.
	LastEventAt time.Time
}

// NewProcessStatus creates an empty ProcessStatus for namespec.
func NewProcessStatus(namespec string, rules types.ProcessRules) (*ProcessStatus, error) {
	app, name, ok := types.SplitNamespec(namespec)
	if !ok {
		return nil, fmt.Errorf("state: invalid namespec %q", namespec)
	}
	return &ProcessStatus{
		Namespec:    namespec,
		Application: app,
		Name:        name,
		Rules:       rules,
		Info:        make(map[string]types.ProcessInfo),
	}, nil
}

// UpdateInfo records identifier's latest report for this process.
func (p *ProcessStatus) UpdateInfo(identifier string, info types.ProcessInfo, at time.Time) {
	p.Info[identifier] = info
	p.LastEventAt = at
}

// RemoveIdentifier drops identifier's report, e.g. on node invalidation.
func (p *ProcessStatus) RemoveIdentifier(identifier string) {
	delete(p.Info, identifier)
}

// RunningIdentifiers returns every node currently reporting this process
// as RUNNING, in map iteration order (callers needing a stable order —
// e.g. conciliation tiebreaks — must sort explicitly).
func (p *ProcessStatus) RunningIdentifiers() []string {
	var out []string
	for id, info := range p.Info {
		if info.State == types.ProcessRunning {
			out = append(out, id)
		}
	}
	return out
}

// Conflicting reports whether this process is reported RUNNING on more
// than one node at once (invariant: conflicting ⇔ |running_identifiers|>1).
func (p *ProcessStatus) Conflicting() bool {
	return len(p.RunningIdentifiers()) > 1
}

// State derives this process's aggregate state from its per-node reports.
// A process running anywhere aggregates to RUNNING (regardless of
// conflict, which is orthogonal and reported via Conflicting); absent
// that, the strongest in-flight signal wins, mirroring the priority rule
// invariant 1 applies at the application level.
func (p *ProcessStatus) State() types.ProcessState {
	if len(p.Info) == 0 {
		return types.ProcessUnknown
	}

	haveStopping := false
	haveTransitioning := false
	var fallback types.ProcessState

	for _, info := range p.Info {
		switch {
		case info.State == types.ProcessRunning:
			return types.ProcessRunning
		case info.State == types.ProcessStopping:
			haveStopping = true
		case info.State.Transitioning():
			haveTransitioning = true
		}
		fallback = info.State
	}

	switch {
	case haveStopping:
		return types.ProcessStopping
	case haveTransitioning:
		return types.ProcessStarting
	default:
		return fallback
	}
}

// Stopped reports whether the aggregate state counts as not-running.
func (p *ProcessStatus) Stopped() bool {
	return p.State().Stopped()
}
