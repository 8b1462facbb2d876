package rpc

import (
	"github.com/rs/zerolog"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// APIVersion is returned by get_api_version.
const APIVersion = "1.0"

// StarterClient is the subset of pkg/starter.Starter the RPC surface
// drives.
type StarterClient interface {
	StartApplication(strategy types.PlacementStrategy, app *state.ApplicationStatus) (done bool, err error)
	StartProcess(strategy types.PlacementStrategy, p *state.ProcessStatus, extraArgs string) (done bool, err error)
	OwnedApplications() map[string]bool
}

// StopperClient is the subset of pkg/stopper.Stopper the RPC surface
// drives.
type StopperClient interface {
	StopApplication(name string) (done bool, err error)
	StopProcess(p *state.ProcessStatus) (done bool, err error)
	OwnedApplications() map[string]bool
}

// FSMClient is the subset of pkg/fsm.FSM the RPC surface queries and
// drives.
type FSMClient interface {
	FSMState() string
	Master() string
	RequestRestart()
	RequestShutdown()
}

// Server is the RPC surface's method receiver, composing the engine's
// subsystems the way the teacher's pkg/api.Server composes a *manager.Manager.
type Server struct {
	ctx     *state.Context
	mapper  *addressmapper.AddressMapper
	fsm     FSMClient
	starter StarterClient
	stopper StopperClient

	log zerolog.Logger
}

// New creates a Server over the given engine subsystems.
func New(ctx *state.Context, mapper *addressmapper.AddressMapper, fsm FSMClient, starter StarterClient, stopper StopperClient) *Server {
	return &Server{ctx: ctx, mapper: mapper, fsm: fsm, starter: starter, stopper: stopper, log: log.WithComponent("rpc")}
}

func (s *Server) recordRPC(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// permittedStates lists, per command, the FSM states (§4.7) in which it
// may be invoked. Commands not listed here are unconditionally
// permitted (the read-only "--- Status ---" surface below).
var permittedStates = map[string]map[string]bool{
	"start_application":   {"OPERATION": true},
	"stop_application":    {"OPERATION": true, "CONCILIATION": true},
	"restart_application": {"OPERATION": true},
	"start_process":       {"OPERATION": true},
	"stop_process":        {"OPERATION": true, "CONCILIATION": true},
	"restart_process":     {"OPERATION": true},
	"restart":             {"OPERATION": true},
	"shutdown":            {"OPERATION": true},
}

// checkState rejects method unless the FSM is currently in one of its
// permitted states (§4.7, §6).
func (s *Server) checkState(method string) error {
	allowed, ok := permittedStates[method]
	if !ok || allowed[s.fsm.FSMState()] {
		return nil
	}
	return fault(types.FaultBadSupvisorsState, method+" not permitted in state "+s.fsm.FSMState())
}

// --- Status ---

// GetAPIVersion returns the RPC surface's version string.
func (s *Server) GetAPIVersion() string {
	return APIVersion
}

// GetSupvisorsState returns the FSM's current state name.
func (s *Server) GetSupvisorsState() string {
	return s.fsm.FSMState()
}

// GetMasterIdentifier returns the pinned master's identifier, or "" if
// none is pinned.
func (s *Server) GetMasterIdentifier() string {
	return s.fsm.Master()
}

// GetAllInstancesInfo returns every known node's view, in configuration
// order.
func (s *Server) GetAllInstancesInfo() []InstanceView {
	out := make([]InstanceView, 0, len(s.mapper.Identifiers()))
	for _, id := range s.mapper.Identifiers() {
		if n, ok := s.ctx.Node(id); ok {
			out = append(out, newInstanceView(id, n))
		}
	}
	return out
}

// GetInstanceInfo returns one node's view.
func (s *Server) GetInstanceInfo(identifier string) (InstanceView, error) {
	n, ok := s.ctx.Node(identifier)
	if !ok {
		return InstanceView{}, fault(types.FaultBadAddress, "unknown instance "+identifier)
	}
	return newInstanceView(identifier, n), nil
}

// GetAllApplicationsInfo returns every known application's derived state.
func (s *Server) GetAllApplicationsInfo() []ApplicationView {
	apps := s.ctx.Applications()
	out := make([]ApplicationView, 0, len(apps))
	for _, app := range apps {
		out = append(out, newApplicationView(app))
	}
	return out
}

// GetApplicationInfo returns one application's derived state.
func (s *Server) GetApplicationInfo(name string) (ApplicationView, error) {
	app, ok := s.ctx.Application(name)
	if !ok {
		return ApplicationView{}, fault(types.FaultBadName, "unknown application "+name)
	}
	return newApplicationView(app), nil
}

// GetProcessInfo returns one process's aggregate state.
func (s *Server) GetProcessInfo(namespec string) (ProcessView, error) {
	p, ok := s.ctx.Process(namespec)
	if !ok {
		return ProcessView{}, fault(types.FaultBadName, "unknown process "+namespec)
	}
	return newProcessView(p), nil
}

// GetProcessRules returns the configured rules for a process.
func (s *Server) GetProcessRules(namespec string) (types.ProcessRules, error) {
	p, ok := s.ctx.Process(namespec)
	if !ok {
		return types.ProcessRules{}, fault(types.FaultBadName, "unknown process "+namespec)
	}
	return p.Rules, nil
}

// GetConflicts returns every process currently running on more than one
// node.
func (s *Server) GetConflicts() []ProcessView {
	conflicts := s.ctx.Conflicts()
	out := make([]ProcessView, 0, len(conflicts))
	for _, p := range conflicts {
		out = append(out, newProcessView(p))
	}
	return out
}

// --- Commands ---

// StartApplication starts every process of name per strategy (§6). When
// wait is true and the start isn't instantly complete, a DeferredJob is
// returned instead of a final done value.
func (s *Server) StartApplication(strategy types.PlacementStrategy, name string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("start_application", err) }()

	if err = s.checkState("start_application"); err != nil {
		return false, nil, err
	}

	app, ok := s.ctx.Application(name)
	if !ok {
		return false, nil, fault(types.FaultBadName, "unknown application "+name)
	}
	if !app.Managed() {
		return false, nil, fault(types.FaultBadName, "application "+name+" is not managed")
	}
	if !validPlacementStrategy(strategy) {
		return false, nil, fault(types.FaultBadStrategy, string(strategy))
	}

	done, err = s.starter.StartApplication(strategy, app)
	if err != nil || done || !wait {
		return done, nil, err
	}
	return false, newDeferredJob(func() (bool, error) {
		return !s.starter.OwnedApplications()[name], nil
	}), nil
}

// StopApplication stops every running process of name.
func (s *Server) StopApplication(name string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("stop_application", err) }()

	if err = s.checkState("stop_application"); err != nil {
		return false, nil, err
	}

	if _, ok := s.ctx.Application(name); !ok {
		return false, nil, fault(types.FaultBadName, "unknown application "+name)
	}

	done, err = s.stopper.StopApplication(name)
	if err != nil || done || !wait {
		return done, nil, err
	}
	return false, newDeferredJob(func() (bool, error) {
		return !s.stopper.OwnedApplications()[name], nil
	}), nil
}

// RestartApplication stops name, then starts it again per strategy once
// the stop has settled.
func (s *Server) RestartApplication(strategy types.PlacementStrategy, name string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("restart_application", err) }()

	if err = s.checkState("restart_application"); err != nil {
		return false, nil, err
	}

	app, ok := s.ctx.Application(name)
	if !ok {
		return false, nil, fault(types.FaultBadName, "unknown application "+name)
	}
	if !validPlacementStrategy(strategy) {
		return false, nil, fault(types.FaultBadStrategy, string(strategy))
	}

	if _, err = s.stopper.StopApplication(name); err != nil {
		return false, nil, err
	}

	started := false
	poll := func() (bool, error) {
		if !started {
			if s.stopper.OwnedApplications()[name] {
				return false, nil
			}
			if _, err := s.starter.StartApplication(strategy, app); err != nil {
				return false, err
			}
			started = true
			return false, nil
		}
		return !s.starter.OwnedApplications()[name], nil
	}

	if !wait {
		runDetached(poll, s.log)
		return false, nil, nil
	}
	return false, newDeferredJob(poll), nil
}

// StartArgs starts namespec under the LOCAL placement strategy (on the
// local node, if it can take the process's load), passing extraArgs
// through to the local agent.
func (s *Server) StartArgs(namespec, extraArgs string, wait bool) (done bool, job *DeferredJob, err error) {
	return s.StartProcess(types.PlacementLocal, namespec, extraArgs, wait)
}

// StartProcess starts a single process per strategy.
func (s *Server) StartProcess(strategy types.PlacementStrategy, namespec, extraArgs string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("start_process", err) }()

	if err = s.checkState("start_process"); err != nil {
		return false, nil, err
	}

	p, ok := s.ctx.Process(namespec)
	if !ok {
		return false, nil, fault(types.FaultBadName, "unknown process "+namespec)
	}
	if !validPlacementStrategy(strategy) {
		return false, nil, fault(types.FaultBadStrategy, string(strategy))
	}
	if extraArgs != "" && !p.Rules.ExtraArgsAllowed {
		return false, nil, fault(types.FaultBadExtraArguments, namespec+" does not allow extra arguments")
	}

	done, err = s.starter.StartProcess(strategy, p, extraArgs)
	if err != nil || done || !wait {
		return done, nil, err
	}
	return false, newDeferredJob(func() (bool, error) {
		return !s.starter.OwnedApplications()[p.Application], nil
	}), nil
}

// StopProcess stops a single process on every node currently running it.
func (s *Server) StopProcess(namespec string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("stop_process", err) }()

	if err = s.checkState("stop_process"); err != nil {
		return false, nil, err
	}

	p, ok := s.ctx.Process(namespec)
	if !ok {
		return false, nil, fault(types.FaultBadName, "unknown process "+namespec)
	}
	if p.Stopped() {
		return false, nil, fault(types.FaultNotRunning, namespec)
	}

	done, err = s.stopper.StopProcess(p)
	if err != nil || done || !wait {
		return done, nil, err
	}
	return false, newDeferredJob(func() (bool, error) {
		return p.Stopped(), nil
	}), nil
}

// RestartProcess stops namespec, then starts it again per strategy once
// the stop has settled.
func (s *Server) RestartProcess(strategy types.PlacementStrategy, namespec, extraArgs string, wait bool) (done bool, job *DeferredJob, err error) {
	defer func() { s.recordRPC("restart_process", err) }()

	if err = s.checkState("restart_process"); err != nil {
		return false, nil, err
	}

	p, ok := s.ctx.Process(namespec)
	if !ok {
		return false, nil, fault(types.FaultBadName, "unknown process "+namespec)
	}
	if !validPlacementStrategy(strategy) {
		return false, nil, fault(types.FaultBadStrategy, string(strategy))
	}

	if _, err = s.stopper.StopProcess(p); err != nil {
		return false, nil, err
	}

	started := false
	poll := func() (bool, error) {
		if !started {
			if !p.Stopped() {
				return false, nil
			}
			if _, err := s.starter.StartProcess(strategy, p, extraArgs); err != nil {
				return false, err
			}
			started = true
			return false, nil
		}
		return !s.starter.OwnedApplications()[p.Application], nil
	}

	if !wait {
		runDetached(poll, s.log)
		return false, nil, nil
	}
	return false, newDeferredJob(poll), nil
}

// Restart requests a full cluster restart (§4.7: every peer restarts,
// then this node does).
func (s *Server) Restart() (err error) {
	defer func() { s.recordRPC("restart", err) }()

	if err = s.checkState("restart"); err != nil {
		return err
	}
	s.fsm.RequestRestart()
	return nil
}

// Shutdown requests a full cluster shutdown.
func (s *Server) Shutdown() (err error) {
	defer func() { s.recordRPC("shutdown", err) }()

	if err = s.checkState("shutdown"); err != nil {
		return err
	}
	s.fsm.RequestShutdown()
	return nil
}

func validPlacementStrategy(strategy types.PlacementStrategy) bool {
	switch strategy {
	case types.PlacementConfig, types.PlacementLessLoaded, types.PlacementMostLoaded, types.PlacementLocal:
		return true
	default:
		return false
	}
}
