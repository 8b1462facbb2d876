package types

import "time"

// NodeState is the liveness state of a peer supervisor instance.
type NodeState string

const (
	NodeUnknown   NodeState = "UNKNOWN"
	NodeChecking  NodeState = "CHECKING"
	NodeRunning   NodeState = "RUNNING"
	NodeSilent    NodeState = "SILENT"
	NodeIsolating NodeState = "ISOLATING"
	NodeIsolated  NodeState = "ISOLATED"
)

// ProcessState is the aggregate lifecycle state of a process, modeled after
// the local supervisor agent's own process state machine.
type ProcessState string

const (
	ProcessStopped  ProcessState = "STOPPED"
	ProcessStarting ProcessState = "STARTING"
	ProcessBackoff  ProcessState = "BACKOFF"
	ProcessRunning  ProcessState = "RUNNING"
	ProcessStopping ProcessState = "STOPPING"
	ProcessExited   ProcessState = "EXITED"
	ProcessFatal    ProcessState = "FATAL"
	ProcessUnknown  ProcessState = "UNKNOWN"
)

// Stopped reports whether the state counts as "not running" for the
// purposes of wait_exit / Starter job completion.
func (s ProcessState) Stopped() bool {
	switch s {
	case ProcessStopped, ProcessExited, ProcessFatal, ProcessUnknown:
		return true
	default:
		return false
	}
}

// Transitioning reports whether the process is still in a starting phase.
func (s ProcessState) Transitioning() bool {
	return s == ProcessStarting || s == ProcessBackoff
}

// ApplicationState is the aggregate state of an application, derived purely
// from the states of its processes (invariant 1, §3).
type ApplicationState string

const (
	ApplicationStopped  ApplicationState = "STOPPED"
	ApplicationStarting ApplicationState = "STARTING"
	ApplicationRunning  ApplicationState = "RUNNING"
	ApplicationStopping ApplicationState = "STOPPING"
)

// PlacementStrategy selects the node a new process instance lands on.
type PlacementStrategy string

const (
	PlacementConfig     PlacementStrategy = "CONFIG"
	PlacementLessLoaded PlacementStrategy = "LESS_LOADED"
	PlacementMostLoaded PlacementStrategy = "MOST_LOADED"
	PlacementLocal      PlacementStrategy = "LOCAL"
)

// StartingFailureStrategy governs what the Starter does when a process
// fails to reach RUNNING within its deadline.
type StartingFailureStrategy string

const (
	StartingFailureAbort    StartingFailureStrategy = "ABORT"
	StartingFailureStop     StartingFailureStrategy = "STOP"
	StartingFailureContinue StartingFailureStrategy = "CONTINUE"
)

// RunningFailureStrategy governs the FailureHandler's reaction to a running
// process unexpectedly leaving RUNNING.
type RunningFailureStrategy string

const (
	RunningFailureContinue           RunningFailureStrategy = "CONTINUE"
	RunningFailureRestartProcess     RunningFailureStrategy = "RESTART_PROCESS"
	RunningFailureRestartApplication RunningFailureStrategy = "RESTART_APPLICATION"
	RunningFailureStopApplication    RunningFailureStrategy = "STOP_APPLICATION"
)

// Priority orders running-failure strategies from weakest to strongest, per
// the FailureHandler's "highest wins" rule (§4.5).
func (s RunningFailureStrategy) Priority() int {
	switch s {
	case RunningFailureStopApplication:
		return 3
	case RunningFailureRestartApplication:
		return 2
	case RunningFailureRestartProcess:
		return 1
	default:
		return 0
	}
}

// ConciliationStrategy picks how the ConciliationEngine resolves a process
// reported running on more than one node at once.
type ConciliationStrategy string

const (
	ConciliationSenicide       ConciliationStrategy = "SENICIDE"
	ConciliationInfanticide    ConciliationStrategy = "INFANTICIDE"
	ConciliationUser           ConciliationStrategy = "USER"
	ConciliationStop           ConciliationStrategy = "STOP"
	ConciliationRestart        ConciliationStrategy = "RESTART"
	ConciliationRunningFailure ConciliationStrategy = "RUNNING_FAILURE"
)

// ProcessRules is the declarative, per-process configuration consulted by
// the Starter, Stopper, and FailureHandler. It is the Go analogue of the
// source's process_rules record; see pkg/config for how a populated value
// reaches the engine.
type ProcessRules struct {
	Nodes                   []string                `yaml:"nodes"`
	StartSequence           int                     `yaml:"start_sequence"`
	StopSequence            int                     `yaml:"stop_sequence"`
	Required                bool                    `yaml:"required"`
	WaitExit                bool                    `yaml:"wait_exit"`
	ExpectedLoad            int                     `yaml:"expected_load"`
	ExtraArgsAllowed        bool                    `yaml:"extra_args_allowed"`
	StartingFailureStrategy StartingFailureStrategy `yaml:"starting_failure_strategy"`
	RunningFailureStrategy  RunningFailureStrategy  `yaml:"running_failure_strategy"`
}

// ApplicationRules is the declarative per-application configuration. An
// application with StartSequence == 0 is unmanaged: it is never subject to
// automatic deployment or coordinated failure handling.
type ApplicationRules struct {
	StartSequence    int               `yaml:"start_sequence"`
	StopSequence     int               `yaml:"stop_sequence"`
	Strategy         PlacementStrategy `yaml:"strategy"`
	StartingStrategy ConciliationStrategy `yaml:"starting_strategy"`
}

// Managed reports whether this application participates in deployment and
// coordinated failure handling (glossary: "Managed application").
func (r ApplicationRules) Managed() bool {
	return r.StartSequence > 0
}

// ProcessInfo is one node's report of a single process's instantaneous
// state, as fed into Context.LoadProcessInfo.
type ProcessInfo struct {
	Namespec     string
	Identifier   string
	State        ProcessState
	ExpectedExit bool
	PID          int
	Uptime       time.Duration
	ExtraArgs    string
}

// FaultCode enumerates the RPC-surface contract errors of §6.
type FaultCode string

const (
	FaultBadStrategy         FaultCode = "BAD_STRATEGY"
	FaultBadName             FaultCode = "BAD_NAME"
	FaultBadAddress          FaultCode = "BAD_ADDRESS"
	FaultAlreadyStarted      FaultCode = "ALREADY_STARTED"
	FaultNotRunning          FaultCode = "NOT_RUNNING"
	FaultAbnormalTermination FaultCode = "ABNORMAL_TERMINATION"
	FaultBadExtraArguments   FaultCode = "BAD_EXTRA_ARGUMENTS"
	FaultBadSupvisorsState   FaultCode = "BAD_SUPVISORS_STATE"
)

// SplitNamespec splits a "group:name" namespec into its application and
// process-name components. ok is false if the namespec carries no colon.
func SplitNamespec(namespec string) (application, name string, ok bool) {
	for i := 0; i < len(namespec); i++ {
		if namespec[i] == ':' {
			return namespec[:i], namespec[i+1:], true
		}
	}
	return "", "", false
}
