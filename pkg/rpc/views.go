package rpc

import (
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// InstanceView is a node's reported view (get_all_instances_info /
// get_instance_info).
type InstanceView struct {
	Identifier string
	State      types.NodeState
	Sequence   int
	Load       int
}

func newInstanceView(identifier string, n state.NodeStatus) InstanceView {
	return InstanceView{
		Identifier: identifier,
		State:      n.State,
		Sequence:   n.Sequence,
		Load:       n.Load,
	}
}

// ApplicationView is an application's derived state (get_all_applications_info
// / get_application_info).
type ApplicationView struct {
	Name         string
	State        types.ApplicationState
	MajorFailure bool
	MinorFailure bool
}

func newApplicationView(app *state.ApplicationStatus) ApplicationView {
	return ApplicationView{
		Name:         app.Name,
		State:        app.State(),
		MajorFailure: app.MajorFailure(),
		MinorFailure: app.MinorFailure(),
	}
}

// ProcessView is a process's aggregate state (get_process_info /
// get_conflicts).
type ProcessView struct {
	Namespec           string
	State              types.ProcessState
	Conflicting        bool
	RunningIdentifiers []string
}

func newProcessView(p *state.ProcessStatus) ProcessView {
	return ProcessView{
		Namespec:           p.Namespec,
		State:              p.State(),
		Conflicting:        p.Conflicting(),
		RunningIdentifiers: p.RunningIdentifiers(),
	}
}
