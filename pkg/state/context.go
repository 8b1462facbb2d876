package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/log"
	"supvisors/pkg/types"
)

// Context is the single mutable registry of NodeStatus, ProcessStatus,
// and ApplicationStatus — the sole source of truth for cluster state
// (§4.1).
type Context struct {
	mu sync.Mutex

	mapper *addressmapper.AddressMapper

	nodes        map[string]*NodeStatus
	applications map[string]*ApplicationStatus

	synchroTimeout time.Duration
	isolationDelay time.Duration

	log zerolog.Logger
}

// New creates a Context pre-populated with a NodeStatus for every
// identifier the mapper knows about, all starting UNKNOWN.
func New(mapper *addressmapper.AddressMapper, synchroTimeout, isolationDelay time.Duration) *Context {
	c := &Context{
		mapper:         mapper,
		nodes:          make(map[string]*NodeStatus),
		applications:   make(map[string]*ApplicationStatus),
		synchroTimeout: synchroTimeout,
		isolationDelay: isolationDelay,
		log:            log.WithComponent("state"),
	}
	for _, id := range mapper.Identifiers() {
		c.nodes[id] = NewNodeStatus(id, mapper.Sequence(id))
	}
	return c
}

// RegisterApplication declares an application's rules ahead of any
// process event referencing it. Idempotent.
func (c *Context) RegisterApplication(name string, rules types.ApplicationRules) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.applications[name]; ok {
		return
	}
	c.applications[name] = NewApplicationStatus(name, rules)
}

// RegisterProcess declares a process's rules ahead of any event
// referencing it, creating the owning application if needed. Idempotent:
// a second call for the same namespec updates the stored rules in place
// so a config reload can retarget an already-running process.
func (c *Context) RegisterProcess(namespec string, rules types.ProcessRules) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ps, err := c.processLocked(namespec, rules)
	if err != nil {
		return err
	}
	ps.Rules = rules
	return nil
}

// LoadNodeEvent updates a node's clocks on tick arrival and advances
// UNKNOWN→CHECKING so the EventLoop knows to issue a CHECK_INSTANCE probe
// (§4.1). now is the local Unix time of receipt.
func (c *Context) LoadNodeEvent(identifier string, remoteTime int64, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[identifier]
	if !ok {
		return fmt.Errorf("state: unknown node %q", identifier)
	}

	n.touch(remoteTime, now.Unix())
	if n.State == types.NodeUnknown {
		n.transition(types.NodeChecking, now.Unix())
	}
	return nil
}

// AuthorizeNode applies the outcome of a CHECK_INSTANCE probe: allowed
// moves CHECKING (or SILENT, on reconnect) to RUNNING; a rejection
// isolates the node immediately (S5), since a peer reporting us ISOLATED
// means this node must stop trusting that peer's view of the cluster.
func (c *Context) AuthorizeNode(identifier string, allowed bool, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[identifier]
	if !ok {
		return fmt.Errorf("state: unknown node %q", identifier)
	}

	if allowed {
		n.transition(types.NodeRunning, now.Unix())
	} else {
		n.transition(types.NodeIsolated, now.Unix())
	}
	return nil
}

// LoadProcessInfo replaces identifier's slice of every process info in
// infos, creating ProcessStatus/ApplicationStatus records on first
// mention, then recomputes the reporting node's Load (§4.1, invariant 3).
func (c *Context) LoadProcessInfo(identifier string, infos []types.ProcessInfo, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[identifier]
	if !ok {
		return fmt.Errorf("state: unknown node %q", identifier)
	}

	for _, info := range infos {
		ps, err := c.processLocked(info.Namespec, types.ProcessRules{})
		if err != nil {
			c.log.Warn().Err(err).Str("namespec", info.Namespec).Msg("dropping malformed process report")
			continue
		}
		ps.UpdateInfo(identifier, info, now)
	}

	load := 0
	for _, app := range c.applications {
		for _, ps := range app.Processes {
			if info, ok := ps.Info[identifier]; ok && (info.State == types.ProcessRunning || info.State.Transitioning()) {
				load += ps.Rules.ExpectedLoad
			}
		}
	}
	n.Load = load
	return nil
}

// processLocked returns the ProcessStatus for namespec, creating it (and
// its owning ApplicationStatus, if not yet registered) on first mention.
// Callers must hold c.mu.
func (c *Context) processLocked(namespec string, defaultRules types.ProcessRules) (*ProcessStatus, error) {
	app, _, ok := types.SplitNamespec(namespec)
	if !ok {
		return nil, fmt.Errorf("state: invalid namespec %q", namespec)
	}

	appStatus, ok := c.applications[app]
	if !ok {
		appStatus = NewApplicationStatus(app, types.ApplicationRules{})
		c.applications[app] = appStatus
	}

	_, name, _ := types.SplitNamespec(namespec)
	if ps, ok := appStatus.Processes[name]; ok {
		return ps, nil
	}

	ps, err := NewProcessStatus(namespec, defaultRules)
	if err != nil {
		return nil, err
	}
	appStatus.AddProcess(ps)
	return ps, nil
}

// OnTimer advances node liveness: SILENT once a node's last local touch
// exceeds synchroTimeout, ISOLATING after isolationDelay spent SILENT,
// and ISOLATED one tick after that (§4.1).
func (c *Context) OnTimer(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowUnix := now.Unix()
	for _, n := range c.nodes {
		switch n.State {
		case types.NodeChecking, types.NodeRunning:
			if nowUnix-n.LocalTime > int64(c.synchroTimeout.Seconds()) {
				n.transition(types.NodeSilent, nowUnix)
			}
		case types.NodeSilent:
			if time.Duration(nowUnix-n.StateChangedAt)*time.Second > c.isolationDelay {
				n.transition(types.NodeIsolating, nowUnix)
			}
		case types.NodeIsolating:
			n.transition(types.NodeIsolated, nowUnix)
		}
	}
}

// Conflicts returns every process currently reported RUNNING on more
// than one node.
func (c *Context) Conflicts() []*ProcessStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*ProcessStatus
	for _, app := range c.applications {
		for _, p := range app.Processes {
			if p.Conflicting() {
				out = append(out, p)
			}
		}
	}
	return out
}

// Invalidate drops identifier's reports from every ProcessStatus, e.g.
// after node loss, and sets that node's Load to 0. Other nodes' loads
// come from their own reports and are left unchanged.
func (c *Context) Invalidate(identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, app := range c.applications {
		for _, p := range app.Processes {
			p.RemoveIdentifier(identifier)
		}
	}
	if n, ok := c.nodes[identifier]; ok {
		n.Load = 0
	}
}

// Node returns the named node, or false if unknown.
func (c *Context) Node(identifier string) (NodeStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[identifier]
	if !ok {
		return NodeStatus{}, false
	}
	return *n, true
}

// RunningNodes returns the identifiers currently RUNNING, in
// configuration order.
func (c *Context) RunningNodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, id := range c.mapper.Identifiers() {
		if n, ok := c.nodes[id]; ok && n.Running() {
			out = append(out, id)
		}
	}
	return out
}

// Application returns the named application, or false if unknown.
func (c *Context) Application(name string) (*ApplicationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, ok := c.applications[name]
	return app, ok
}

// Process returns the named process, or false if unknown.
func (c *Context) Process(namespec string) (*ProcessStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	app, name, ok := types.SplitNamespec(namespec)
	if !ok {
		return nil, false
	}
	appStatus, ok := c.applications[app]
	if !ok {
		return nil, false
	}
	ps, ok := appStatus.Processes[name]
	return ps, ok
}

// Applications returns every known application.
func (c *Context) Applications() []*ApplicationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ApplicationStatus, 0, len(c.applications))
	for _, app := range c.applications {
		out = append(out, app)
	}
	return out
}

// NodeCounts implements pkg/metrics.Source.
func (c *Context) NodeCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, n := range c.nodes {
		counts[string(n.State)]++
	}
	return counts
}

// ApplicationCounts implements pkg/metrics.Source.
func (c *Context) ApplicationCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, app := range c.applications {
		counts[string(app.State())]++
	}
	return counts
}

// ProcessCounts implements pkg/metrics.Source.
func (c *Context) ProcessCounts() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, app := range c.applications {
		for _, p := range app.Processes {
			counts[string(p.State())]++
		}
	}
	return counts
}
