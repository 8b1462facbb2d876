package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/types"
)

func newTestContext(t *testing.T, identifiers ...string) *Context {
	t.Helper()
	mapper, err := addressmapper.New(identifiers, identifiers[0])
	require.NoError(t, err)
	return New(mapper, 10*time.Second, 5*time.Second)
}

func TestApplicationState(t *testing.T) {
	tests := []struct {
		name       string
		states     []types.ProcessState
		expected   types.ApplicationState
	}{
		{"no processes", nil, types.ApplicationStopped},
		{"all stopped", []types.ProcessState{types.ProcessStopped, types.ProcessExited}, types.ApplicationStopped},
		{"one running", []types.ProcessState{types.ProcessStopped, types.ProcessRunning}, types.ApplicationRunning},
		{"one starting wins over running", []types.ProcessState{types.ProcessRunning, types.ProcessStarting}, types.ApplicationStarting},
		{"one stopping wins over everything", []types.ProcessState{types.ProcessRunning, types.ProcessStarting, types.ProcessStopping}, types.ApplicationStopping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApplicationStatus("app", types.ApplicationRules{StartSequence: 1})
			for i, st := range tt.states {
				ps, err := NewProcessStatus("app:p"+string(rune('a'+i)), types.ProcessRules{})
				require.NoError(t, err)
				ps.UpdateInfo("node1", types.ProcessInfo{Namespec: ps.Namespec, State: st}, time.Now())
				app.AddProcess(ps)
			}
			assert.Equal(t, tt.expected, app.State())
		})
	}
}

func TestContextLoadProcessInfoComputesNodeLoad(t *testing.T) {
	ctx := newTestContext(t, "A", "B")
	require.NoError(t, ctx.RegisterProcess("app:p1", types.ProcessRules{ExpectedLoad: 30}))
	require.NoError(t, ctx.RegisterProcess("app:p2", types.ProcessRules{ExpectedLoad: 20}))

	err := ctx.LoadProcessInfo("A", []types.ProcessInfo{
		{Namespec: "app:p1", State: types.ProcessRunning},
		{Namespec: "app:p2", State: types.ProcessStarting},
	}, time.Now())
	require.NoError(t, err)

	n, ok := ctx.Node("A")
	require.True(t, ok)
	assert.Equal(t, 50, n.Load) // invariant 3: sum of expected_load for RUNNING/STARTING processes on this node
}

func TestContextConflicts(t *testing.T) {
	ctx := newTestContext(t, "X", "Y")
	require.NoError(t, ctx.RegisterProcess("app:p", types.ProcessRules{}))

	require.NoError(t, ctx.LoadProcessInfo("X", []types.ProcessInfo{{Namespec: "app:p", State: types.ProcessRunning}}, time.Now()))
	assert.Empty(t, ctx.Conflicts())

	require.NoError(t, ctx.LoadProcessInfo("Y", []types.ProcessInfo{{Namespec: "app:p", State: types.ProcessRunning}}, time.Now()))
	conflicts := ctx.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "app:p", conflicts[0].Namespec)
	assert.True(t, conflicts[0].Conflicting())
}

func TestContextAuthorizeNodeRejectionIsolatesImmediately(t *testing.T) {
	// S5 — a remote peer reporting the local node ISOLATED must isolate
	// that peer locally; subsequent ticks from it are then meaningless.
	ctx := newTestContext(t, "local", "R")
	now := time.Now()

	require.NoError(t, ctx.LoadNodeEvent("R", now.Unix(), now))
	n, ok := ctx.Node("R")
	require.True(t, ok)
	assert.Equal(t, types.NodeChecking, n.State)

	require.NoError(t, ctx.AuthorizeNode("R", false, now))
	n, ok = ctx.Node("R")
	require.True(t, ok)
	assert.Equal(t, types.NodeIsolated, n.State)
}

func TestContextOnTimerSilentThenIsolating(t *testing.T) {
	ctx := newTestContext(t, "A", "B")
	start := time.Unix(1000, 0)

	require.NoError(t, ctx.LoadNodeEvent("B", start.Unix(), start))
	require.NoError(t, ctx.AuthorizeNode("B", true, start))

	// Past synchroTimeout (10s) with no further touch: SILENT.
	later := start.Add(11 * time.Second)
	ctx.OnTimer(later)
	n, _ := ctx.Node("B")
	assert.Equal(t, types.NodeSilent, n.State)

	// Past isolationDelay (5s) spent SILENT: ISOLATING, then ISOLATED.
	evenLater := later.Add(6 * time.Second)
	ctx.OnTimer(evenLater)
	n, _ = ctx.Node("B")
	assert.Equal(t, types.NodeIsolating, n.State)

	ctx.OnTimer(evenLater.Add(time.Second))
	n, _ = ctx.Node("B")
	assert.Equal(t, types.NodeIsolated, n.State)
}

func TestContextInvalidateDropsProcessReports(t *testing.T) {
	ctx := newTestContext(t, "A", "B")
	require.NoError(t, ctx.RegisterProcess("app:p", types.ProcessRules{}))
	require.NoError(t, ctx.LoadProcessInfo("A", []types.ProcessInfo{{Namespec: "app:p", State: types.ProcessRunning}}, time.Now()))

	ctx.Invalidate("A")

	app, ok := ctx.Application("app")
	require.True(t, ok)
	ps := app.Processes["p"]
	assert.Empty(t, ps.RunningIdentifiers())
}
