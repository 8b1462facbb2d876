package conciliation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

type recordingStopper struct {
	stopped map[string][]string // namespec -> identifiers
}

func newRecordingStopper() *recordingStopper {
	return &recordingStopper{stopped: make(map[string][]string)}
}

func (s *recordingStopper) StopProcess(p *state.ProcessStatus) (bool, error) {
	return s.StopIdentifiers(p, p.RunningIdentifiers())
}

func (s *recordingStopper) StopIdentifiers(p *state.ProcessStatus, identifiers []string) (bool, error) {
	s.stopped[p.Namespec] = append(s.stopped[p.Namespec], identifiers...)
	return false, nil
}

type recordingHandler struct {
	jobs map[string]types.RunningFailureStrategy
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{jobs: make(map[string]types.RunningFailureStrategy)}
}

func (h *recordingHandler) AddJob(strategy types.RunningFailureStrategy, p *state.ProcessStatus) {
	h.jobs[p.Namespec] = strategy
}

func newConflictingProcess(t *testing.T) (*state.Context, *state.ProcessStatus) {
	t.Helper()
	mapper, err := addressmapper.New([]string{"A", "B"}, "A")
	require.NoError(t, err)
	ctx := state.New(mapper, 10*time.Second, 5*time.Second)
	require.NoError(t, ctx.RegisterProcess("app:p", types.ProcessRules{RunningFailureStrategy: types.RunningFailureRestartProcess}))

	require.NoError(t, ctx.LoadProcessInfo("A", []types.ProcessInfo{{Namespec: "app:p", State: types.ProcessRunning, Uptime: 10 * time.Second}}, time.Now()))
	require.NoError(t, ctx.LoadProcessInfo("B", []types.ProcessInfo{{Namespec: "app:p", State: types.ProcessRunning, Uptime: 30 * time.Second}}, time.Now()))

	app, ok := ctx.Application("app")
	require.True(t, ok)
	return ctx, app.Processes["p"]
}

// TestConciliateSenicideKeepsGreatestUptime is S2: the tiebreak must
// compare local monotonic uptime, keeping B (30s) over A (10s).
func TestConciliateSenicideKeepsGreatestUptime(t *testing.T) {
	ctx, _ := newConflictingProcess(t)
	stopper := newRecordingStopper()
	e := New(ctx, stopper, newRecordingHandler())

	e.Conciliate(types.ConciliationSenicide)

	assert.Equal(t, []string{"A"}, stopper.stopped["app:p"])
}

func TestConciliateInfanticideKeepsLeastUptime(t *testing.T) {
	ctx, _ := newConflictingProcess(t)
	stopper := newRecordingStopper()
	e := New(ctx, stopper, newRecordingHandler())

	e.Conciliate(types.ConciliationInfanticide)

	assert.Equal(t, []string{"B"}, stopper.stopped["app:p"])
}

func TestConciliateRunningFailureStopsAllAndSchedulesPerProcessStrategy(t *testing.T) {
	ctx, _ := newConflictingProcess(t)
	stopper := newRecordingStopper()
	handler := newRecordingHandler()
	e := New(ctx, stopper, handler)

	e.Conciliate(types.ConciliationRunningFailure)

	assert.ElementsMatch(t, []string{"A", "B"}, stopper.stopped["app:p"])
	assert.Equal(t, types.RunningFailureRestartProcess, handler.jobs["app:p"])
}

func TestConciliateUserIsNoop(t *testing.T) {
	ctx, _ := newConflictingProcess(t)
	stopper := newRecordingStopper()
	e := New(ctx, stopper, newRecordingHandler())

	e.Conciliate(types.ConciliationUser)

	assert.Empty(t, stopper.stopped)
}
