package rpc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

type fakeStarter struct {
	mu                  sync.Mutex
	owned               map[string]bool
	err                 error
	done                bool
	startApplicationHit int
	startProcessHit     int
}

func (f *fakeStarter) StartApplication(types.PlacementStrategy, *state.ApplicationStatus) (bool, error) {
	f.mu.Lock()
	f.startApplicationHit++
	f.mu.Unlock()
	return f.done, f.err
}

func (f *fakeStarter) StartProcess(types.PlacementStrategy, *state.ProcessStatus, string) (bool, error) {
	f.mu.Lock()
	f.startProcessHit++
	f.mu.Unlock()
	return f.done, f.err
}

func (f *fakeStarter) OwnedApplications() map[string]bool { return f.owned }

func (f *fakeStarter) startApplicationHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startApplicationHit
}

func (f *fakeStarter) startProcessHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startProcessHit
}

type fakeStopper struct {
	owned map[string]bool
	err   error
	done  bool
}

func (f *fakeStopper) StopApplication(string) (bool, error) { return f.done, f.err }
func (f *fakeStopper) StopProcess(*state.ProcessStatus) (bool, error) {
	return f.done, f.err
}
func (f *fakeStopper) OwnedApplications() map[string]bool { return f.owned }

type fakeFSM struct {
	state             string
	master            string
	restart, shutdown bool
}

func (f *fakeFSM) FSMState() string     { return f.state }
func (f *fakeFSM) Master() string       { return f.master }
func (f *fakeFSM) RequestRestart()      { f.restart = true }
func (f *fakeFSM) RequestShutdown()     { f.shutdown = true }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func newTestServer(t *testing.T) (*Server, *state.Context, *fakeStarter, *fakeStopper, *fakeFSM) {
	t.Helper()
	mapper, err := addressmapper.New([]string{"A", "B"}, "A")
	require.NoError(t, err)
	ctx := state.New(mapper, 10*time.Second, 5*time.Second)
	ctx.RegisterApplication("app", types.ApplicationRules{StartSequence: 1})
	require.NoError(t, ctx.RegisterProcess("app:web", types.ProcessRules{StartSequence: 1, ExpectedLoad: 5}))

	starter := &fakeStarter{owned: map[string]bool{}}
	stopper := &fakeStopper{owned: map[string]bool{}}
	fsm := &fakeFSM{state: "OPERATION", master: "A"}
	return New(ctx, mapper, fsm, starter, stopper), ctx, starter, stopper, fsm
}

func TestGetAPIVersionAndSupvisorsState(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	assert.Equal(t, APIVersion, s.GetAPIVersion())
	assert.Equal(t, "OPERATION", s.GetSupvisorsState())
	assert.Equal(t, "A", s.GetMasterIdentifier())
}

func TestGetApplicationInfoUnknownIsFault(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	_, err := s.GetApplicationInfo("ghost")
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadName, f.Code)
}

func TestStartApplicationBadStrategyIsFault(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	_, _, err := s.StartApplication(types.PlacementStrategy("BOGUS"), "app", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadStrategy, f.Code)
}

func TestStartApplicationRejectedOutsideOperation(t *testing.T) {
	s, _, _, _, fsm := newTestServer(t)
	fsm.state = "DEPLOYMENT"

	_, _, err := s.StartApplication(types.PlacementConfig, "app", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadSupvisorsState, f.Code)
}

func TestStopApplicationPermittedInConciliation(t *testing.T) {
	s, _, _, _, fsm := newTestServer(t)
	fsm.state = "CONCILIATION"

	_, _, err := s.StopApplication("app", false)
	assert.NoError(t, err)
}

func TestStopProcessRejectedOutsideOperationOrConciliation(t *testing.T) {
	s, ctx, _, _, fsm := newTestServer(t)
	require.NoError(t, ctx.LoadProcessInfo("A", []types.ProcessInfo{{Namespec: "app:web", State: types.ProcessRunning}}, time.Now()))
	fsm.state = "INITIALIZATION"

	_, _, err := s.StopProcess("app:web", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadSupvisorsState, f.Code)
}

func TestRestartProcessRejectedOutsideOperation(t *testing.T) {
	s, _, _, _, fsm := newTestServer(t)
	fsm.state = "CONCILIATION"

	_, _, err := s.RestartProcess(types.PlacementConfig, "app:web", "", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadSupvisorsState, f.Code)
}

func TestRestartAndShutdownRejectedOutsideOperation(t *testing.T) {
	s, _, _, _, fsm := newTestServer(t)
	fsm.state = "SHUTTING_DOWN"

	err := s.Restart()
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadSupvisorsState, f.Code)
	assert.False(t, fsm.restart)

	err = s.Shutdown()
	require.Error(t, err)
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadSupvisorsState, f.Code)
	assert.False(t, fsm.shutdown)
}

// TestRestartApplicationNoWaitStillStarts confirms that wait=false does
// not abandon a restart after its stop phase: the start phase must
// still complete on its own, driven off the caller's request.
func TestRestartApplicationNoWaitStillStarts(t *testing.T) {
	s, _, starter, stopper, _ := newTestServer(t)
	stopper.done = true

	_, job, err := s.RestartApplication(types.PlacementConfig, "app", false)
	require.NoError(t, err)
	assert.Nil(t, job)

	waitFor(t, func() bool { return starter.startApplicationHits() > 0 })
}

// TestRestartProcessNoWaitStillStarts is TestRestartApplicationNoWaitStillStarts's
// process-level counterpart.
func TestRestartProcessNoWaitStillStarts(t *testing.T) {
	s, _, starter, stopper, _ := newTestServer(t)
	stopper.done = true

	_, job, err := s.RestartProcess(types.PlacementConfig, "app:web", "", false)
	require.NoError(t, err)
	assert.Nil(t, job)

	waitFor(t, func() bool { return starter.startProcessHits() > 0 })
}

func TestStartApplicationWaitReturnsDeferredJobUntilSettled(t *testing.T) {
	s, _, starter, _, _ := newTestServer(t)
	starter.owned["app"] = true

	done, job, err := s.StartApplication(types.PlacementConfig, "app", true)
	require.NoError(t, err)
	assert.False(t, done)
	require.NotNil(t, job)

	settled, err := job.Poll()
	require.NoError(t, err)
	assert.False(t, settled)

	delete(starter.owned, "app")
	settled, err = job.Poll()
	require.NoError(t, err)
	assert.True(t, settled)
}

func TestStartApplicationNoWaitReturnsImmediately(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	done, job, err := s.StartApplication(types.PlacementConfig, "app", false)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Nil(t, job)
}

func TestStopProcessNotRunningIsFault(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	_, _, err := s.StopProcess("app:web", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultNotRunning, f.Code)
}

func TestStartProcessExtraArgsRejectedWhenNotAllowed(t *testing.T) {
	s, _, _, _, _ := newTestServer(t)
	_, _, err := s.StartProcess(types.PlacementConfig, "app:web", "--flag", false)
	require.Error(t, err)
	var f *Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, types.FaultBadExtraArguments, f.Code)
}

func TestRestartAndShutdownDelegateToFSM(t *testing.T) {
	s, _, _, _, fsm := newTestServer(t)
	require.NoError(t, s.Restart())
	require.NoError(t, s.Shutdown())
	assert.True(t, fsm.restart)
	assert.True(t, fsm.shutdown)
}

func TestGetConflictsReportsOnlyConflictingProcesses(t *testing.T) {
	s, ctx, _, _, _ := newTestServer(t)
	require.NoError(t, ctx.LoadProcessInfo("A", []types.ProcessInfo{{Namespec: "app:web", State: types.ProcessRunning}}, time.Now()))
	require.NoError(t, ctx.LoadProcessInfo("B", []types.ProcessInfo{{Namespec: "app:web", State: types.ProcessRunning}}, time.Now()))

	conflicts := s.GetConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "app:web", conflicts[0].Namespec)
	assert.True(t, conflicts[0].Conflicting)
}
