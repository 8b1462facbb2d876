package agent

import (
	"context"
	"sync"

	"supvisors/pkg/types"
)

// Fake is an in-memory Agent used by tests and demo mode: it has no
// real process underneath, it just tracks the state a real agent would
// report.
type Fake struct {
	mu         sync.Mutex
	processes  map[string]types.ProcessInfo
	nextPID    int
	restarted  bool
	shutdown   bool
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{processes: make(map[string]types.ProcessInfo), nextPID: 1}
}

func (f *Fake) StartProcess(_ context.Context, namespec, extraArgs string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPID++
	f.processes[namespec] = types.ProcessInfo{
		Namespec:  namespec,
		State:     types.ProcessRunning,
		PID:       f.nextPID,
		ExtraArgs: extraArgs,
	}
	return nil
}

func (f *Fake) StopProcess(_ context.Context, namespec string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.processes[namespec]; ok {
		info.State = types.ProcessStopped
		info.PID = 0
		f.processes[namespec] = info
	}
	return nil
}

func (f *Fake) GetAllProcessInfo(_ context.Context) ([]types.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.ProcessInfo, 0, len(f.processes))
	for _, info := range f.processes {
		out = append(out, info)
	}
	return out, nil
}

func (f *Fake) Restart(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarted = true
	for namespec, info := range f.processes {
		info.State = types.ProcessStopped
		info.PID = 0
		f.processes[namespec] = info
	}
	return nil
}

func (f *Fake) Shutdown(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = true
	return nil
}

// Restarted reports whether Restart has been called, for test assertions.
func (f *Fake) Restarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarted
}

// ShutdownCalled reports whether Shutdown has been called, for test
// assertions.
func (f *Fake) ShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdown
}
