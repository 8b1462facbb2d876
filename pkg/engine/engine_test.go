package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supvisors/pkg/agent"
	"supvisors/pkg/config"
	"supvisors/pkg/fsm"
	"supvisors/pkg/types"
)

type fakeTransport struct {
	agents map[string]*agent.Fake
}

func newFakeTransport(identifiers ...string) *fakeTransport {
	t := &fakeTransport{agents: make(map[string]*agent.Fake)}
	for _, id := range identifiers {
		t.agents[id] = agent.NewFake()
	}
	return t
}

func (t *fakeTransport) Agent(identifier string) (agent.Agent, bool) {
	a, ok := t.agents[identifier]
	return a, ok
}

func (t *fakeTransport) PeerViewOfLocal(context.Context, string) (bool, error) {
	return false, nil
}

func singleNodeRules(t *testing.T) *config.Document {
	t.Helper()
	return &config.Document{
		Nodes: []string{"A"},
		Local: "A",
		Applications: map[string]config.ApplicationDocument{
			"app": {
				StartSequence: 1,
				StopSequence:  1,
				Strategy:      "CONFIG",
				Processes: map[string]config.ProcessDocument{
					"q1": {
						Nodes:         []string{"A"},
						StartSequence: 1,
						StopSequence:  1,
						ExpectedLoad:  10,
					},
				},
			},
		},
	}
}

// TestEngineDeploysManagedApplicationToOperation drives a single-node
// Engine from INITIALIZATION through DEPLOYMENT to OPERATION, confirming
// the Starter reached the fake agent and the process's RUNNING report
// flows back into Context before the FSM reports OPERATION (S4/§4.7).
func TestEngineDeploysManagedApplicationToOperation(t *testing.T) {
	doc := singleNodeRules(t)
	transport := newFakeTransport("A")

	now := time.Now()
	cfg := Config{
		Local:      "A",
		Nodes:      []string{"A"},
		Rules:      doc,
		Transport:  transport,
		TickPeriod: 20 * time.Millisecond,
	}

	e, err := New(cfg, now)
	require.NoError(t, err)

	e.Start(now)
	defer e.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.FSMState() == string(fsm.Operation) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, string(fsm.Operation), e.FSMState())
	assert.True(t, e.IsMaster())

	p, ok := e.Context().Process("app:q1")
	require.True(t, ok)
	assert.Equal(t, types.ProcessRunning, p.State())
}

func TestEngineRejectsUnknownLocalIdentifier(t *testing.T) {
	doc := singleNodeRules(t)
	transport := newFakeTransport("A")

	_, err := New(Config{
		Local:     "B",
		Nodes:     []string{"A"},
		Rules:     doc,
		Transport: transport,
	}, time.Now())
	assert.Error(t, err)
}
