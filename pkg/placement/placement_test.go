package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"supvisors/pkg/types"
)

func TestChooseNodeLessLoaded(t *testing.T) {
	// S1 — Placement under load cap.
	tests := []struct {
		name         string
		expectedLoad int
		wantID       string
		wantOK       bool
	}{
		{"50 load admits A (40+50<100, less loaded than B)", 50, "A", true},
		{"61 load admits neither (both would reach/exceed 100)", 61, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := []Candidate{
				{Identifier: "A", Running: true, Load: 40, Sequence: 0},
				{Identifier: "B", Running: true, Load: 60, Sequence: 1},
			}
			id, ok := ChooseNode(types.PlacementLessLoaded, candidates, tt.expectedLoad, "A")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestChooseNodeConfig(t *testing.T) {
	candidates := []Candidate{
		{Identifier: "A", Running: false, Load: 0, Sequence: 0},
		{Identifier: "B", Running: true, Load: 10, Sequence: 1},
		{Identifier: "C", Running: true, Load: 0, Sequence: 2},
	}
	id, ok := ChooseNode(types.PlacementConfig, candidates, 20, "A")
	assert.True(t, ok)
	assert.Equal(t, "B", id) // A is not RUNNING, B is first accepting in config order
}

func TestChooseNodeMostLoaded(t *testing.T) {
	candidates := []Candidate{
		{Identifier: "A", Running: true, Load: 10, Sequence: 0},
		{Identifier: "B", Running: true, Load: 40, Sequence: 1},
	}
	id, ok := ChooseNode(types.PlacementMostLoaded, candidates, 10, "A")
	assert.True(t, ok)
	assert.Equal(t, "B", id)
}

func TestChooseNodeLocal(t *testing.T) {
	candidates := []Candidate{
		{Identifier: "A", Running: true, Load: 90, Sequence: 0},
		{Identifier: "B", Running: true, Load: 10, Sequence: 1},
	}

	t.Run("local overloaded refuses even though another node has room", func(t *testing.T) {
		_, ok := ChooseNode(types.PlacementLocal, candidates, 20, "A")
		assert.False(t, ok)
	})

	t.Run("local with room accepts", func(t *testing.T) {
		id, ok := ChooseNode(types.PlacementLocal, candidates, 20, "B")
		assert.True(t, ok)
		assert.Equal(t, "B", id)
	})
}
