package placement

import "supvisors/pkg/types"

// Candidate is one node's eligibility snapshot as seen by the caller
// (pkg/starter), restricted beforehand to a process's allowed nodes.
type Candidate struct {
	Identifier string
	Running    bool
	Load       int
	// Sequence is the node's configuration-order index; candidates must
	// be supplied in ascending Sequence order so ties break by
	// configuration order (§4.2).
	Sequence int
}

// accepts reports whether c can take on expectedLoad: RUNNING and
// load+expectedLoad < 100 (§4.2).
func (c Candidate) accepts(expectedLoad int) bool {
	return c.Running && c.Load+expectedLoad < 100
}

// ChooseNode selects a node for a process with expectedLoad, among
// candidates (already filtered to the process's allowed nodes and sorted
// by configuration order), using strategy. Returns ok=false if no
// candidate accepts the load.
func ChooseNode(strategy types.PlacementStrategy, candidates []Candidate, expectedLoad int, local string) (identifier string, ok bool) {
	switch strategy {
	case types.PlacementConfig:
		return chooseConfig(candidates, expectedLoad)
	case types.PlacementLessLoaded:
		return chooseByLoad(candidates, expectedLoad, false)
	case types.PlacementMostLoaded:
		return chooseByLoad(candidates, expectedLoad, true)
	case types.PlacementLocal:
		return chooseLocal(candidates, expectedLoad, local)
	default:
		return "", false
	}
}

func chooseConfig(candidates []Candidate, expectedLoad int) (string, bool) {
	for _, c := range candidates {
		if c.accepts(expectedLoad) {
			return c.Identifier, true
		}
	}
	return "", false
}

// chooseByLoad picks the accepting candidate with the minimum
// (LESS_LOADED) or maximum (MOST_LOADED) load. candidates is already in configuration order, so
// a strict inequality on the running best keeps the first tie as the
// winner, matching "ties broken by configuration order".
func chooseByLoad(candidates []Candidate, expectedLoad int, highest bool) (string, bool) {
	best := ""
	bestLoad := 0
	found := false

	for _, c := range candidates {
		if !c.accepts(expectedLoad) {
			continue
		}
		if !found {
			best, bestLoad, found = c.Identifier, c.Load, true
			continue
		}
		if (highest && c.Load > bestLoad) || (!highest && c.Load < bestLoad) {
			best, bestLoad = c.Identifier, c.Load
		}
	}
	return best, found
}

func chooseLocal(candidates []Candidate, expectedLoad int, local string) (string, bool) {
	for _, c := range candidates {
		if c.Identifier == local {
			if c.accepts(expectedLoad) {
				return local, true
			}
			return "", false
		}
	}
	return "", false
}
