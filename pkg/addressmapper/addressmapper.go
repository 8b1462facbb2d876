/*
Package addressmapper resolves the set of node identifiers configured for a
supvisors cluster and exposes the local one. It owns no mutable cluster
state — it is the purely-static counterpart to pkg/state.Context — and its
configuration order is the tie-break order used by CONFIG placement and by
NodeStatus.Sequence.
*/
package addressmapper

import "fmt"

// AddressMapper resolves configured node identifiers in configuration
// order and reports which one is local.
type AddressMapper struct {
	identifiers []string
	index       map[string]int
	local       string
}

// New builds an AddressMapper from the ordered list of configured
// identifiers. local must be a member of identifiers.
func New(identifiers []string, local string) (*AddressMapper, error) {
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("addressmapper: no node identifiers configured")
	}

	index := make(map[string]int, len(identifiers))
	for i, id := range identifiers {
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("addressmapper: duplicate identifier %q", id)
		}
		index[id] = i
	}

	if _, ok := index[local]; !ok {
		return nil, fmt.Errorf("addressmapper: local identifier %q not in configured set", local)
	}

	out := make([]string, len(identifiers))
	copy(out, identifiers)

	return &AddressMapper{identifiers: out, index: index, local: local}, nil
}

// Local returns the identifier of this node.
func (m *AddressMapper) Local() string {
	return m.local
}

// Identifiers returns the full configured set, in configuration order.
// Callers must not mutate the returned slice.
func (m *AddressMapper) Identifiers() []string {
	return m.identifiers
}

// Sequence returns the configuration-order index of identifier, or -1 if
// it is not a configured node.
func (m *AddressMapper) Sequence(identifier string) int {
	if i, ok := m.index[identifier]; ok {
		return i
	}
	return -1
}

// Known reports whether identifier is part of the configured set.
func (m *AddressMapper) Known(identifier string) bool {
	_, ok := m.index[identifier]
	return ok
}

// Less orders two identifiers by configuration order, falling back to a
// plain string comparison for identifiers outside the configured set (this
// should not happen in practice but keeps the comparator total).
func (m *AddressMapper) Less(a, b string) bool {
	ia, aok := m.index[a]
	ib, bok := m.index[b]
	switch {
	case aok && bok:
		return ia < ib
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}
