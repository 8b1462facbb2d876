package eventloop

import (
	"context"

	"supvisors/pkg/agent"
)

// Transport is the abstract duplex RPC surface the Proxy issues requests
// over. Any implementation satisfying it works (spec.md §1): a real one
// multiplexes over the wire, pkg/agent.Fake-backed ones drive tests and
// demo mode in-process.
type Transport interface {
	// Agent returns the local supervisor agent RPC surface for identifier
	// (spec.md §1, §6: startProcess/stopProcess/getAllProcessInfo/
	// restart/shutdown), or ok=false if identifier names no configured
	// peer.
	Agent(identifier string) (a agent.Agent, ok bool)

	// PeerViewOfLocal probes identifier's own opinion of the local
	// node's liveness state, for the CHECK_INSTANCE authorization
	// handshake of §4.8: isolated is true iff identifier currently
	// reports the local node as ISOLATING or ISOLATED.
	PeerViewOfLocal(ctx context.Context, identifier string) (isolated bool, err error)
}
