/*
Package state implements Context, the single mutable registry of
NodeStatus, ProcessStatus, and ApplicationStatus. Named state rather
than context to avoid colliding with the standard library's context
package, while remaining the "Context" of the component design.

# Thread Safety

Context is the sole owner of every NodeStatus/ProcessStatus/
ApplicationStatus it holds. All mutating methods take Context's mutex;
callers (pkg/fsm, pkg/starter, pkg/stopper, pkg/failurehandler,
pkg/conciliation) must only invoke them from the control thread, never
from the EventLoop's RPC worker goroutines.
*/
package state
