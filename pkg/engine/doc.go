/*
Package engine is the composition root: it owns exactly one
AddressMapper, Context, FSM, EventLoop/Proxy, Starter, Stopper,
FailureHandler, and ConciliationEngine, wires them together per spec.md's
component design, and exposes Start/Stop plus the RPC surface a
transport-specific front end (cmd/supervisord) serves.
*/
package engine
