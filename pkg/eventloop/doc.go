/*
Package eventloop implements the engine's transport boundary (spec.md §4.8,
§5): an inbound queue that ingests the peer event channel without blocking
the control thread, and a Proxy that issues outbound RPC requests
(CHECK_INSTANCE, START_PROCESS, STOP_PROCESS, RESTART, SHUTDOWN) against a
Transport, each under a hard per-call deadline. Proxy calls run on the
caller's goroutine: START_PROCESS, STOP_PROCESS, RESTART and SHUTDOWN hold
the caller until the agent answers or the deadline passes; only the
EventLoop's CHECK_INSTANCE probes run on goroutines of their own.

Probe results re-enter as events published back onto the same Broker the
EventLoop drains.
*/
package eventloop
