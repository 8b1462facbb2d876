/*
Package rpc is the external RPC surface of §6: status queries and command
methods, addressed by logical name rather than any particular wire
transport. Every command accepting `wait` returns a DeferredJob when the
outcome isn't instantly decidable, polled at the caller's own cadence
until it settles — mirroring the teacher's `pkg/api.Server` method-per-RPC
surface, minus the gRPC/mTLS transport layer itself (spec.md's Non-goals
exclude the wire codec; this package models only the method and event
surface).

Contract violations (unknown name, bad strategy, state forbids the
action) are reported as a *Fault carrying one of types.FaultCode;
anything else bubbles up as a plain error, for the caller to log and
retry.
*/
package rpc
