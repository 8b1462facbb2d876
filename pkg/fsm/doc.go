/*
Package fsm implements the cluster-wide state machine of §4.7:

	INITIALIZATION -> DEPLOYMENT -> OPERATION <-> CONCILIATION
	OPERATION -> RESTARTING | SHUTTING_DOWN -> SHUTDOWN
	any RUNNING* -> INITIALIZATION  (master lost)

Entry side effects run once, the instant a transition lands: DEPLOYMENT
pins the master (invariant 4 — the lexicographically smallest RUNNING
identifier at that instant) and replays every managed application's
start sequence; CONCILIATION invokes the ConciliationEngine; RESTARTING
and SHUTTING_DOWN issue their RPC to every remote peer before the local
node, then settle on SHUTDOWN.

FSM never talks to the network or to Context's mutators directly beyond
reading its view — state transitions are driven from Tick, called once
per control-thread loop iteration, mirroring the Starter/Stopper tick
idiom.
*/
package fsm
