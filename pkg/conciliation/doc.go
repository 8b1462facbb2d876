/*
Package conciliation resolves a process reported RUNNING on more than
one node at once (§4.6), invoked by the FSM on entering CONCILIATION.
SENICIDE keeps the instance with the greatest uptime, INFANTICIDE the
least; both compare local monotonic uptime rather than wall-clock start
time, since nodes are not assumed clock-synchronized. STOP and RESTART
stop every conflicting instance outright; RUNNING_FAILURE additionally
routes each process through its own running_failure_strategy via the
FailureHandler. USER is a no-op left for manual resolution.
*/
package conciliation
