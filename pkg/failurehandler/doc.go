/*
Package failurehandler implements §4.5's reaction to a running process
unexpectedly leaving RUNNING: it maintains four disjoint job sets keyed
by running_failure_strategy (STOP_APPLICATION, RESTART_APPLICATION,
RESTART_PROCESS, CONTINUE) and two deferred sets (pending starts for a
restart once its stop has settled), and enforces that adding a
higher-priority entry for an application discards every lower-priority
entry concerning it.

TriggerJobs issues the corresponding Stopper/Starter call once per job
on every FSM tick, deferring an application already owned by an
in-flight Starter or Stopper run so the two engines never race the same
application.
*/
package failurehandler
