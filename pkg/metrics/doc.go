/*
Package metrics defines and registers the Prometheus metrics exposed by a
supvisors node: population gauges for nodes/applications/processes, FSM
state and transition counters, placement/starter/stopper timing
histograms, conciliation and running-failure counters, and outbound RPC
counters and latency for the EventLoop's Proxy.

Collector samples a Source (pkg/engine.Engine satisfies it) on a ticker
and updates the population and FSM gauges; the counters, the RPC latency
histogram and the deferred-job gauge are updated directly by the package
that produces the event (fsm, failurehandler, conciliation, eventloop,
rpc). The placement, starter and stopper duration histograms are
registered, but no package observes them.

Metrics are served via Handler() at /metrics for scraping.
*/
package metrics
