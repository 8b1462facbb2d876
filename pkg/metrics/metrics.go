package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supvisors_nodes_total",
			Help: "Total number of nodes by NodeState",
		},
		[]string{"state"},
	)

	ApplicationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supvisors_applications_total",
			Help: "Total number of applications by ApplicationState",
		},
		[]string{"state"},
	)

	ProcessesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supvisors_processes_total",
			Help: "Total number of process instances by ProcessState",
		},
		[]string{"state"},
	)

	// FSM metrics
	FSMState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "supvisors_fsm_state",
			Help: "1 for the FSM's current state, 0 otherwise",
		},
		[]string{"state"},
	)

	FSMIsMaster = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supvisors_fsm_is_master",
			Help: "Whether this node is the elected master (1 = master, 0 = not)",
		},
	)

	FSMTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_fsm_transitions_total",
			Help: "Total FSM state transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	// Placement / deployment metrics
	PlacementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supvisors_placement_duration_seconds",
			Help:    "Time taken to choose a node for a process instance",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	StarterJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supvisors_starter_job_duration_seconds",
			Help:    "Time taken for a Starter job to settle (RUNNING, FATAL, or deadline)",
			Buckets: prometheus.DefBuckets,
		},
	)

	StopperJobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "supvisors_stopper_job_duration_seconds",
			Help:    "Time taken for a Stopper job to settle (STOPPED or deadline)",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeploymentCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_deployment_cycles_total",
			Help: "Total deployment cycles completed, by outcome",
		},
		[]string{"outcome"},
	)

	// Failure handling / conciliation metrics
	RunningFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_running_failures_total",
			Help: "Total running-failure jobs triggered, by RunningFailureStrategy",
		},
		[]string{"strategy"},
	)

	ConciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_conciliations_total",
			Help: "Total conflicts resolved by the conciliation engine, by ConciliationStrategy",
		},
		[]string{"strategy"},
	)

	// EventLoop / proxy metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_rpc_requests_total",
			Help: "Total outbound proxy RPCs by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "supvisors_rpc_request_duration_seconds",
			Help:    "Outbound proxy RPC duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	DeferredJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "supvisors_deferred_jobs_in_flight",
			Help: "Number of deferred RPC jobs currently awaiting a poll result",
		},
	)

	// Event ingestion metrics
	PeerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supvisors_peer_events_total",
			Help: "Total inbound peer events processed by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(ApplicationsTotal)
	prometheus.MustRegister(ProcessesTotal)
	prometheus.MustRegister(FSMState)
	prometheus.MustRegister(FSMIsMaster)
	prometheus.MustRegister(FSMTransitionsTotal)
	prometheus.MustRegister(PlacementDuration)
	prometheus.MustRegister(StarterJobDuration)
	prometheus.MustRegister(StopperJobDuration)
	prometheus.MustRegister(DeploymentCyclesTotal)
	prometheus.MustRegister(RunningFailuresTotal)
	prometheus.MustRegister(ConciliationsTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(DeferredJobsInFlight)
	prometheus.MustRegister(PeerEventsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
