package metrics

import "time"

// Source is whatever can report the engine's current population counts.
// pkg/engine.Engine satisfies this (delegating to pkg/state.Context and
// pkg/fsm.FSM) without pkg/metrics importing any of them.
type Source interface {
	NodeCounts() map[string]int        // by types.NodeState
	ApplicationCounts() map[string]int  // by types.ApplicationState
	ProcessCounts() map[string]int      // by types.ProcessState
	IsMaster() bool
	FSMState() string
}

// Collector periodically samples a Source and updates the corresponding
// gauges, the way a scheduler's background loop ticks a reconciliation
// pass: a single ticker, a stop channel, no per-call goroutines.
type Collector struct {
	source Source
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source Source) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectNodeMetrics()
	c.collectApplicationMetrics()
	c.collectProcessMetrics()
	c.collectFSMMetrics()
}

func (c *Collector) collectNodeMetrics() {
	for state, count := range c.source.NodeCounts() {
		NodesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectApplicationMetrics() {
	for state, count := range c.source.ApplicationCounts() {
		ApplicationsTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectProcessMetrics() {
	for state, count := range c.source.ProcessCounts() {
		ProcessesTotal.WithLabelValues(state).Set(float64(count))
	}
}

func (c *Collector) collectFSMMetrics() {
	if c.source.IsMaster() {
		FSMIsMaster.Set(1)
	} else {
		FSMIsMaster.Set(0)
	}
	FSMState.Reset()
	FSMState.WithLabelValues(c.source.FSMState()).Set(1)
}
