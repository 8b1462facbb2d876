package rpc

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"supvisors/pkg/metrics"
)

// pollCadence is the ~0.5s cadence §6 specifies for polling a deferred
// job; runDetached reuses it to drive a wait=false two-phase command
// (e.g. a restart's start once its stop has settled) to completion
// without a caller polling it.
const pollCadence = 500 * time.Millisecond

// runDetached drives poll to completion on its own goroutine. Used by
// the wait=false path of commands whose second phase would otherwise
// never run, since nothing else calls poll once no DeferredJob is
// returned to the caller.
func runDetached(poll func() (bool, error), log zerolog.Logger) {
	go func() {
		for {
			done, err := poll()
			if err != nil {
				log.Warn().Err(err).Msg("detached restart job failed")
				return
			}
			if done {
				return
			}
			time.Sleep(pollCadence)
		}
	}()
}

// DeferredJob is the poll handle returned when wait=true and an
// operation's outcome isn't instantly decidable (§6). The caller polls it
// at its own cadence (the reference client does so at ~0.5s) until it
// returns a final boolean or an error.
type DeferredJob struct {
	ID   string
	poll   func() (bool, error)
	done   bool
	result bool
	err    error
}

func newDeferredJob(poll func() (bool, error)) *DeferredJob {
	metrics.DeferredJobsInFlight.Inc()
	return &DeferredJob{ID: uuid.New().String(), poll: poll}
}

// Poll advances the job and reports whether it has settled. Once it has,
// every subsequent call returns the same result without re-invoking poll.
func (d *DeferredJob) Poll() (bool, error) {
	if d.done {
		return d.result, d.err
	}
	done, err := d.poll()
	if done || err != nil {
		d.done = true
		d.result, d.err = done, err
		metrics.DeferredJobsInFlight.Dec()
	}
	return done, err
}
