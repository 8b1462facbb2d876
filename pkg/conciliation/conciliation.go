package conciliation

import (
	"sort"

	"github.com/rs/zerolog"

	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// StopperClient is the subset of pkg/stopper.Stopper the engine needs
// to stop a conflicting process on the identifiers it decides to
// discard.
type StopperClient interface {
	StopProcess(p *state.ProcessStatus) (done bool, err error)
	StopIdentifiers(p *state.ProcessStatus, identifiers []string) (done bool, err error)
}

// FailureHandlerClient is the subset of pkg/failurehandler.Handler the
// RESTART and RUNNING_FAILURE strategies schedule their follow-up job
// through.
type FailureHandlerClient interface {
	AddJob(strategy types.RunningFailureStrategy, p *state.ProcessStatus)
}

// Engine resolves processes Context reports running on more than one
// node at once (§4.6).
type Engine struct {
	ctx     *state.Context
	stopper StopperClient
	handler FailureHandlerClient

	log zerolog.Logger
}

// New creates an Engine.
func New(ctx *state.Context, stopper StopperClient, handler FailureHandlerClient) *Engine {
	return &Engine{ctx: ctx, stopper: stopper, handler: handler, log: log.WithComponent("conciliation")}
}

// Conciliate resolves every process Context currently reports
// conflicting, applying strategy to each.
func (e *Engine) Conciliate(strategy types.ConciliationStrategy) {
	for _, p := range e.ctx.Conflicts() {
		e.conciliateOne(strategy, p)
	}
}

func (e *Engine) conciliateOne(strategy types.ConciliationStrategy, p *state.ProcessStatus) {
	metrics.ConciliationsTotal.WithLabelValues(string(strategy)).Inc()
	switch strategy {
	case types.ConciliationUser:
		// Manual resolution: no action.
	case types.ConciliationSenicide:
		e.keepExtreme(p, true)
	case types.ConciliationInfanticide:
		e.keepExtreme(p, false)
	case types.ConciliationStop:
		e.stop(p)
	case types.ConciliationRestart:
		e.stop(p)
		e.handler.AddJob(types.RunningFailureRestartProcess, p)
	case types.ConciliationRunningFailure:
		e.stop(p)
		e.handler.AddJob(p.Rules.RunningFailureStrategy, p)
	default:
		e.log.Warn().Str("strategy", string(strategy)).Msg("unknown conciliation strategy")
	}
}

// keepExtreme stops every running identifier of p except the one with
// the greatest (senicide) or least (infanticide) uptime, compared by
// local monotonic uptime since nodes are not assumed clock-synchronized.
func (e *Engine) keepExtreme(p *state.ProcessStatus, keepOldest bool) {
	ids := p.RunningIdentifiers()
	if len(ids) < 2 {
		return
	}
	sort.Strings(ids) // deterministic tiebreak when uptimes are equal

	keep := ids[0]
	keepUptime := p.Info[keep].Uptime
	for _, id := range ids[1:] {
		uptime := p.Info[id].Uptime
		better := uptime > keepUptime
		if !keepOldest {
			better = uptime < keepUptime
		}
		if better {
			keep = id
			keepUptime = uptime
		}
	}

	var stop []string
	for _, id := range ids {
		if id != keep {
			stop = append(stop, id)
		}
	}

	e.log.Info().Str("namespec", p.Namespec).Str("keep", keep).Bool("keep_oldest", keepOldest).Msg("conciliating conflicting process")
	if _, err := e.stopper.StopIdentifiers(p, stop); err != nil {
		e.log.Warn().Err(err).Str("namespec", p.Namespec).Msg("conciliation stop failed")
	}
}

func (e *Engine) stop(p *state.ProcessStatus) {
	if _, err := e.stopper.StopProcess(p); err != nil {
		e.log.Warn().Err(err).Str("namespec", p.Namespec).Msg("conciliation stop failed")
	}
}
