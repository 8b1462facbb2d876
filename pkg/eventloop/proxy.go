package eventloop

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/types"
)

// Proxy issues the outbound RPCs of §4.8's EventLoop & Proxy component:
// CHECK_INSTANCE, START_PROCESS, STOP_PROCESS, RESTART, SHUTDOWN. Each
// call runs on the caller's goroutine under a per-call deadline. It
// satisfies pkg/starter.Dispatcher, pkg/stopper.Dispatcher,
// and pkg/fsm.PeerDispatcher, so those job engines never talk to the
// network directly (§5).
//
// Concurrent identical requests (e.g. two sub-sequence jobs racing a
// restart of the same process) are deduplicated with singleflight,
// mirroring the pack's oauth client's use of singleflight to collapse
// concurrent identical fetches.
type Proxy struct {
	transport Transport
	deadline  time.Duration
	group     singleflight.Group

	log zerolog.Logger
}

// NewProxy creates a Proxy over transport. deadline is the default
// per-call RPC deadline applied when ctx carries none (§5: "default the
// tick period").
func NewProxy(transport Transport, deadline time.Duration) *Proxy {
	return &Proxy{
		transport: transport,
		deadline:  deadline,
		log:       log.WithComponent("proxy"),
	}
}

// StartProcess issues START_PROCESS to identifier. Satisfies
// pkg/starter.Dispatcher.
func (p *Proxy) StartProcess(ctx context.Context, identifier, namespec, extraArgs string) error {
	key := "start_process:" + identifier + ":" + namespec
	_, err := p.dedup(key, func() (any, error) {
		return nil, p.call(ctx, "start_process", identifier, func(rctx context.Context) error {
			a, ok := p.transport.Agent(identifier)
			if !ok {
				return fmt.Errorf("eventloop: no agent for %q", identifier)
			}
			return a.StartProcess(rctx, namespec, extraArgs)
		})
	})
	return err
}

// StopProcess issues STOP_PROCESS to identifier. Satisfies
// pkg/stopper.Dispatcher.
func (p *Proxy) StopProcess(ctx context.Context, identifier, namespec string) error {
	key := "stop_process:" + identifier + ":" + namespec
	_, err := p.dedup(key, func() (any, error) {
		return nil, p.call(ctx, "stop_process", identifier, func(rctx context.Context) error {
			a, ok := p.transport.Agent(identifier)
			if !ok {
				return fmt.Errorf("eventloop: no agent for %q", identifier)
			}
			return a.StopProcess(rctx, namespec)
		})
	})
	return err
}

// Restart issues RESTART to identifier. Satisfies
// pkg/fsm.PeerDispatcher.
func (p *Proxy) Restart(ctx context.Context, identifier string) error {
	return p.call(ctx, "restart", identifier, func(rctx context.Context) error {
		a, ok := p.transport.Agent(identifier)
		if !ok {
			return fmt.Errorf("eventloop: no agent for %q", identifier)
		}
		return a.Restart(rctx)
	})
}

// Shutdown issues SHUTDOWN to identifier. Satisfies
// pkg/fsm.PeerDispatcher.
func (p *Proxy) Shutdown(ctx context.Context, identifier string) error {
	return p.call(ctx, "shutdown", identifier, func(rctx context.Context) error {
		a, ok := p.transport.Agent(identifier)
		if !ok {
			return fmt.Errorf("eventloop: no agent for %q", identifier)
		}
		return a.Shutdown(rctx)
	})
}

// CheckInstance probes identifier's view of the local node (§4.8): if
// identifier reports the local node ISOLATING/ISOLATED, allowed is
// false and processList is nil; otherwise it fetches identifier's full
// process list for the caller (the EventLoop) to ingest via
// Context.LoadProcessInfo.
func (p *Proxy) CheckInstance(ctx context.Context, identifier string) (allowed bool, processList []types.ProcessInfo, err error) {
	key := "check_instance:" + identifier
	result, err := p.dedup(key, func() (any, error) {
		return p.checkInstance(ctx, identifier)
	})
	if err != nil {
		return false, nil, err
	}
	r := result.(checkInstanceResult)
	return r.allowed, r.processList, nil
}

type checkInstanceResult struct {
	allowed     bool
	processList []types.ProcessInfo
}

func (p *Proxy) checkInstance(ctx context.Context, identifier string) (any, error) {
	var out checkInstanceResult
	err := p.call(ctx, "check_instance", identifier, func(rctx context.Context) error {
		isolated, err := p.transport.PeerViewOfLocal(rctx, identifier)
		if err != nil {
			return err
		}
		if isolated {
			out = checkInstanceResult{allowed: false}
			return nil
		}

		a, ok := p.transport.Agent(identifier)
		if !ok {
			return fmt.Errorf("eventloop: no agent for %q", identifier)
		}
		infos, err := a.GetAllProcessInfo(rctx)
		if err != nil {
			return err
		}
		out = checkInstanceResult{allowed: true, processList: infos}
		return nil
	})
	return out, err
}

// dedup collapses concurrent identical in-flight requests onto a single
// call, the way pkg/oauth.Client dedupes concurrent metadata fetches.
func (p *Proxy) dedup(key string, fn func() (any, error)) (any, error) {
	result, err, _ := p.group.Do(key, fn)
	return result, err
}

// call wraps fn with the proxy's default deadline when ctx carries none
// (a deadline already on ctx is kept as is, earlier or later) and
// records RPC metrics. fn runs on the caller's goroutine, so the caller
// waits until fn returns or the deadline passes; a transport error is
// logged and returned to the caller, not raised as a panic.
func (p *Proxy) call(ctx context.Context, method, identifier string, fn func(context.Context) error) error {
	rpcCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		rpcCtx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	timer := metrics.NewTimer()
	err := fn(rpcCtx)
	timer.ObserveDurationVec(metrics.RPCRequestDuration, method)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		p.log.Warn().Err(err).Str("method", method).Str("identifier", identifier).Msg("outbound rpc failed")
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	return err
}
