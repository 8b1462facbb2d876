package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"supvisors/pkg/addressmapper"
	"supvisors/pkg/events"
	"supvisors/pkg/log"
	"supvisors/pkg/metrics"
	"supvisors/pkg/state"
	"supvisors/pkg/types"
)

// EventLoop drains the peer event Broker and applies every event to
// Context without ever blocking the control thread on I/O (§4.8, §5):
// ingestion runs on its own goroutine fed by the Broker's fan-out, while
// outbound CHECK_INSTANCE probes triggered from Tick run on their own
// goroutine and re-enter as AUTHORIZATION/REMOTE_INFO events once they
// settle.
type EventLoop struct {
	ctx    *state.Context
	mapper *addressmapper.AddressMapper
	broker *events.Broker
	proxy  *Proxy

	sub    events.Subscriber
	stopCh chan struct{}
	wg     sync.WaitGroup

	checking sync.Map // identifier -> struct{}, dedupes in-flight CHECK_INSTANCE probes

	log zerolog.Logger
}

// New creates an EventLoop over ctx/broker/proxy.
func New(ctx *state.Context, mapper *addressmapper.AddressMapper, broker *events.Broker, proxy *Proxy) *EventLoop {
	return &EventLoop{
		ctx:    ctx,
		mapper: mapper,
		broker: broker,
		proxy:  proxy,
		stopCh: make(chan struct{}),
		log:    log.WithComponent("eventloop"),
	}
}

// Start subscribes to the Broker and begins draining inbound events on a
// dedicated goroutine.
func (e *EventLoop) Start() {
	e.sub = e.broker.Subscribe()
	e.wg.Add(1)
	go e.drain()
}

// Stop unsubscribes and waits for the drain goroutine to exit.
func (e *EventLoop) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	if e.sub != nil {
		e.broker.Unsubscribe(e.sub)
	}
}

func (e *EventLoop) drain() {
	defer e.wg.Done()
	for {
		select {
		case ev, ok := <-e.sub:
			if !ok {
				return
			}
			e.apply(ev)
		case <-e.stopCh:
			return
		}
	}
}

// apply ingests one inbound peer event into Context (§4.8).
func (e *EventLoop) apply(ev *events.Event) {
	metrics.PeerEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	now := time.Now()

	switch ev.Kind {
	case events.Tick:
		if n, ok := e.ctx.Node(ev.Identifier); ok && (n.State == types.NodeIsolating || n.State == types.NodeIsolated) {
			// S5: once a peer is isolating/isolated its ticks are ignored
			// outright, not just left un-probed.
			return
		}
		if err := e.ctx.LoadNodeEvent(ev.Identifier, ev.Timestamp.Unix(), now); err != nil {
			e.log.Warn().Err(err).Str("identifier", ev.Identifier).Msg("dropping tick from unknown node")
			return
		}
		if n, ok := e.ctx.Node(ev.Identifier); ok && n.State == types.NodeChecking {
			e.maybeCheckInstance(ev.Identifier)
		}
	case events.Process:
		info, ok := ev.Payload.(types.ProcessInfo)
		if !ok {
			e.log.Warn().Str("identifier", ev.Identifier).Msg("dropping malformed process event")
			return
		}
		if err := e.ctx.LoadProcessInfo(ev.Identifier, []types.ProcessInfo{info}, now); err != nil {
			e.log.Warn().Err(err).Str("identifier", ev.Identifier).Msg("dropping process event from unknown node")
		}
	case events.Authorization:
		if err := e.ctx.AuthorizeNode(ev.Identifier, ev.Allowed, now); err != nil {
			e.log.Warn().Err(err).Str("identifier", ev.Identifier).Msg("dropping authorization from unknown node")
		}
	case events.RemoteInfo:
		infos := make([]types.ProcessInfo, 0, len(ev.ProcessList))
		for _, raw := range ev.ProcessList {
			if info, ok := raw.(types.ProcessInfo); ok {
				infos = append(infos, info)
			}
		}
		if err := e.ctx.LoadProcessInfo(ev.Identifier, infos, now); err != nil {
			e.log.Warn().Err(err).Str("identifier", ev.Identifier).Msg("dropping remote info from unknown node")
		}
	case events.State, events.ProcessAdded, events.ProcessRemoved:
		// Logged only: the FSM derives cluster state from Context, not
		// from a peer's self-reported STATE; PROCESS_ADDED/REMOVED are
		// advisory (the next PROCESS/REMOTE_INFO report is authoritative).
		e.log.Debug().Str("kind", string(ev.Kind)).Str("identifier", ev.Identifier).Msg("peer event")
	}
}

// Tick scans for nodes newly in CHECKING state and, for each not
// already being probed, launches an asynchronous CHECK_INSTANCE — the
// RPC worker side of §5's control-thread/worker split. Call once per
// control-thread iteration.
func (e *EventLoop) Tick(now time.Time) {
	for _, id := range e.mapper.Identifiers() {
		n, ok := e.ctx.Node(id)
		if !ok || n.State != types.NodeChecking {
			continue
		}
		e.maybeCheckInstance(id)
	}
}

func (e *EventLoop) maybeCheckInstance(identifier string) {
	if _, inFlight := e.checking.LoadOrStore(identifier, struct{}{}); inFlight {
		return
	}

	go func() {
		defer e.checking.Delete(identifier)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		allowed, processList, err := e.proxy.CheckInstance(ctx, identifier)
		if err != nil {
			e.log.Warn().Err(err).Str("identifier", identifier).Msg("check_instance probe failed")
			return
		}

		e.broker.Publish(&events.Event{Kind: events.Authorization, Identifier: identifier, Allowed: allowed})
		if !allowed {
			return
		}

		payload := make([]any, len(processList))
		for i, info := range processList {
			payload[i] = info
		}
		e.broker.Publish(&events.Event{Kind: events.RemoteInfo, Identifier: identifier, ProcessList: payload})
	}()
}
