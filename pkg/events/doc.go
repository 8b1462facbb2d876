/*
Package events implements an in-memory pub/sub broker for the peer event
channel described at the control-thread/worker boundary: a tagged union
of TICK, STATE, PROCESS, PROCESS_ADDED, PROCESS_REMOVED, AUTHORIZATION,
and REMOTE_INFO items.

A transport receiver publishes inbound items as they arrive, and the
EventLoop publishes its CHECK_INSTANCE probe results (AUTHORIZATION,
REMOTE_INFO) the same way. The EventLoop is the one subscriber: it applies
each event to Context.

Publish waits for room in the broker's 256-event queue (or for Stop). The
broadcast from that queue is non-blocking: a subscriber whose 64-slot
buffer is full misses the event rather than stalling the broadcast loop,
trading guaranteed delivery for throughput, which is acceptable since the
next TICK supersedes any event it drops.
*/
package events
