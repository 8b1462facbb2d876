/*
Package starter drives ordered application/process startup (§4.3): an
application's processes are grouped into sub-sequences by
start_sequence, sub-sequences run strictly in order, and processes
within a sub-sequence are issued concurrently. Placement is delegated to
pkg/placement; outbound RPCs are delegated to a Dispatcher so this
package never talks to the network directly.
*/
package starter
