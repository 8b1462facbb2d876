/*
Package agent defines the local supervisor agent interface the engine
treats as a remote RPC peer (spec.md §1, §6): startProcess, stopProcess,
getAllProcessInfo, restart, shutdown. The engine never spawns a process
itself — pkg/eventloop.Proxy calls through this interface, whether the
peer sits behind a real transport or (as Fake does here) is simulated
in-process for tests and demo mode.
*/
package agent
