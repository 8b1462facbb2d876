/*
Package log provides structured logging for supvisors using zerolog.

It wraps a single global zerolog.Logger, configurable for JSON or
console output, plus helper constructors for per-component,
per-node, per-application, and per-process child loggers.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("engine starting")

	fsmLog := log.WithComponent("fsm")
	fsmLog.Info().Str("identifier", "10.0.0.1").Msg("entering DEPLOYMENT")

# Design

A single global Logger keeps call sites terse across the engine, fsm,
starter, stopper, failurehandler, conciliation, and eventloop packages.
Component loggers add one field and are otherwise ordinary
zerolog.Logger values — no wrapper type to thread through constructors.
*/
package log
