/*
Package config loads the rules document Supvisors consumes on startup.
Parsing the document is explicitly outside the coordination engine's own
scope (spec.md §1: "the core consumes a populated rules structure") —
this package is the thin adapter between a YAML file on disk and the
populated types.ApplicationRules/types.ProcessRules the engine actually
operates on.
*/
package config
