/*
Package placement implements the four node-selection strategies of
§4.2: CONFIG, LESS_LOADED, MOST_LOADED, and LOCAL. Each is a pure
function over a caller-supplied node load snapshot — no package state,
no I/O.
*/
package placement
