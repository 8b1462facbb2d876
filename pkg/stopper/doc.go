/*
Package stopper mirrors pkg/starter using stop_sequence instead of
start_sequence (§4.4): it issues stopProcess RPCs to every identifier a
process is currently reported running on, and reports a job complete once
the process's aggregate state settles to STOPPED, EXITED, or FATAL.
*/
package stopper
