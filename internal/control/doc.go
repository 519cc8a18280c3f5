// Package control lets an operator start and stop a traversal while it runs.
//
// Signal holds the Ready/Running/Stopped state the engine polls. The
// listeners (OS signals, line commands on stdin, a watched control file)
// only flip that state; they never touch the browser or the checkpoint.
package control
