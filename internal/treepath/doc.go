// Package treepath implements the dotted-integer addresses ("1-2-1") that
// treewalk assigns to tree nodes in discovery order.
//
// Paths are addresses of convenience for logging and resuming. They are not
// stable identifiers: if sibling order changes in the remote tree between
// runs, the same node may receive a different Path.
package treepath
