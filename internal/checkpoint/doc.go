// Package checkpoint persists traversal progress.
//
// Store is the append-only CSV visit log (directory_traverse_log.csv). Each
// row is synced before Append returns, and the file alone is enough to
// resume an interrupted run. EventLog keeps the human-facing failure and
// permission-denied logs next to it.
package checkpoint
