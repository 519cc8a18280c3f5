// Package database provides SQLite-based run history for treewalk.
//
// Every finished execution is stored with its visits, failures and denied
// items so that runs can be listed, inspected and compared later. The CSV
// checkpoint in the output directory stays the source of truth for
// resuming; the history database is never read by the traversal itself.
//
// SQLite is used via modernc.org/sqlite, which needs no CGO and keeps the
// database in a single file under the XDG data directory.
package database
