// Package model defines the data shared across treewalk's packages.
//
// This package contains the following main types:
//   - Node and Location: what the view driver reports
//   - VisitRecord, FailureRecord, DeniedRecord: per-node outcomes
//   - RunReport and RunStats: the result of one traversal execution
//   - Outcome: how an execution ended
//
// Models live in their own package so that traverse, resume, report and
// database can share them without import cycles. They serialize to JSON for
// the summary file and the history database.
package model
