// Package pipeline runs the finalize steps of a traversal.
//
// After the engine returns, the walk command builds a Pipeline of steps
// that persist the run: the summary JSON, the optional Markdown report
// and the history database entry. Each step records the files it wrote
// as report artifacts.
package pipeline
