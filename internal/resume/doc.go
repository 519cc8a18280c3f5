// Package resume repositions a fresh view after an interrupted run.
//
// The checkpoint log is the only input: the last row names the target, and
// the rows for every prefix of its path give the route of names to click
// through. Navigator replays that route, records which names each level
// showed, probes the target for children and passes the resulting
// traverse.ResumePlan to the engine.
package resume
