// Package traverse implements the depth-first walker that visits every node
// of a remote, mutable tree view exactly once.
//
// The engine only talks to the view through ViewDriver. It claims all names
// of a level before activating the first one, assigns treepath addresses in
// discovery order, and decides whether an activation revealed children by
// comparing item counts before and after. Visits are handed to a Recorder
// (normally the checkpoint store) one at a time, and Continue picks up a
// run from a ResumePlan built by the resume package.
package traverse
