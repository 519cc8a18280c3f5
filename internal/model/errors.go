package model

import "errors"

// Error taxonomy shared by the traversal, resume and CLI layers.
// Per-node errors (activation, not found, access denied) never abort a run;
// ErrResumeFailed and ErrCheckpointAppend do.
var (
	// ErrActivationFailed is reported when a located node could not be activated.
	ErrActivationFailed = errors.New("activation failed")

	// ErrNodeNotFound is reported when a node name is no longer visible.
	ErrNodeNotFound = errors.New("node not found")

	// ErrAccessDenied is reported when the reached page indicates missing permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrResumeFailed is wrapped by every checkpoint/tree mismatch found while resuming.
	ErrResumeFailed = errors.New("resume failed")

	// ErrCheckpointAppend is wrapped when a visit could not be made durable.
	ErrCheckpointAppend = errors.New("checkpoint append failed")

	// ErrDepthExceeded marks the structural anomaly of recursing past the depth bound.
	ErrDepthExceeded = errors.New("maximum traversal depth exceeded")
)
