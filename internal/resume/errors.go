package resume

import (
	"fmt"

	"github.com/nao1215/treewalk/internal/model"
)

// Resume errors. All of them wrap model.ErrResumeFailed.
var (
	// ErrMissingPrefix is returned when a prefix of the target path has no
	// checkpoint row. It is detected before the view is touched.
	ErrMissingPrefix = fmt.Errorf("%w: checkpoint has no row for a path prefix", model.ErrResumeFailed)

	// ErrNameMismatch is returned when the checkpoint names a different node
	// at the target path. It is detected before the view is touched.
	ErrNameMismatch = fmt.Errorf("%w: checkpoint name does not match target", model.ErrResumeFailed)

	// ErrNodeNotFound is returned when a node on the route is not visible.
	ErrNodeNotFound = fmt.Errorf("%w: %w", model.ErrResumeFailed, model.ErrNodeNotFound)

	// ErrRouteActivation is returned when a node on the route cannot be activated.
	ErrRouteActivation = fmt.Errorf("%w: %w", model.ErrResumeFailed, model.ErrActivationFailed)

	// ErrInterrupted is returned when the operator stops the run while the
	// route is being replayed.
	ErrInterrupted = fmt.Errorf("%w: interrupted while replaying route", model.ErrResumeFailed)
)
