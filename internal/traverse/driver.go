package traverse

import (
	"context"
	"strings"
	"time"

	"github.com/nao1215/treewalk/internal/model"
)

// ViewDriver is the remote-control surface of the rendered tree.
//
// Nodes returned by EnumerateVisibleNodes or LocateByName are only valid
// until the next Activate call.
type ViewDriver interface {
	// EnumerateVisibleNodes returns the currently visible tree items in
	// display order.
	EnumerateVisibleNodes(ctx context.Context) ([]model.Node, error)

	// Activate clicks or otherwise opens the node. It returns false when
	// the view refused the activation.
	Activate(ctx context.Context, node model.Node) (bool, error)

	// LocateByName finds a visible node whose text equals name exactly.
	LocateByName(ctx context.Context, name string) (model.Node, bool, error)

	// CurrentLocation reports the document the view is showing.
	CurrentLocation(ctx context.Context) (model.Location, error)
}

// ReadyWaiter is implemented by drivers that can tell when the document
// reached after an activation has finished loading.
type ReadyWaiter interface {
	WaitReady(ctx context.Context) error
}

// Recorder makes a visit durable.
type Recorder interface {
	Append(rec model.VisitRecord) error
}

// EventSink receives per-node failures and denials.
type EventSink interface {
	RecordFailure(rec model.FailureRecord) error
	RecordDenied(rec model.DeniedRecord) error
}

// Gate reports whether the operator wants the traversal to keep going.
type Gate interface {
	IsRunning() bool
}

// Delayer paces activations.
type Delayer interface {
	Wait(ctx context.Context) (time.Duration, error)
}

// UniqueNames returns the trimmed text of each node in order, dropping
// empty and repeated names.
func UniqueNames(nodes []model.Node) []string {
	seen := make(map[string]struct{}, len(nodes))
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		name := strings.TrimSpace(n.Text)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
