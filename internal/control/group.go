package control

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Listeners selects which operator channels drive a Signal.
type Listeners struct {
	// Signals enables the SIGINT/SIGTERM listener.
	Signals bool

	// Input, when non-nil, is read for line commands (usually os.Stdin).
	Input io.Reader

	// File, when non-empty, is the control file to watch.
	File string
}

// Run starts the enabled listeners and blocks until ctx is done or one of
// them fails. cancel is what the second OS signal calls.
func (l Listeners) Run(ctx context.Context, sig *Signal, cancel context.CancelFunc, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	g, gctx := errgroup.WithContext(ctx)

	if l.Signals {
		g.Go(func() error {
			return WatchSignals(gctx, sig, cancel, logger)
		})
	}
	if l.Input != nil {
		g.Go(func() error {
			return WatchInput(gctx, l.Input, sig, logger)
		})
	}
	if l.File != "" {
		g.Go(func() error {
			return WatchFile(gctx, l.File, sig, logger)
		})
	}

	return g.Wait()
}
