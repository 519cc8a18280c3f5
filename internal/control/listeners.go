package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Command is an operator instruction parsed from text input.
type Command int

const (
	// CommandNone is input that is not an instruction.
	CommandNone Command = iota
	// CommandStart asks the traversal to run.
	CommandStart
	// CommandStop asks the traversal to halt.
	CommandStop
)

// ParseCommand reads one line of operator input. "start", "go" or a line of
// two spaces start; "stop", "pause", "q" or ESC stop.
func ParseCommand(line string) Command {
	if strings.TrimRight(line, "\r\n") == "  " {
		return CommandStart
	}
	if strings.ContainsRune(line, '\x1b') {
		return CommandStop
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "start", "go", "s":
		return CommandStart
	case "stop", "pause", "q", "quit", "p":
		return CommandStop
	default:
		return CommandNone
	}
}

// apply executes cmd against sig and logs the transition.
func apply(sig *Signal, cmd Command, origin string, logger *slog.Logger) {
	switch cmd {
	case CommandStart:
		if sig.Start() {
			logger.Info("traversal started by operator", "origin", origin)
		}
	case CommandStop:
		if sig.Stop() {
			logger.Info("traversal stop requested by operator", "origin", origin)
		}
	case CommandNone:
	}
}

// WatchSignals turns the first SIGINT or SIGTERM into a Stop and the second
// into cancel. It returns when ctx is done.
func WatchSignals(ctx context.Context, sig *Signal, cancel context.CancelFunc, logger *slog.Logger) error {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-sigCh:
			received++
			if received == 1 {
				logger.Warn("received shutdown signal, stopping after the current item (repeat to abort)",
					"signal", s.String(),
				)
				sig.Stop()
				continue
			}
			logger.Warn("received second shutdown signal, cancelling", "signal", s.String())
			cancel()
			return nil
		}
	}
}

// WatchInput reads operator commands line by line from r until ctx is done
// or r is exhausted.
func WatchInput(ctx context.Context, r io.Reader, sig *Signal, logger *slog.Logger) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			apply(sig, ParseCommand(line), "stdin", logger)
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read operator input: %w", err)
			}
			return nil
		}
	}
}

// fileDebounce collapses the burst of events a single editor save produces.
const fileDebounce = 100 * time.Millisecond

// WatchFile drives sig from the contents of a control file. Writing "start"
// or "stop" (any command ParseCommand accepts) into the file changes the
// state. The file is created empty if it does not exist.
func WatchFile(ctx context.Context, path string, sig *Signal, logger *slog.Logger) error {
	if err := ensureFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch control file directory: %w", err)
	}

	logger.Debug("watching control file", "path", path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce = time.After(fileDebounce)

		case <-debounce:
			debounce = nil
			data, err := os.ReadFile(path) //nolint:gosec // operator supplied control file
			if err != nil {
				logger.Warn("failed to read control file", "path", path, "error", err)
				continue
			}
			apply(sig, ParseCommand(lastLine(string(data))), "file", logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("control file watcher error", "error", err)
		}
	}
}

func ensureFile(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat control file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create control file directory: %w", err)
	}
	if err := os.WriteFile(path, nil, 0600); err != nil {
		return fmt.Errorf("failed to create control file: %w", err)
	}
	return nil
}

// lastLine returns the last non-blank line of s, keeping a bare "  " line.
func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" || strings.TrimRight(lines[i], "\r") == "  " {
			return lines[i]
		}
	}
	return ""
}
