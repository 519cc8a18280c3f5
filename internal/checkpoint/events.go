package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/treewalk/internal/model"
)

// Event log file names inside the output directory.
const (
	FailedLogName = "failed_items_log.txt"
	DeniedLogName = "permission_denied_log.txt"
)

// EventLog appends failure and denial entries to their human-readable logs.
// A file is only created once its first entry is written.
type EventLog struct {
	mu     sync.Mutex
	dir    string
	failed *os.File
	denied *os.File
}

// NewEventLog returns an EventLog writing into dir.
func NewEventLog(dir string) *EventLog {
	return &EventLog{dir: dir}
}

// RecordFailure appends a failure entry.
func (l *EventLog) RecordFailure(rec model.FailureRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.ensure(&l.failed, FailedLogName, "treewalk - failed items")
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] level %d  %s\n", rec.Timestamp.Format(model.TimestampLayout), rec.Level, rec.NodeName)
	fmt.Fprintf(&b, "    reason: %s\n\n", rec.Reason)
	return writeEntry(f, b.String())
}

// RecordDenied appends a permission-denied entry.
func (l *EventLog) RecordDenied(rec model.DeniedRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.ensure(&l.denied, DeniedLogName, "treewalk - permission denied items")
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] level %d  %s\n", rec.Timestamp.Format(model.TimestampLayout), rec.Level, rec.NodeName)
	fmt.Fprintf(&b, "    url:    %s\n", rec.URL)
	if rec.Title != "" {
		fmt.Fprintf(&b, "    title:  %s\n", rec.Title)
	}
	fmt.Fprintf(&b, "    marker: %s\n\n", rec.Marker)
	return writeEntry(f, b.String())
}

// Files returns the paths of the logs written so far.
func (l *EventLog) Files() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var files []string
	if l.failed != nil {
		files = append(files, filepath.Join(l.dir, FailedLogName))
	}
	if l.denied != nil {
		files = append(files, filepath.Join(l.dir, DeniedLogName))
	}
	return files
}

// Close closes any open log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range []**os.File{&l.failed, &l.denied} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *EventLog) ensure(slot **os.File, name, title string) (*os.File, error) {
	if *slot != nil {
		return *slot, nil
	}
	if err := os.MkdirAll(l.dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(l.dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if info.Size() == 0 {
		banner := title + "\n" + strings.Repeat("=", 50) + "\n\n"
		if err := writeEntry(f, banner); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	*slot = f
	return f, nil
}

func writeEntry(f *os.File, s string) error {
	if _, err := f.WriteString(s); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(f.Name()), err)
	}
	return nil
}
