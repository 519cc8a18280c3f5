package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/nao1215/treewalk/internal/model"
)

// TextWriter prints the end-of-run summary for the terminal.
// It uses plain ASCII rules so the output survives pipes and log files.
type TextWriter struct {
	baseWriter

	// showItems lists failed and denied items, not only their counts.
	showItems bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithItems lists failed and denied items individually.
func WithItems(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.showItems = show
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary of report.
func (w *TextWriter) Write(report *model.RunReport) (int, error) {
	stats := report.Stats
	if stats == nil {
		stats = model.NewRunStats()
	}

	var sb strings.Builder
	w.writeHeader(&sb, report, stats)
	w.writeCounts(&sb, stats)
	w.writeLevels(&sb, stats)
	if w.showItems {
		w.writeItems(&sb, report)
	}
	w.writeFiles(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, 60))
	sb.WriteString("\n")
}

func (w *TextWriter) writeHeader(sb *strings.Builder, report *model.RunReport, stats *model.RunStats) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("TRAVERSAL SUMMARY\n")
	rule(sb, "=")

	fmt.Fprintf(sb, "Status:        %s\n", textStatus(report))
	if report.Resumed {
		fmt.Fprintf(sb, "Resumed after: %s\n", report.ResumedFrom)
	}
	fmt.Fprintf(sb, "Started:       %s\n", formatTime(stats.StartedAt))
	fmt.Fprintf(sb, "Duration:      %s\n", model.FormatDuration(stats.Duration()))
	if stats.DelayCount > 0 {
		fmt.Fprintf(sb, "Average delay: %.2fs over %d waits\n", stats.AverageDelay().Seconds(), stats.DelayCount)
	}
	sb.WriteString("\n")
}

func textStatus(report *model.RunReport) string {
	switch report.Outcome {
	case model.OutcomeCompleted:
		return "Complete"
	case model.OutcomeStopped:
		return "Stopped (run again to resume)"
	case model.OutcomeResumeFailed:
		return "RESUME FAILED - " + report.Error + " (use --fresh to start over)"
	case model.OutcomeAborted:
		return "ABORTED - " + report.Error
	default:
		return report.Outcome.String()
	}
}

func (w *TextWriter) writeCounts(sb *strings.Builder, stats *model.RunStats) {
	rule(sb, "-")
	fmt.Fprintf(sb, "  Items found:       %d\n", stats.TotalFound)
	fmt.Fprintf(sb, "  Visited:           %d\n", stats.Successful)
	fmt.Fprintf(sb, "  Permission denied: %d\n", stats.PermissionDenied)
	fmt.Fprintf(sb, "  Failed:            %d\n", stats.AccessFailed)
	if stats.Skipped > 0 {
		fmt.Fprintf(sb, "  Skipped:           %d\n", stats.Skipped)
	}
	if stats.DepthLimited > 0 {
		fmt.Fprintf(sb, "  Depth limited:     %d\n", stats.DepthLimited)
	}
	if stats.Unreached > 0 {
		fmt.Fprintf(sb, "  Unreached:         %d\n", stats.Unreached)
	}
	fmt.Fprintf(sb, "  Success rate:      %.2f%%\n", stats.SuccessRate())
	sb.WriteString("\n")
}

func (w *TextWriter) writeLevels(sb *strings.Builder, stats *model.RunStats) {
	levels := stats.Levels()
	if len(levels) == 0 {
		return
	}
	rule(sb, "-")
	fmt.Fprintf(sb, "Max depth reached: %d\n", stats.MaxLevel())
	for _, level := range levels {
		fmt.Fprintf(sb, "  level %-3d %d\n", level, stats.LevelCounts[level])
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeItems(sb *strings.Builder, report *model.RunReport) {
	if len(report.Failures) == 0 && len(report.Denied) == 0 {
		return
	}
	rule(sb, "-")
	for _, f := range report.Failures {
		fmt.Fprintf(sb, "  [x] %s (level %d): %s\n", f.NodeName, f.Level+1, f.Reason)
	}
	for _, d := range report.Denied {
		fmt.Fprintf(sb, "  [!] %s (level %d): %s\n", d.NodeName, d.Level+1, orDash(d.Marker))
	}
	sb.WriteString("\n")
}

func (w *TextWriter) writeFiles(sb *strings.Builder, report *model.RunReport) {
	rule(sb, "=")
	if report.OutputDir != "" {
		fmt.Fprintf(sb, "Output: %s\n", report.OutputDir)
	}
	for _, a := range report.Artifacts {
		fmt.Fprintf(sb, "  %s\n", filepath.Base(a))
	}
	rule(sb, "=")
}
