package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/report"
)

// writeReportFile renders r into dir/name with w and records the artifact.
func writeReportFile(r *model.RunReport, dir, name string, newWriter func(f *os.File) report.Writer) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // path is built from the configured output directory
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := newWriter(f).Write(r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	r.AddArtifact(path)
	return path, nil
}

// SummaryStep writes traverse_summary.json into the output directory.
type SummaryStep struct {
	dir    string
	opts   report.SummaryOptions
	logger *slog.Logger
}

// NewSummaryStep creates a step that writes the summary JSON into dir.
func NewSummaryStep(dir string, opts report.SummaryOptions, logger *slog.Logger) *SummaryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryStep{dir: dir, opts: opts, logger: logger}
}

// Name returns the step name.
func (s *SummaryStep) Name() string {
	return "summary_json"
}

// Do executes the summary step.
func (s *SummaryStep) Do(_ context.Context, r *model.RunReport) error {
	path, err := writeReportFile(r, s.dir, report.SummaryFileName, func(f *os.File) report.Writer {
		return report.NewJSONWriter(f, report.WithPrettyPrint(), report.WithSummaryOptions(s.opts))
	})
	if err != nil {
		return err
	}
	s.logger.Info("summary written", "path", path)
	return nil
}

// MarkdownStep writes traverse_report.md into the output directory.
type MarkdownStep struct {
	dir    string
	logger *slog.Logger
}

// NewMarkdownStep creates a step that writes the Markdown report into dir.
func NewMarkdownStep(dir string, logger *slog.Logger) *MarkdownStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkdownStep{dir: dir, logger: logger}
}

// Name returns the step name.
func (s *MarkdownStep) Name() string {
	return "markdown_report"
}

// Do executes the Markdown step.
func (s *MarkdownStep) Do(_ context.Context, r *model.RunReport) error {
	path, err := writeReportFile(r, s.dir, report.MarkdownFileName, func(f *os.File) report.Writer {
		return report.NewMarkdownWriter(f)
	})
	if err != nil {
		return err
	}
	s.logger.Info("markdown report written", "path", path)
	return nil
}

// RunSaver persists a finished run. *database.HistoryDB implements it.
type RunSaver interface {
	SaveRun(ctx context.Context, report *model.RunReport) (int64, error)
}

// HistoryStep saves the run into the history database.
type HistoryStep struct {
	saver  RunSaver
	logger *slog.Logger
}

// NewHistoryStep creates a step that saves runs with saver.
func NewHistoryStep(saver RunSaver, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{saver: saver, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "save_history"
}

// Do executes the history step.
func (s *HistoryStep) Do(ctx context.Context, r *model.RunReport) error {
	id, err := s.saver.SaveRun(ctx, r)
	if err != nil {
		return fmt.Errorf("failed to save run history: %w", err)
	}
	s.logger.Info("run saved to history", "run_id", id)
	return nil
}

// FinalizeOptions selects the finalize steps.
type FinalizeOptions struct {
	// OutputDir receives the summary and Markdown files.
	OutputDir string

	// Summary carries the pacing settings reported in the summary JSON.
	Summary report.SummaryOptions

	// History saves the run when non-nil.
	History RunSaver

	Logger *slog.Logger
}

// Finalize builds the standard finalize pipeline: the summary JSON, then the
// Markdown report when enabled, then the history save when a saver is set.
// Steps continue past failures.
func Finalize(opts FinalizeOptions) *Pipeline {
	p := New(WithLogger(opts.Logger), WithContinueOnError(true))
	p.AddStep(NewSummaryStep(opts.OutputDir, opts.Summary, opts.Logger))
	if opts.Summary.Markdown {
		p.AddStep(NewMarkdownStep(opts.OutputDir, opts.Logger))
	}
	if opts.History != nil {
		p.AddStep(NewHistoryStep(opts.History, opts.Logger))
	}
	return p
}
