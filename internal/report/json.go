package report

import (
	"encoding/json"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/nao1215/treewalk/internal/checkpoint"
	tlog "github.com/nao1215/treewalk/internal/log"
	"github.com/nao1215/treewalk/internal/model"
)

// Summary is the traverse_summary.json document.
type Summary struct {
	TraverseInfo  TraverseInfo  `json:"traverse_info"`
	Statistics    Statistics    `json:"statistics"`
	OutputFiles   OutputFiles   `json:"output_files"`
	AccessControl AccessControl `json:"access_control"`
}

// TraverseInfo describes when and how the run went.
type TraverseInfo struct {
	StartTime              string  `json:"start_time"`
	EndTime                string  `json:"end_time"`
	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	TotalDurationFormatted string  `json:"total_duration_formatted"`
	AverageDelaySeconds    float64 `json:"average_delay_seconds"`
	Outcome                string  `json:"outcome"`
	Resumed                bool    `json:"resumed"`
	ResumedFrom            string  `json:"resumed_from,omitempty"`
	StartURL               string  `json:"start_url,omitempty"`
	Error                  string  `json:"error,omitempty"`
}

// Statistics holds the run counters.
type Statistics struct {
	TotalItemsFound  int            `json:"total_items_found"`
	SuccessfulAccess int            `json:"successful_access"`
	PermissionDenied int            `json:"permission_denied"`
	AccessFailed     int            `json:"access_failed"`
	Skipped          int            `json:"skipped"`
	DepthLimited     int            `json:"depth_limited"`
	Unreached        int            `json:"unreached"`
	SuccessRate      float64        `json:"success_rate"`
	MaxDepthReached  int            `json:"max_depth_reached"`
	LevelCounts      map[string]int `json:"level_counts"`
}

// OutputFiles names the files of the run. Logs that were never created
// are null.
type OutputFiles struct {
	CSVLog         string  `json:"csv_log"`
	PermissionLog  *string `json:"permission_log"`
	FailedLog      *string `json:"failed_log"`
	Summary        string  `json:"summary"`
	MainLog        string  `json:"main_log"`
	MarkdownReport *string `json:"markdown_report"`
}

// AccessControl records the pacing applied.
type AccessControl struct {
	DelayRangeSeconds  [2]float64 `json:"delay_range_seconds"`
	TotalDelays        int        `json:"total_delays"`
	RespectPermissions bool       `json:"respect_permissions"`
}

// SummaryOptions carries run settings that are not part of the report.
type SummaryOptions struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Markdown bool
}

// NewSummary builds the summary document of report.
func NewSummary(report *model.RunReport, opts SummaryOptions) *Summary {
	stats := report.Stats
	if stats == nil {
		stats = model.NewRunStats()
	}

	levels := make(map[string]int, len(stats.LevelCounts))
	for _, level := range stats.Levels() {
		levels[levelKey(level)] = stats.LevelCounts[level]
	}

	s := &Summary{
		TraverseInfo: TraverseInfo{
			StartTime:              formatTime(stats.StartedAt),
			EndTime:                formatTime(stats.EndedAt),
			TotalDurationSeconds:   round2(stats.Duration().Seconds()),
			TotalDurationFormatted: model.FormatDuration(stats.Duration()),
			AverageDelaySeconds:    round2(stats.AverageDelay().Seconds()),
			Outcome:                report.Outcome.String(),
			Resumed:                report.Resumed,
			ResumedFrom:            report.ResumedFrom,
			StartURL:               report.StartLocation.URL,
			Error:                  report.Error,
		},
		Statistics: Statistics{
			TotalItemsFound:  stats.TotalFound,
			SuccessfulAccess: stats.Successful,
			PermissionDenied: stats.PermissionDenied,
			AccessFailed:     stats.AccessFailed,
			Skipped:          stats.Skipped,
			DepthLimited:     stats.DepthLimited,
			Unreached:        stats.Unreached,
			SuccessRate:      round2(stats.SuccessRate()),
			MaxDepthReached:  stats.MaxLevel(),
			LevelCounts:      levels,
		},
		OutputFiles: OutputFiles{
			CSVLog:  checkpoint.FileName,
			Summary: SummaryFileName,
			MainLog: tlog.FileName,
		},
		AccessControl: AccessControl{
			DelayRangeSeconds:  [2]float64{round2(opts.MinDelay.Seconds()), round2(opts.MaxDelay.Seconds())},
			TotalDelays:        stats.DelayCount,
			RespectPermissions: true,
		},
	}
	if len(report.Denied) > 0 {
		s.OutputFiles.PermissionLog = ptr(checkpoint.DeniedLogName)
	}
	if len(report.Failures) > 0 {
		s.OutputFiles.FailedLog = ptr(checkpoint.FailedLogName)
	}
	if opts.Markdown {
		s.OutputFiles.MarkdownReport = ptr(MarkdownFileName)
	}
	return s
}

// JSONWriter outputs the run summary in JSON format.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
	opts         SummaryOptions
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithSummaryOptions sets the run settings reported in the summary.
func WithSummaryOptions(opts SummaryOptions) JSONWriterOption {
	return func(w *JSONWriter) {
		w.opts = opts
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary document of report.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.WriteValue(NewSummary(report, w.opts))
}

// WriteValue marshals any value with the writer's formatting. The history
// command uses it for stored runs and diffs.
func (w *JSONWriter) WriteValue(v any) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(model.TimestampLayout)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func levelKey(level int) string {
	return "level_" + strconv.Itoa(level)
}

func ptr(s string) *string {
	return &s
}
