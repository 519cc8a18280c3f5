package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/treewalk/internal/model"
)

// maxListedVisits caps the visit table. Large workspaces produce thousands
// of rows, and the CSV checkpoint already holds the full list.
const maxListedVisits = 500

// MarkdownWriter outputs reports in GitHub Flavored Markdown, with a mermaid
// pie chart of visit results.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	stats := report.Stats
	if stats == nil {
		stats = model.NewRunStats()
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report, stats)
	w.writeStatistics(md, stats)
	w.writeLevels(md, stats)
	w.writeVisits(md, report.Visits)
	w.writeDenied(md, report.Denied)
	w.writeFailures(md, report.Failures)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport, stats *model.RunStats) {
	md.H1("Tree Walk Report")
	md.PlainText("")

	rows := [][]string{
		{"Start URL", orDash(report.StartLocation.URL)},
		{"Started", formatTime(stats.StartedAt)},
		{"Duration", model.FormatDuration(stats.Duration())},
		{"Status", statusText(report)},
	}
	if report.Resumed {
		rows = append(rows, []string{"Resumed After", "`" + report.ResumedFrom + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(report *model.RunReport) string {
	switch report.Outcome {
	case model.OutcomeCompleted:
		return "✅ Complete"
	case model.OutcomeStopped:
		return "⏸️ Stopped (resumable)"
	case model.OutcomeResumeFailed:
		return "❌ Resume failed - " + report.Error
	case model.OutcomeAborted:
		return "❌ Aborted - " + report.Error
	default:
		return report.Outcome.String()
	}
}

func (w *MarkdownWriter) writeStatistics(md *markdown.Markdown, stats *model.RunStats) {
	md.H2("Statistics")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Items found", strconv.Itoa(stats.TotalFound)},
			{"✅ Visited", strconv.Itoa(stats.Successful)},
			{"🔒 Permission denied", strconv.Itoa(stats.PermissionDenied)},
			{"❌ Failed", strconv.Itoa(stats.AccessFailed)},
			{"⏭️ Skipped", strconv.Itoa(stats.Skipped)},
			{"📏 Depth limited", strconv.Itoa(stats.DepthLimited)},
			{"🚧 Unreached", strconv.Itoa(stats.Unreached)},
			{"**Success rate**", "**" + strconv.FormatFloat(round2(stats.SuccessRate()), 'f', 2, 64) + "%**"},
		},
	})
	md.PlainText("")

	if stats.Successful+stats.PermissionDenied+stats.AccessFailed+stats.Skipped > 0 {
		w.writePieChart(md, stats)
	}
	w.writeAlert(md, stats)
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, stats *model.RunStats) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Visit Results"),
		piechart.WithShowData(true),
	)

	slices := []struct {
		label string
		n     int
	}{
		{"Visited", stats.Successful},
		{"Denied", stats.PermissionDenied},
		{"Failed", stats.AccessFailed},
		{"Skipped", stats.Skipped},
	}
	for _, s := range slices {
		if s.n > 0 {
			chart.LabelAndIntValue(s.label, uint64(s.n)) //nolint:gosec // counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, stats *model.RunStats) {
	switch {
	case stats.AccessFailed > 0:
		md.Warningf("%d item(s) could not be opened. See failed_items_log.txt.", stats.AccessFailed)
	case stats.PermissionDenied > 0:
		md.Importantf("%d item(s) were denied. See permission_denied_log.txt.", stats.PermissionDenied)
	case stats.Successful > 0:
		md.Tip("Every item found was visited.")
	default:
		md.Note("No items were visited.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeLevels(md *markdown.Markdown, stats *model.RunStats) {
	levels := stats.Levels()
	if len(levels) == 0 {
		return
	}

	md.H2("Visits by Level")
	md.PlainText("")

	rows := make([][]string, 0, len(levels))
	for _, level := range levels {
		rows = append(rows, []string{strconv.Itoa(level), strconv.Itoa(stats.LevelCounts[level])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Level", "Visits"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeVisits(md *markdown.Markdown, visits []model.VisitRecord) {
	md.H2("Visited Items")
	md.PlainText("")

	if len(visits) == 0 {
		md.PlainText("No items were visited in this run.")
		md.PlainText("")
		return
	}

	shown := visits
	if len(shown) > maxListedVisits {
		shown = shown[:maxListedVisits]
	}
	rows := make([][]string, len(shown))
	for i, v := range shown {
		rows[i] = []string{
			"`" + v.Path.String() + "`",
			truncateString(v.NodeName, 40),
			truncateString(orDash(v.URL), 60),
			strconv.FormatFloat(v.ResponseLatency.Seconds(), 'f', 2, 64),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Path", "Name", "URL", "Latency (s)"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(visits) > len(shown) {
		md.Note(strconv.Itoa(len(visits)-len(shown)) + " more visits are listed in the CSV log.")
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeDenied(md *markdown.Markdown, denied []model.DeniedRecord) {
	if len(denied) == 0 {
		return
	}

	md.H2("Permission Denied")
	md.PlainText("")

	rows := make([][]string, len(denied))
	for i, d := range denied {
		rows[i] = []string{
			truncateString(d.NodeName, 40),
			strconv.Itoa(d.Level + 1),
			truncateString(orDash(d.URL), 60),
			orDash(d.Marker),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Level", "URL", "Marker"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, failures []model.FailureRecord) {
	if len(failures) == 0 {
		return
	}

	md.H2("Failed Items")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, f := range failures {
		rows[i] = []string{
			truncateString(f.NodeName, 40),
			strconv.Itoa(f.Level + 1),
			truncateString(f.Reason, 60),
			formatTime(f.Timestamp),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Name", "Level", "Reason", "Time"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [treewalk](https://github.com/nao1215/treewalk)*")
}
