package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/treewalk/internal/model"
)

// RunDiff holds the result of comparing the visits of two runs.
// Nodes are matched by name, the same key the checkpoint uses.
type RunDiff struct {
	// Previous and Current describe the compared runs.
	Previous RunMetadata `json:"previous_run"`
	Current  RunMetadata `json:"current_run"`

	// Added lists nodes visited only in the current run.
	Added []DiffEntry `json:"added,omitempty"`

	// Removed lists nodes visited only in the previous run.
	Removed []DiffEntry `json:"removed,omitempty"`

	// Moved lists nodes visited in both runs under different paths.
	Moved []MovedEntry `json:"moved,omitempty"`

	// UnchangedCount is the number of nodes at the same path in both runs.
	UnchangedCount int `json:"unchanged_count"`
}

// RunMetadata summarizes one side of a comparison.
type RunMetadata struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Outcome   string    `json:"outcome"`
	Visits    int       `json:"visits"`
	Denied    int       `json:"denied"`
	Failures  int       `json:"failures"`
}

// DiffEntry is a node present on one side only.
type DiffEntry struct {
	NodeName string `json:"node_name"`
	Path     string `json:"path"`
	URL      string `json:"url,omitempty"`
}

// MovedEntry is a node whose path changed between runs.
type MovedEntry struct {
	NodeName string `json:"node_name"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// HasChanges reports whether the runs visited different trees.
func (d *RunDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0
}

// DiffRuns compares the visited nodes of previous and current.
// When a name was visited more than once in a run, its first visit counts.
func DiffRuns(previous, current *model.RunReport) *RunDiff {
	d := &RunDiff{
		Previous: metadataOf(previous),
		Current:  metadataOf(current),
	}

	prev := firstVisits(previous.Visits)
	curr := firstVisits(current.Visits)

	for i := range current.Visits {
		v := &current.Visits[i]
		if curr[v.NodeName] != v {
			continue
		}
		p, seen := prev[v.NodeName]
		switch {
		case !seen:
			d.Added = append(d.Added, entryOf(v))
		case !p.Path.Equal(v.Path):
			d.Moved = append(d.Moved, MovedEntry{NodeName: v.NodeName, From: p.Path.String(), To: v.Path.String()})
		default:
			d.UnchangedCount++
		}
	}
	for i := range previous.Visits {
		v := &previous.Visits[i]
		if prev[v.NodeName] != v {
			continue
		}
		if _, ok := curr[v.NodeName]; !ok {
			d.Removed = append(d.Removed, entryOf(v))
		}
	}

	sort.SliceStable(d.Moved, func(i, j int) bool { return d.Moved[i].To < d.Moved[j].To })
	return d
}

// firstVisits indexes visits by name. The stored pointer identifies the
// first visit so later duplicates can be skipped.
func firstVisits(visits []model.VisitRecord) map[string]*model.VisitRecord {
	m := make(map[string]*model.VisitRecord, len(visits))
	for i := range visits {
		if _, ok := m[visits[i].NodeName]; !ok {
			m[visits[i].NodeName] = &visits[i]
		}
	}
	return m
}

func metadataOf(r *model.RunReport) RunMetadata {
	meta := RunMetadata{
		ID:       r.ID,
		Outcome:  r.Outcome.String(),
		Visits:   len(r.Visits),
		Denied:   len(r.Denied),
		Failures: len(r.Failures),
	}
	if r.Stats != nil {
		meta.StartedAt = r.Stats.StartedAt
	}
	return meta
}

func entryOf(v *model.VisitRecord) DiffEntry {
	return DiffEntry{NodeName: v.NodeName, Path: v.Path.String(), URL: v.URL}
}

// WriteDiffText prints d for the terminal.
func WriteDiffText(w io.Writer, d *RunDiff) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Run Comparison: #%d -> #%d\n", d.Previous.ID, d.Current.ID)
	rule(&sb, "=")

	fmt.Fprintf(&sb, "\nPrevious run: %s (%s)\n", formatTime(d.Previous.StartedAt), d.Previous.Outcome)
	fmt.Fprintf(&sb, "Current run:  %s (%s)\n", formatTime(d.Current.StartedAt), d.Current.Outcome)

	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "  %-10s  %-10s  %-10s  %-10s\n", "Metric", "Previous", "Current", "Change")
	sb.WriteString("  " + strings.Repeat("-", 45) + "\n")
	for _, row := range diffRows(d) {
		fmt.Fprintf(&sb, "  %-10s  %-10d  %-10d  %-10s\n", row.label, row.prev, row.curr, formatDelta(row.curr-row.prev))
	}

	if len(d.Added) > 0 {
		fmt.Fprintf(&sb, "\nAdded (%d):\n", len(d.Added))
		for _, e := range d.Added {
			fmt.Fprintf(&sb, "  [+] %s  %s\n", e.Path, e.NodeName)
		}
	}
	if len(d.Removed) > 0 {
		fmt.Fprintf(&sb, "\nRemoved (%d):\n", len(d.Removed))
		for _, e := range d.Removed {
			fmt.Fprintf(&sb, "  [-] %s  %s\n", e.Path, e.NodeName)
		}
	}
	if len(d.Moved) > 0 {
		fmt.Fprintf(&sb, "\nMoved (%d):\n", len(d.Moved))
		for _, e := range d.Moved {
			fmt.Fprintf(&sb, "  [~] %s -> %s  %s\n", e.From, e.To, e.NodeName)
		}
	}
	if !d.HasChanges() {
		sb.WriteString("\nNo differences in visited nodes.\n")
	}
	fmt.Fprintf(&sb, "\nUnchanged: %d nodes\n", d.UnchangedCount)

	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteDiffMarkdown renders d as GitHub Flavored Markdown.
func WriteDiffMarkdown(w io.Writer, d *RunDiff) error {
	md := markdown.NewMarkdown(w)
	md.H1(fmt.Sprintf("Run Comparison: #%d → #%d", d.Previous.ID, d.Current.ID))
	md.PlainText("")

	md.H2("Summary")
	md.PlainText("")
	rows := [][]string{
		{"Started", formatTime(d.Previous.StartedAt), formatTime(d.Current.StartedAt), "-"},
		{"Outcome", d.Previous.Outcome, d.Current.Outcome, "-"},
	}
	for _, row := range diffRows(d) {
		rows = append(rows, []string{row.label, strconv.Itoa(row.prev), strconv.Itoa(row.curr), formatDelta(row.curr - row.prev)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(d.Added) > 0 {
		md.H2(fmt.Sprintf("Added (%d)", len(d.Added)))
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Path", "Name", "URL"}, Rows: entryRows(d.Added)})
		md.PlainText("")
	}
	if len(d.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed (%d)", len(d.Removed)))
		md.PlainText("")
		md.Table(markdown.TableSet{Header: []string{"Path", "Name", "URL"}, Rows: entryRows(d.Removed)})
		md.PlainText("")
	}
	if len(d.Moved) > 0 {
		md.H2(fmt.Sprintf("Moved (%d)", len(d.Moved)))
		md.PlainText("")
		moved := make([][]string, len(d.Moved))
		for i, e := range d.Moved {
			moved[i] = []string{truncateString(e.NodeName, 40), "`" + e.From + "`", "`" + e.To + "`"}
		}
		md.Table(markdown.TableSet{Header: []string{"Name", "From", "To"}, Rows: moved})
		md.PlainText("")
	}
	if !d.HasChanges() {
		md.Note("No differences in visited nodes.")
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%d nodes unchanged*", d.UnchangedCount)
	return md.Build()
}

type diffRow struct {
	label      string
	prev, curr int
}

func diffRows(d *RunDiff) []diffRow {
	return []diffRow{
		{"Visits", d.Previous.Visits, d.Current.Visits},
		{"Denied", d.Previous.Denied, d.Current.Denied},
		{"Failures", d.Previous.Failures, d.Current.Failures},
	}
}

func entryRows(entries []DiffEntry) [][]string {
	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{"`" + e.Path + "`", truncateString(e.NodeName, 40), truncateString(orDash(e.URL), 60)}
	}
	return rows
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
