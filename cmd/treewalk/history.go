package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/treewalk/internal/config"
	"github.com/nao1215/treewalk/internal/database"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is how many runs the list shows without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id...]",
		Short: "List and compare past walks",
		Long: `History shows walks stored in the history database.

Without flags it lists the most recent runs. --show prints one run in full.
--diff compares the visited items of two runs by name and reports items that
were added, removed, or moved to a different path. Without IDs, --diff
compares the latest two runs.

Examples:
  # List recent runs
  treewalk history

  # Show run 7 with every visit
  treewalk history --show 7

  # Compare runs 5 and 7
  treewalk history --diff 5 7

  # Compare the latest two runs as Markdown
  treewalk history --diff --markdown`,
		Args: cobra.MaximumNArgs(2),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to list (0 lists all)")
	cmd.Flags().Int64P("show", "s", 0,
		"Show the run with this ID")
	cmd.Flags().Bool("diff", false,
		"Compare two runs (IDs as arguments, default: latest two)")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data dir)")

	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

// outputFormat is the rendering selected by --json and --markdown.
type outputFormat int

const (
	formatText outputFormat = iota
	formatJSON
	formatMarkdown
)

func getOutputFormat(cmd *cobra.Command) (outputFormat, error) {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return formatText, err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return formatText, err
	}
	switch {
	case jsonOutput && markdownOutput:
		return formatText, errors.New("--json and --markdown are mutually exclusive")
	case jsonOutput:
		return formatJSON, nil
	case markdownOutput:
		return formatMarkdown, nil
	default:
		return formatText, nil
	}
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	format, err := getOutputFormat(cmd)
	if err != nil {
		return err
	}
	showID, err := cmd.Flags().GetInt64("show")
	if err != nil {
		return err
	}
	diff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if showID != 0 && diff {
		return errors.New("--show and --diff are mutually exclusive")
	}
	if !diff && len(args) > 0 {
		return errors.New("run IDs are only accepted with --diff")
	}
	ids, err := parseRunIDs(args)
	if err != nil {
		return err
	}
	if diff && len(ids) == 1 {
		return errors.New("--diff needs two run IDs, or none to compare the latest two runs")
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database (run 'treewalk walk' first): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case showID != 0:
		return showRun(ctx, out, db, showID, format)
	case diff:
		return diffRuns(ctx, out, db, ids, format)
	default:
		return listRuns(ctx, out, db, limit, format)
	}
}

func parseRunIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid run ID %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// listRuns prints the run list.
func listRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, limit int, format outputFormat) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		if runs == nil {
			runs = []database.RunSummary{}
		}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(runs)
		return err
	case formatMarkdown:
		return listRunsMarkdown(out, runs)
	case formatText:
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the history database.")
		fmt.Fprintln(out, "\nUse 'treewalk walk' to walk a workspace.")
		return nil
	}

	fmt.Fprintf(out, "Walk history (%d runs):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-19s  %-13s  %7s  %6s  %6s  %s\n",
		"ID", "Started", "Outcome", "Visits", "Denied", "Failed", "Start URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 90))
	for _, r := range runs {
		outcome := r.Outcome.String()
		if r.Resumed {
			outcome += "*"
		}
		fmt.Fprintf(out, "  %-6d  %-19s  %-13s  %7d  %6d  %6d  %s\n",
			r.ID,
			r.StartedAt.Format(model.TimestampLayout),
			outcome,
			r.Visits,
			r.Denied,
			r.Failures,
			r.StartURL,
		)
	}

	fmt.Fprintln(out, "\n  * resumed from a checkpoint")
	fmt.Fprintln(out, "\nUse 'treewalk history --show <id>' to see a run.")
	fmt.Fprintln(out, "Use 'treewalk history --diff <id> <id>' to compare two runs.")
	return nil
}

func listRunsMarkdown(out io.Writer, runs []database.RunSummary) error {
	md := markdown.NewMarkdown(out)
	md.H1("Walk History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs found in the history database.")
		return md.Build()
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		resumed := ""
		if r.Resumed {
			resumed = "✓"
		}
		rows[i] = []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Format(model.TimestampLayout),
			r.Outcome.String(),
			resumed,
			strconv.Itoa(r.Visits),
			strconv.Itoa(r.Denied),
			strconv.Itoa(r.Failures),
			r.StartURL,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Started", "Outcome", "Resumed", "Visits", "Denied", "Failed", "Start URL"},
		Rows:   rows,
	})
	return md.Build()
}

// showRun prints one stored run.
func showRun(ctx context.Context, out io.Writer, db *database.HistoryDB, id int64, format outputFormat) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run with ID %d not found (use 'treewalk history' to list runs)", id)
	}

	switch format {
	case formatJSON:
		_, err = report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(run)
	case formatMarkdown:
		_, err = report.NewMarkdownWriter(out).Write(run)
	default:
		fmt.Fprintf(out, "Run #%d\n", run.ID)
		_, err = report.NewTextWriter(out, report.WithItems(true)).Write(run)
		if err == nil {
			err = printVisits(out, run.Visits)
		}
	}
	return err
}

func printVisits(out io.Writer, visits []model.VisitRecord) error {
	if len(visits) == 0 {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "\nVisits (%d):\n", len(visits))
	for _, v := range visits {
		indent := strings.Repeat("  ", v.Level)
		fmt.Fprintf(&sb, "  %-12s %s%s\n", v.Path.String(), indent, v.NodeName)
	}
	_, err := io.WriteString(out, sb.String())
	return err
}

// diffRuns compares two runs. With no IDs the latest two runs are used,
// the older one as the previous run.
func diffRuns(ctx context.Context, out io.Writer, db *database.HistoryDB, ids []int64, format outputFormat) error {
	if len(ids) == 0 {
		runs, err := db.ListRuns(ctx, 2)
		if err != nil {
			return err
		}
		if len(runs) < 2 {
			return fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(runs))
		}
		ids = []int64{runs[1].ID, runs[0].ID}
	}

	previous, err := loadRun(ctx, db, ids[0])
	if err != nil {
		return err
	}
	current, err := loadRun(ctx, db, ids[1])
	if err != nil {
		return err
	}

	d := report.DiffRuns(previous, current)
	switch format {
	case formatJSON:
		_, err = report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(d)
		return err
	case formatMarkdown:
		return report.WriteDiffMarkdown(out, d)
	default:
		return report.WriteDiffText(out, d)
	}
}

func loadRun(ctx context.Context, db *database.HistoryDB, id int64) (*model.RunReport, error) {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run with ID %d not found", id)
	}
	return run, nil
}
