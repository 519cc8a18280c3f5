package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/treewalk/internal/browser"
	"github.com/nao1215/treewalk/internal/checkpoint"
	"github.com/nao1215/treewalk/internal/classify"
	"github.com/nao1215/treewalk/internal/config"
	"github.com/nao1215/treewalk/internal/control"
	"github.com/nao1215/treewalk/internal/database"
	tlog "github.com/nao1215/treewalk/internal/log"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/pipeline"
	"github.com/nao1215/treewalk/internal/report"
	"github.com/nao1215/treewalk/internal/resume"
	"github.com/nao1215/treewalk/internal/traverse"
	"github.com/spf13/cobra"
)

// NewWalkCmd creates the walk command.
func NewWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Visit every item of the sidebar tree",
		Long: `Walk opens every item of the workspace sidebar once, depth first.

Each visit is appended to directory_traverse_log.csv in the output directory
before the next click. When that file already holds visits, walk asks whether
to continue after the last one; --resume and --fresh answer in advance.

Pressing Ctrl+C stops after the current item. Pressing it again aborts.
With --stdin-control, type "stop" or "start" and press Enter. With
--control-file, write "stop" or "start" into the file.

Examples:
  # Attach to a Chrome started with --remote-debugging-port=9222
  treewalk walk

  # Open a workspace first, and write a Markdown report
  treewalk walk --start-url https://example.feishu.cn/wiki/space/123 --markdown

  # Launch a private headless Chrome with stealth patches
  treewalk walk --launch --headless --stealth --start-url https://wiki.example.com

  # Wait for an operator "start" and allow pausing from another terminal
  treewalk walk --wait-for-start --control-file /tmp/treewalk.ctl

  # Continue the previous walk without asking
  treewalk walk --resume`,
		Args: cobra.NoArgs,
		RunE: runWalkCmd,
	}

	// Browser flags
	cmd.Flags().String("remote", config.DefaultRemoteAddr,
		"DevTools address of a running Chrome")
	cmd.Flags().Bool("launch", false,
		"Launch a private Chrome instead of attaching")
	cmd.Flags().Bool("headless", false,
		"Run the launched Chrome without a window")
	cmd.Flags().Bool("stealth", false,
		"Apply anti-automation patches to the launched Chrome")
	cmd.Flags().StringP("start-url", "u", "",
		"Page to open before the walk")

	// Traversal flags
	cmd.Flags().Duration("min-delay", config.DefaultMinDelay,
		"Minimum pause between clicks")
	cmd.Flags().Duration("max-delay", config.DefaultMaxDelay,
		"Maximum pause between clicks")
	cmd.Flags().IntP("max-depth", "d", config.DefaultMaxDepth,
		"Deepest tree level to open")
	cmd.Flags().String("selector", config.DefaultSelector,
		"CSS selector of sidebar items")

	// Resume and control flags
	cmd.Flags().Bool("resume", false,
		"Continue after the last checkpointed visit without asking")
	cmd.Flags().Bool("fresh", false,
		"Discard the checkpoint and start over without asking")
	cmd.Flags().Bool("wait-for-start", false,
		"Wait for an operator start command before the first click")
	cmd.Flags().String("control-file", "",
		"Watch this file for start/stop commands")
	cmd.Flags().Bool("stdin-control", false,
		"Read start/stop commands from standard input")

	// Output flags
	cmd.Flags().StringP("output-dir", "o", "",
		"Directory for the checkpoint, logs and summaries (default: XDG data dir)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Write traverse_report.md after the walk")
	cmd.Flags().Bool("no-history", false,
		"Do not store the run in the history database")
	cmd.Flags().Bool("json-log", false,
		"Write logs as JSON lines")

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .treewalk in current or home directory)")

	return cmd
}

// runWalkCmd executes the walk command.
func runWalkCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	w := &walker{
		cfg:    cfg,
		in:     bufio.NewReader(cmd.InOrStdin()),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
		flags:  cmd,
	}
	return w.run(ctx)
}

// buildConfig creates a Config from defaults, the config file, the profile
// of the start URL's host, and finally the flags the user set.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit config path must exist; the implicit search may find nothing.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		f, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFile(f)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if cmd.Flags().Changed("start-url") {
		if cfg.StartURL, err = cmd.Flags().GetString("start-url"); err != nil {
			return nil, err
		}
	}
	if cfg.File != nil && cfg.StartURL != "" {
		cfg.ApplyProfile(cfg.File.Profile(config.HostOf(cfg.StartURL)))
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every flag the user set over cfg. Unset flags keep the
// file and profile values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	str := func(name string, dst *string) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && flags.Changed(name) {
			*dst, err = flags.GetBool(name)
		}
	}

	str("remote", &cfg.RemoteAddr)
	boolean("launch", &cfg.Launch)
	boolean("headless", &cfg.Headless)
	boolean("stealth", &cfg.Stealth)
	str("start-url", &cfg.StartURL)
	str("selector", &cfg.Selector)
	str("output-dir", &cfg.OutputDir)
	str("control-file", &cfg.ControlFile)
	boolean("markdown", &cfg.MarkdownReport)
	boolean("json-log", &cfg.JSONLog)
	boolean("resume", &cfg.Resume)
	boolean("fresh", &cfg.Fresh)
	boolean("wait-for-start", &cfg.WaitForStart)
	boolean("stdin-control", &cfg.StdinControl)
	if err != nil {
		return err
	}

	if flags.Changed("min-delay") {
		if cfg.MinDelay, err = flags.GetDuration("min-delay"); err != nil {
			return err
		}
	}
	if flags.Changed("max-delay") {
		if cfg.MaxDelay, err = flags.GetDuration("max-delay"); err != nil {
			return err
		}
	}
	if flags.Changed("max-depth") {
		if cfg.MaxDepth, err = flags.GetInt("max-depth"); err != nil {
			return err
		}
	}
	if flags.Changed("no-history") {
		noHistory, err := flags.GetBool("no-history")
		if err != nil {
			return err
		}
		cfg.SaveHistory = !noHistory
	}
	return nil
}

// walker holds the resources of one walk command.
type walker struct {
	cfg    *config.Config
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	flags  *cobra.Command

	logger  *slog.Logger
	logPath string
	session *browser.Session
	store   *checkpoint.Store
	events  *checkpoint.EventLog
	history *database.HistoryDB
	signal  *control.Signal
	engine  *traverse.Engine
	nav     *resume.Navigator
}

// run performs the walk. It returns nil for a completed or stopped walk.
func (w *walker) run(parent context.Context) error {
	cfg := w.cfg

	if err := os.MkdirAll(cfg.OutputDir, 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	w.logPath = filepath.Join(cfg.OutputDir, tlog.FileName)
	logFile, err := os.OpenFile(w.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) //nolint:gosec // path is built from the output directory
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	w.logger = tlog.NewRunLogger(w.errOut, logFile, cfg.Verbose, cfg.JSONLog)
	slog.SetDefault(w.logger)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	w.store, err = checkpoint.Open(cfg.OutputDir)
	if err != nil {
		return err
	}
	defer w.store.Close()
	if n := w.store.DroppedBytes(); n > 0 {
		w.logger.Warn("dropped partial checkpoint row left by an interrupted write", "bytes", n)
	}

	resumeFrom, err := w.resumePoint()
	if err != nil {
		return err
	}

	w.session, err = browser.Open(ctx, browser.Options{
		RemoteAddr: cfg.RemoteAddr,
		Launch:     cfg.Launch,
		Headless:   cfg.Headless,
		Stealth:    cfg.Stealth,
		StartURL:   cfg.StartURL,
		Logger:     w.logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := w.session.Close(); err != nil {
			w.logger.Warn("failed to close browser", "error", err)
		}
	}()

	if err := w.applyPageProfile(); err != nil {
		return err
	}

	w.events = checkpoint.NewEventLog(cfg.OutputDir)
	defer w.events.Close()

	if cfg.SaveHistory {
		w.history, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			// History is a convenience; the checkpoint is what matters.
			w.logger.Warn("history database unavailable, run will not be saved", "error", err)
			w.history = nil
		} else {
			defer w.history.Close()
		}
	}

	w.build()

	listenCtx, stopListening := context.WithCancel(ctx)
	listenDone := make(chan error, 1)
	go func() {
		listenDone <- w.listeners().Run(listenCtx, w.signal, cancel, w.logger)
	}()
	defer func() {
		stopListening()
		if err := <-listenDone; err != nil {
			w.logger.Warn("operator listener failed", "error", err)
		}
	}()

	return w.loop(ctx, resumeFrom)
}

// resumePoint decides whether the walk continues from the checkpoint. It
// returns nil to start from the root.
func (w *walker) resumePoint() (*model.VisitRecord, error) {
	last, ok, err := w.store.LastRecord()
	if err != nil {
		if w.cfg.Fresh {
			w.logger.Warn("unreadable checkpoint discarded", "error", err)
			return nil, w.store.Clear()
		}
		return nil, fmt.Errorf("failed to read checkpoint (use --fresh to start over): %w", err)
	}
	if !ok {
		return nil, nil
	}

	proceed := w.cfg.Resume
	if !w.cfg.Resume && !w.cfg.Fresh {
		proceed, err = askResume(w.in, w.out, last)
		if err != nil {
			return nil, err
		}
	}

	if !proceed {
		w.logger.Info("starting fresh, checkpoint cleared", "path", w.store.Path())
		return nil, w.store.Clear()
	}
	w.logger.Info("resuming from checkpoint", "path", last.Path.String(), "name", last.NodeName)
	return &last, nil
}

// askResume prompts on out and reads the answer from in. An empty answer
// or end of input means yes.
func askResume(in *bufio.Reader, out io.Writer, last model.VisitRecord) (bool, error) {
	fmt.Fprintf(out, "Checkpoint found: last visited %q (path %s) at %s.\n",
		last.NodeName, last.Path.String(), last.VisitedAt.Format(model.TimestampLayout))
	fmt.Fprint(out, "Continue from there? [Y/n]: ")

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	fmt.Fprintln(out)

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("unrecognized answer %q (expected y or n)", strings.TrimSpace(line))
	}
}

// applyPageProfile applies the profile of the attached tab's host when no
// start URL selected one. Flags are applied again so they keep priority.
func (w *walker) applyPageProfile() error {
	if w.cfg.File == nil || w.cfg.StartURL != "" {
		return nil
	}
	info, err := w.session.Page().Info()
	if err != nil || info == nil {
		return nil //nolint:nilerr // without a URL there is no profile to pick
	}
	w.cfg.ApplyProfile(w.cfg.File.Profile(config.HostOf(info.URL)))
	if err := applyFlags(w.flags, w.cfg); err != nil {
		return err
	}
	return w.cfg.Validate()
}

// build wires the driver, classifiers, engine and navigator.
func (w *walker) build() {
	cfg := w.cfg

	driver := browser.NewDriver(w.session.Page(),
		browser.WithSelector(cfg.Selector),
		browser.WithMaxItemX(cfg.MaxItemX),
		browser.WithReadyTimeout(cfg.ReadyTimeout),
		browser.WithLogger(w.logger),
	)

	nodes := classify.NewNodeClassifier(
		classify.WithDenyLabels(cfg.DenyLabels...),
		classify.WithAllowedHosts(cfg.AllowedHosts...),
	)
	access := classify.NewAccessClassifier(
		classify.WithURLMarkers(cfg.URLMarkers...),
		classify.WithTitleMarkers(cfg.TitleMarkers...),
		classify.WithContentMarkers(cfg.ContentMarkers...),
		classify.WithAccessLogger(w.logger),
	)

	if cfg.WaitForStart {
		w.signal = control.NewSignal()
	} else {
		w.signal = control.NewRunningSignal()
	}
	w.signal.OnTransition(func(_, to control.State) {
		fmt.Fprintf(w.errOut, "[treewalk] %s\n", to)
	})

	w.engine = traverse.New(driver, w.store,
		traverse.WithLogger(w.logger),
		traverse.WithEventSink(w.events),
		traverse.WithGate(w.signal),
		traverse.WithDelayer(traverse.NewRateGovernor(cfg.MinDelay, cfg.MaxDelay)),
		traverse.WithNodeClassifier(nodes),
		traverse.WithAccessClassifier(access),
		traverse.WithMaxDepth(cfg.MaxDepth),
		traverse.WithSettleWait(cfg.SettleWait),
		traverse.WithRecountWait(cfg.RecountWait),
	)

	w.nav = resume.NewNavigator(driver, w.store, w.engine,
		resume.WithLogger(w.logger),
		resume.WithNodeClassifier(nodes),
		resume.WithGate(w.signal),
		resume.WithExpandWait(cfg.ExpandWait),
		resume.WithProbeWait(cfg.ProbeWait),
	)
}

func (w *walker) listeners() control.Listeners {
	l := control.Listeners{
		Signals: true,
		File:    w.cfg.ControlFile,
	}
	if w.cfg.StdinControl {
		l.Input = w.in
	}
	return l
}

// loop runs executions until one completes, fails, or is stopped without
// --wait-for-start. After a stop with --wait-for-start it waits for the
// next start, reloads the tab and resumes from the checkpoint. A resumed
// first round reloads too, so the name route is replayed on a collapsed tree.
func (w *walker) loop(ctx context.Context, resumeFrom *model.VisitRecord) error {
	for round := 1; ; round++ {
		if w.cfg.WaitForStart || round > 1 {
			fmt.Fprintln(w.errOut, "Waiting for start (type \"start\" or write it to the control file)...")
			if err := w.signal.WaitRunning(ctx); err != nil {
				return nil //nolint:nilerr // cancelled while idle is a stop
			}
		}
		if needsReload(round, resumeFrom) {
			if err := w.session.Reload(ctx); err != nil {
				return err
			}
		}

		rep, runErr := w.execute(ctx, resumeFrom)
		w.finalize(ctx, rep)

		if runErr != nil {
			if errors.Is(runErr, context.Canceled) {
				return nil
			}
			return runErr
		}
		if rep.Outcome != model.OutcomeStopped || !w.cfg.WaitForStart || ctx.Err() != nil {
			return nil
		}

		last, ok, err := w.store.LastRecord()
		if err != nil {
			return fmt.Errorf("failed to read checkpoint: %w", err)
		}
		resumeFrom = nil
		if ok {
			resumeFrom = &last
		}
	}
}

// needsReload reports whether the tab is reloaded before a round. Replaying
// a resume route toggles folders open, so it must start from the freshly
// loaded, collapsed view.
func needsReload(round int, resumeFrom *model.VisitRecord) bool {
	return round > 1 || resumeFrom != nil
}

func (w *walker) execute(ctx context.Context, resumeFrom *model.VisitRecord) (*model.RunReport, error) {
	if resumeFrom == nil {
		return w.engine.Run(ctx)
	}
	return w.nav.Resume(ctx, resumeFrom.Path, resumeFrom.NodeName)
}

// finalize writes the run files, stores the run and prints the summary.
// It runs on a context that survives cancellation so an aborted walk still
// leaves a summary behind.
func (w *walker) finalize(ctx context.Context, rep *model.RunReport) {
	rep.OutputDir = w.cfg.OutputDir
	rep.AddArtifact(w.store.Path())
	for _, f := range w.events.Files() {
		rep.AddArtifact(f)
	}
	rep.AddArtifact(w.logPath)

	opts := pipeline.FinalizeOptions{
		OutputDir: w.cfg.OutputDir,
		Summary: report.SummaryOptions{
			MinDelay: w.cfg.MinDelay,
			MaxDelay: w.cfg.MaxDelay,
			Markdown: w.cfg.MarkdownReport,
		},
		Logger: w.logger,
	}
	if w.history != nil {
		opts.History = w.history
	}

	if err := pipeline.Finalize(opts).Execute(context.WithoutCancel(ctx), rep); err != nil {
		w.logger.Error("failed to write run files", "error", err)
	}

	if _, err := report.NewTextWriter(w.out, report.WithItems(w.cfg.Verbose)).Write(rep); err != nil {
		w.logger.Warn("failed to print summary", "error", err)
	}
}
