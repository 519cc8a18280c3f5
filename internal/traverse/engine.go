package traverse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nao1215/treewalk/internal/classify"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// Engine defaults.
const (
	// DefaultMaxDepth is the deepest 0-based level the engine descends into.
	DefaultMaxDepth = 10

	// DefaultSettleWait is how long the view gets after an activation
	// before its location is read.
	DefaultSettleWait = 2 * time.Second

	// DefaultRecountWait is how long the tree gets to expand before the
	// engine compares item counts.
	DefaultRecountWait = 1 * time.Second
)

// errStopped unwinds the walk when the operator stops the run.
var errStopped = errors.New("traversal stopped by operator")

// Engine walks the remote tree depth-first and visits every navigable node
// at most once per run.
//
// The engine never keeps a model.Node across an activation. Every item is
// re-located by name right before it is activated, and every structural
// decision is made on a fresh enumeration.
type Engine struct {
	driver   ViewDriver
	recorder Recorder
	events   EventSink
	gate     Gate
	delayer  Delayer
	nodes    *classify.NodeClassifier
	access   *classify.AccessClassifier
	logger   *slog.Logger

	maxDepth    int
	settleWait  time.Duration
	recountWait time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time

	state atomic.Int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEventSink sets where failures and denials are reported.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		e.events = sink
	}
}

// WithGate sets the operator gate polled between items.
// Without a gate the engine always runs.
func WithGate(gate Gate) Option {
	return func(e *Engine) {
		e.gate = gate
	}
}

// WithDelayer sets the pacing applied before every activation except the
// first one of a run.
func WithDelayer(d Delayer) Option {
	return func(e *Engine) {
		e.delayer = d
	}
}

// WithNodeClassifier replaces the default node classifier.
func WithNodeClassifier(c *classify.NodeClassifier) Option {
	return func(e *Engine) {
		e.nodes = c
	}
}

// WithAccessClassifier replaces the default access classifier.
func WithAccessClassifier(c *classify.AccessClassifier) Option {
	return func(e *Engine) {
		e.access = c
	}
}

// WithMaxDepth sets the deepest 0-based level to descend into.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithSettleWait sets the wait after an activation.
func WithSettleWait(d time.Duration) Option {
	return func(e *Engine) {
		e.settleWait = d
	}
}

// WithRecountWait sets the wait before the post-visit enumeration.
func WithRecountWait(d time.Duration) Option {
	return func(e *Engine) {
		e.recountWait = d
	}
}

// WithSleep replaces the context-aware sleep used for settle and recount
// waits. Tests use it to run without real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithClock replaces the time source for timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an engine that drives driver and makes visits durable through
// recorder.
func New(driver ViewDriver, recorder Recorder, opts ...Option) *Engine {
	e := &Engine{
		driver:      driver,
		recorder:    recorder,
		maxDepth:    DefaultMaxDepth,
		settleWait:  DefaultSettleWait,
		recountWait: DefaultRecountWait,
		sleep:       sleepContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.nodes == nil {
		e.nodes = classify.NewNodeClassifier()
	}
	if e.access == nil {
		e.access = classify.NewAccessClassifier(classify.WithAccessLogger(e.logger))
	}
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// item is a claimed name and the sibling index it will be addressed by.
type item struct {
	name  string
	index int
}

func indexed(names []string, first int) []item {
	items := make([]item, len(names))
	for i, n := range names {
		items[i] = item{name: n, index: first + i}
	}
	return items
}

// run is the per-execution state. The visited set lives here so that two
// executions never share it.
type run struct {
	report   *model.RunReport
	visited  map[string]struct{}
	attempts int
}

// claim marks every unseen name as taken and returns those names in order.
func (r *run) claim(names []string) []string {
	claimed := make([]string, 0, len(names))
	for _, n := range names {
		if _, seen := r.visited[n]; seen {
			continue
		}
		r.visited[n] = struct{}{}
		claimed = append(claimed, n)
	}
	return claimed
}

func (e *Engine) newRun(ctx context.Context) *run {
	r := &run{
		report:  model.NewRunReport(),
		visited: make(map[string]struct{}),
	}
	r.report.Stats.StartedAt = e.now()
	if loc, err := e.driver.CurrentLocation(ctx); err == nil {
		r.report.StartLocation = loc
	}
	return r
}

// Run traverses the whole tree from the root level.
//
// A stop through the Gate ends the run with model.OutcomeStopped and a nil
// error. Context cancellation also yields OutcomeStopped but returns the
// context error. A failed checkpoint append aborts the run.
func (e *Engine) Run(ctx context.Context) (*model.RunReport, error) {
	r := e.newRun(ctx)

	e.setState(StateEnumerating)
	nodes, err := e.visible(ctx)
	if err != nil {
		return e.finish(r, fmt.Errorf("failed to enumerate root level: %w", err))
	}

	names := r.claim(UniqueNames(nodes))
	r.report.Stats.TotalFound += len(names)
	e.logger.Info("traversal started", "level", 0, "items", len(names))

	return e.finish(r, e.walkLevel(ctx, r, nil, 0, indexed(names, 1), len(nodes)))
}

// finish stamps the report and maps the walk error to an outcome.
func (e *Engine) finish(r *run, err error) (*model.RunReport, error) {
	defer e.setState(StateDone)

	stats := r.report.Stats
	stats.EndedAt = e.now()

	logFields := []any{
		"visited", stats.Successful,
		"failed", stats.AccessFailed,
		"denied", stats.PermissionDenied,
		"duration", model.FormatDuration(stats.Duration()),
	}

	switch {
	case err == nil:
		r.report.Outcome = model.OutcomeCompleted
		e.logger.Info("traversal completed", logFields...)
		return r.report, nil
	case errors.Is(err, errStopped):
		r.report.Outcome = model.OutcomeStopped
		e.logger.Info("traversal stopped", logFields...)
		return r.report, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.report.Outcome = model.OutcomeStopped
		r.report.Error = err.Error()
		e.logger.Warn("traversal cancelled", append(logFields, "error", err)...)
		return r.report, err
	case errors.Is(err, model.ErrResumeFailed):
		r.report.Outcome = model.OutcomeResumeFailed
	default:
		r.report.Outcome = model.OutcomeAborted
	}

	r.report.Error = err.Error()
	e.logger.Error("traversal aborted", append(logFields, "error", err)...)
	return r.report, err
}

// proceed returns the reason to stop, if any.
func (e *Engine) proceed(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.gate != nil && !e.gate.IsRunning() {
		return errStopped
	}
	return nil
}

// visible enumerates the view and keeps navigable items.
func (e *Engine) visible(ctx context.Context) ([]model.Node, error) {
	raw, err := e.driver.EnumerateVisibleNodes(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]model.Node, 0, len(raw))
	for _, n := range raw {
		if e.nodes.IsNavigableItem(n.Text, n.Target) {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// recount waits for the tree to settle and enumerates again. The boolean is
// false when the enumeration failed; the failure is logged and the caller
// keeps its previous count.
func (e *Engine) recount(ctx context.Context) ([]model.Node, bool, error) {
	if err := e.sleep(ctx, e.recountWait); err != nil {
		return nil, false, err
	}

	e.setState(StateEnumerating)
	nodes, err := e.visible(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		e.logger.Warn("failed to enumerate tree", "error", err)
		return nil, false, nil
	}
	return nodes, true, nil
}

// walkLevel processes claimed items of one level in order. baseline is the
// item count the view showed when the items were claimed.
func (e *Engine) walkLevel(ctx context.Context, r *run, parent treepath.Path, level int, items []item, baseline int) error {
	for _, it := range items {
		if err := e.proceed(ctx); err != nil {
			return err
		}

		path := treepath.Allocate(parent, it.index)
		next, err := e.visitItem(ctx, r, path, level, it.name, baseline)
		if err != nil {
			return err
		}
		baseline = next
		e.setState(StateAdvancingSibling)
	}
	return nil
}

// visitItem activates one item, records the result and descends into any
// children it revealed. It returns the item count to compare the next
// sibling against.
func (e *Engine) visitItem(ctx context.Context, r *run, path treepath.Path, level int, name string, baseline int) (int, error) {
	e.setState(StateActivating)
	activated, err := e.activate(ctx, r, name, level)
	if err != nil || !activated {
		return baseline, err
	}

	latency, err := e.settle(ctx)
	if err != nil {
		return baseline, err
	}
	if err := e.proceed(ctx); err != nil {
		return baseline, err
	}

	e.setState(StateClassifying)
	loc, err := e.driver.CurrentLocation(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return baseline, ctxErr
		}
		e.fail(r, name, level, err.Error())
		return e.absorb(ctx, r, baseline)
	}

	if !loc.Extractable() {
		r.report.Stats.Skipped++
		e.logger.Debug("no title or url after activation, skipping",
			"path", path.String(),
			"name", name,
		)
		return e.absorb(ctx, r, baseline)
	}

	if verdict := e.access.Classify(ctx, loc, e.contentSource()); verdict.IsDenied() {
		e.deny(r, name, level, loc, verdict)
		return e.absorb(ctx, r, baseline)
	}

	rec := model.VisitRecord{
		Path:            path,
		Level:           level,
		NodeName:        name,
		URL:             loc.URL,
		Title:           loc.Title,
		VisitedAt:       e.now(),
		ResponseLatency: latency,
	}
	if err := e.recorder.Append(rec); err != nil {
		return baseline, fmt.Errorf("failed to record visit %s %q: %w: %w", path, name, model.ErrCheckpointAppend, err)
	}
	r.report.Visits = append(r.report.Visits, rec)
	r.report.Stats.RecordVisit(level)

	e.logger.Info("visited",
		"path", path.String(),
		"name", name,
		"level", level,
		"url", loc.URL,
		"latency", latency.Round(time.Millisecond).String(),
	)

	nodes, ok, err := e.recount(ctx)
	if err != nil {
		return baseline, err
	}
	if !ok {
		return baseline, nil
	}
	if len(nodes) <= baseline {
		return len(nodes), nil
	}

	if level+1 > e.maxDepth {
		limited := r.claim(UniqueNames(nodes))
		r.report.Stats.DepthLimited += len(limited)
		e.logger.Warn("structural anomaly: not descending",
			"path", path.String(),
			"name", name,
			"level", level+1,
			"max_depth", e.maxDepth,
			"skipped", len(limited),
			"error", model.ErrDepthExceeded,
		)
		return len(nodes), nil
	}

	children := r.claim(UniqueNames(nodes))
	if len(children) > 0 {
		r.report.Stats.TotalFound += len(children)
		e.logger.Debug("descending",
			"path", path.String(),
			"level", level+1,
			"items", len(children),
		)
		e.setState(StateRecursingChild)
		if err := e.walkLevel(ctx, r, path, level+1, indexed(children, 1), len(nodes)); err != nil {
			return baseline, err
		}
	}

	e.setState(StateEnumerating)
	refreshed, err := e.visible(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return baseline, ctxErr
		}
		e.logger.Warn("failed to enumerate tree", "error", err)
		return len(nodes), nil
	}
	return len(refreshed), nil
}

// activate paces, re-locates and activates one item. Per-node failures are
// recorded and reported as false with a nil error.
func (e *Engine) activate(ctx context.Context, r *run, name string, level int) (bool, error) {
	if r.attempts > 0 && e.delayer != nil {
		d, err := e.delayer.Wait(ctx)
		if err != nil {
			return false, err
		}
		r.report.Stats.RecordDelay(d)
		if err := e.proceed(ctx); err != nil {
			return false, err
		}
	}
	r.attempts++

	node, found, err := e.driver.LocateByName(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		e.fail(r, name, level, err.Error())
		return false, nil
	}
	if !found {
		e.fail(r, name, level, model.ReasonNodeNotFound)
		return false, nil
	}

	ok, err := e.driver.Activate(ctx, node)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		e.fail(r, name, level, err.Error())
		return false, nil
	}
	if !ok {
		e.fail(r, name, level, model.ReasonActivationFailed)
		return false, nil
	}
	return true, nil
}

// settle waits for the view after an activation and returns the measured
// response latency.
func (e *Engine) settle(ctx context.Context) (time.Duration, error) {
	start := e.now()
	if err := e.sleep(ctx, e.settleWait); err != nil {
		return 0, err
	}
	if w, ok := e.driver.(ReadyWaiter); ok {
		if err := w.WaitReady(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			e.logger.Debug("document did not report ready", "error", err)
		}
	}
	return e.now().Sub(start), nil
}

// absorb claims descendants revealed by an item that is not visited, so
// that they are never mistaken for children of a later sibling.
func (e *Engine) absorb(ctx context.Context, r *run, baseline int) (int, error) {
	nodes, ok, err := e.recount(ctx)
	if err != nil {
		return baseline, err
	}
	if !ok {
		return baseline, nil
	}
	if len(nodes) > baseline {
		r.report.Stats.Unreached += len(r.claim(UniqueNames(nodes)))
	}
	return len(nodes), nil
}

func (e *Engine) contentSource() classify.ContentSource {
	if src, ok := e.driver.(classify.ContentSource); ok {
		return src
	}
	return nil
}

func (e *Engine) fail(r *run, name string, level int, reason string) {
	rec := model.FailureRecord{
		NodeName:  name,
		Level:     level,
		Reason:    reason,
		Timestamp: e.now(),
	}
	r.report.Failures = append(r.report.Failures, rec)
	r.report.Stats.AccessFailed++

	e.logger.Warn("activation failed",
		"name", name,
		"level", level,
		"reason", reason,
	)
	if e.events != nil {
		if err := e.events.RecordFailure(rec); err != nil {
			e.logger.Warn("failed to write failure log", "error", err)
		}
	}
}

func (e *Engine) deny(r *run, name string, level int, loc model.Location, verdict classify.Verdict) {
	rec := model.DeniedRecord{
		NodeName:  name,
		Level:     level,
		URL:       loc.URL,
		Title:     loc.Title,
		Marker:    verdict.Marker,
		Timestamp: e.now(),
	}
	r.report.Denied = append(r.report.Denied, rec)
	r.report.Stats.PermissionDenied++

	e.logger.Warn("permission denied",
		"name", name,
		"level", level,
		"url", loc.URL,
		"marker", verdict.Marker,
		"source", verdict.Source,
	)
	if e.events != nil {
		if err := e.events.RecordDenied(rec); err != nil {
			e.logger.Warn("failed to write permission log", "error", err)
		}
	}
}
