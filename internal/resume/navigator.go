package resume

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/treewalk/internal/classify"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/traverse"
	"github.com/nao1215/treewalk/internal/treepath"
)

// Default replay waits.
const (
	// DefaultExpandWait is the pause after activating a node on the route.
	DefaultExpandWait = 2 * time.Second

	// DefaultProbeWait is the pause after activating the target node before
	// its children are counted.
	DefaultProbeWait = 1 * time.Second
)

// RecordSource yields every checkpoint row. checkpoint.Store implements it.
type RecordSource interface {
	AllRecords() ([]model.VisitRecord, error)
}

// Navigator replays a checkpointed route in the live view and hands the
// remaining work to the traversal engine.
type Navigator struct {
	driver traverse.ViewDriver
	source RecordSource
	engine *traverse.Engine
	nodes  *classify.NodeClassifier
	gate   traverse.Gate
	logger *slog.Logger

	expandWait time.Duration
	probeWait  time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the navigator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) {
		n.logger = logger
	}
}

// WithNodeClassifier sets the classifier used to read levels. It must match
// the engine's classifier so that sibling indices agree.
func WithNodeClassifier(c *classify.NodeClassifier) Option {
	return func(n *Navigator) {
		n.nodes = c
	}
}

// WithGate makes the replay waits honor an operator stop.
func WithGate(g traverse.Gate) Option {
	return func(n *Navigator) {
		n.gate = g
	}
}

// WithExpandWait sets the pause after each route activation.
func WithExpandWait(d time.Duration) Option {
	return func(n *Navigator) {
		n.expandWait = d
	}
}

// WithProbeWait sets the pause before counting the target's children.
func WithProbeWait(d time.Duration) Option {
	return func(n *Navigator) {
		n.probeWait = d
	}
}

// WithSleep replaces the context-aware sleep used for replay waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(n *Navigator) {
		n.sleep = sleep
	}
}

// NewNavigator returns a navigator over driver, reading rows from source and
// continuing with engine.
func NewNavigator(driver traverse.ViewDriver, source RecordSource, engine *traverse.Engine, opts ...Option) *Navigator {
	n := &Navigator{
		driver:     driver,
		source:     source,
		engine:     engine,
		expandWait: DefaultExpandWait,
		probeWait:  DefaultProbeWait,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.nodes == nil {
		n.nodes = classify.NewNodeClassifier()
	}
	return n
}

// Resume replays the route to target, then continues the traversal after it.
//
// A plan failure yields a report with model.OutcomeResumeFailed and an error
// wrapping model.ErrResumeFailed. A stop during the replay yields
// model.OutcomeStopped and no error.
func (n *Navigator) Resume(ctx context.Context, target treepath.Path, name string) (*model.RunReport, error) {
	plan, err := n.Plan(ctx, target, name)
	if err != nil {
		report := model.NewRunReport()
		report.Resumed = true
		report.ResumedFrom = target.String()
		report.Stats.Finish()

		switch {
		case errors.Is(err, ErrInterrupted):
			report.Outcome = model.OutcomeStopped
			n.logger.Info("resume stopped by operator", "target", target.String())
			return report, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			report.Outcome = model.OutcomeStopped
			report.Error = err.Error()
			return report, err
		default:
			report.Outcome = model.OutcomeResumeFailed
			report.Error = err.Error()
			n.logger.Error("resume failed", "target", target.String(), "name", name, "error", err)
			return report, err
		}
	}

	return n.engine.Continue(ctx, plan)
}

// Plan derives where the traversal continues after target. It reads the
// checkpoint, validates the route without touching the view, then replays
// the route and probes the target for children.
func (n *Navigator) Plan(ctx context.Context, target treepath.Path, name string) (traverse.ResumePlan, error) {
	records, err := n.source.AllRecords()
	if err != nil {
		return traverse.ResumePlan{}, fmt.Errorf("%w: failed to read checkpoint: %w", model.ErrResumeFailed, err)
	}

	route, err := BuildPathNameMap(records).Route(target)
	if err != nil {
		return traverse.ResumePlan{}, err
	}
	if last := route[len(route)-1]; last != name {
		return traverse.ResumePlan{}, fmt.Errorf("%w: %s is %q, expected %q", ErrNameMismatch, target, last, name)
	}

	visited := make([]string, len(records))
	for i, r := range records {
		visited[i] = r.NodeName
	}

	n.logger.Info("replaying route", "target", target.String(), "name", name, "depth", len(route))

	names, err := n.visibleNames(ctx)
	if err != nil {
		return traverse.ResumePlan{}, err
	}
	levels := [][]string{names}
	shown := toSet(names)

	for level, step := range route[:len(route)-1] {
		if err := n.activate(ctx, step, level); err != nil {
			return traverse.ResumePlan{}, err
		}
		if err := n.wait(ctx, n.expandWait); err != nil {
			return traverse.ResumePlan{}, err
		}

		names, err := n.visibleNames(ctx)
		if err != nil {
			return traverse.ResumePlan{}, err
		}
		levels = append(levels, newNames(names, shown))
	}

	before, err := n.visibleNames(ctx)
	if err != nil {
		return traverse.ResumePlan{}, err
	}
	if err := n.activate(ctx, name, target.Level()); err != nil {
		return traverse.ResumePlan{}, err
	}
	if err := n.wait(ctx, n.probeWait); err != nil {
		return traverse.ResumePlan{}, err
	}
	after, err := n.visibleNames(ctx)
	if err != nil {
		return traverse.ResumePlan{}, err
	}

	next := target.NextSibling()
	if len(after) > len(before) {
		if children := newNames(after, shown); len(children) > 0 {
			next = target.FirstChild()
			levels = append(levels, children)
		}
	}

	n.logger.Info("resume point found", "target", target.String(), "next", next.String())

	return traverse.ResumePlan{
		Target:  target.Clone(),
		Next:    next,
		Levels:  levels,
		Visited: visited,
	}, nil
}

// activate locates and activates one route node.
func (n *Navigator) activate(ctx context.Context, name string, level int) error {
	node, ok, err := n.driver.LocateByName(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %q at level %d: %w", ErrNodeNotFound, name, level, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q at level %d", ErrNodeNotFound, name, level)
	}

	activated, err := n.driver.Activate(ctx, node)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", ErrRouteActivation, name, err)
	}
	if !activated {
		return fmt.Errorf("%w: %q", ErrRouteActivation, name)
	}
	return nil
}

// wait pauses for d and then honors cancellation and operator stops.
func (n *Navigator) wait(ctx context.Context, d time.Duration) error {
	if err := n.sleep(ctx, d); err != nil {
		return err
	}
	if n.gate != nil && !n.gate.IsRunning() {
		return ErrInterrupted
	}
	return nil
}

func (n *Navigator) visibleNames(ctx context.Context) ([]string, error) {
	raw, err := n.driver.EnumerateVisibleNodes(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: failed to enumerate tree: %w", model.ErrResumeFailed, err)
	}

	nodes := make([]model.Node, 0, len(raw))
	for _, node := range raw {
		if n.nodes.IsNavigableItem(node.Text, node.Target) {
			nodes = append(nodes, node)
		}
	}
	return traverse.UniqueNames(nodes), nil
}

// newNames returns the names not in shown, in order, and adds them to shown.
func newNames(names []string, shown map[string]struct{}) []string {
	fresh := make([]string, 0)
	for _, name := range names {
		if _, ok := shown[name]; ok {
			continue
		}
		shown[name] = struct{}{}
		fresh = append(fresh, name)
	}
	return fresh
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
