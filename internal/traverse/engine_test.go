package traverse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/treewalk/internal/checkpoint"
	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
	"github.com/nao1215/treewalk/internal/viewtest"
)

// memRecorder keeps visits in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []model.VisitRecord
	err     error
}

func (m *memRecorder) Append(rec model.VisitRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// memEvents keeps failure and denial entries in memory.
type memEvents struct {
	failures []model.FailureRecord
	denied   []model.DeniedRecord
}

func (m *memEvents) RecordFailure(rec model.FailureRecord) error {
	m.failures = append(m.failures, rec)
	return nil
}

func (m *memEvents) RecordDenied(rec model.DeniedRecord) error {
	m.denied = append(m.denied, rec)
	return nil
}

// switchGate is a Gate that can be stopped from a test hook.
type switchGate struct {
	stopped atomic.Bool
}

func (g *switchGate) IsRunning() bool { return !g.stopped.Load() }
func (g *switchGate) stop()           { g.stopped.Store(true) }

// fixedDelayer returns a constant delay without sleeping.
type fixedDelayer struct {
	delay time.Duration
	calls int
}

func (f *fixedDelayer) Wait(ctx context.Context) (time.Duration, error) {
	f.calls++
	return f.delay, ctx.Err()
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, driver ViewDriver, rec Recorder, opts ...Option) *Engine {
	t.Helper()

	base := []Option{
		WithLogger(quietLogger()),
		WithSleep(noSleep),
	}
	return New(driver, rec, append(base, opts...)...)
}

// visitTrace renders visits as "name@path" for compact comparison.
func visitTrace(records []model.VisitRecord) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.NodeName + "@" + r.Path.String()
	}
	return strings.Join(parts, " ")
}

// TestEngineRunDiscoversChildren tests that an item whose activation grows
// the tree is recorded first and its new items are walked as its children.
func TestEngineRunDiscoversChildren(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(
		viewtest.Folder("A", viewtest.Leaf("D")),
		viewtest.Leaf("B"),
		viewtest.Leaf("C"),
	)
	rec := &memRecorder{}
	e := newTestEngine(t, tree, rec)

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "A@1 D@1-1 B@2 C@3"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if report.Outcome != model.OutcomeCompleted {
		t.Errorf("expected completed, got %s", report.Outcome)
	}
	if report.Stats.Successful != 4 || report.Stats.TotalFound != 4 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if report.Stats.LevelCounts[2] != 1 {
		t.Errorf("expected one visit on level 2, got %v", report.Stats.LevelCounts)
	}
	if e.State() != StateDone {
		t.Errorf("expected state done, got %s", e.State())
	}
	if rec.records[1].Level != 1 {
		t.Errorf("expected child level 1, got %d", rec.records[1].Level)
	}
}

// TestEngineRunDeepTree tests pre-order addressing and the invariants every
// run must satisfy.
func TestEngineRunDeepTree(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(
		viewtest.Folder("A",
			viewtest.Folder("A1", viewtest.Leaf("A1a"), viewtest.Leaf("A1b")),
			viewtest.Leaf("A2"),
		),
		viewtest.Folder("B", viewtest.Leaf("B1")),
	)
	rec := &memRecorder{}

	if _, err := newTestEngine(t, tree, rec).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "A@1 A1@1-1 A1a@1-1-1 A1b@1-1-2 A2@1-2 B@2 B1@2-1"
	if got := visitTrace(rec.records); got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}

	assertNoDuplicateNames(t, rec.records)
	assertPrefixClosed(t, rec.records)
	for _, name := range []string{"A", "A1", "A1a", "A1b", "A2", "B", "B1"} {
		if n := tree.Activations(name); n != 1 {
			t.Errorf("expected %s to be activated once, got %d", name, n)
		}
	}
}

// TestEngineRunRepeatedName tests that a name shown twice is visited once.
func TestEngineRunRepeatedName(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(
		viewtest.Folder("A", viewtest.Leaf("Shared")),
		viewtest.Folder("B", viewtest.Leaf("Shared"), viewtest.Leaf("B2")),
	)
	rec := &memRecorder{}

	if _, err := newTestEngine(t, tree, rec).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "A@1 Shared@1-1 B@2 B2@2-1"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	assertNoDuplicateNames(t, rec.records)
	assertPrefixClosed(t, rec.records)
	if n := tree.Activations("Shared"); n != 1 {
		t.Errorf("expected Shared to be activated once, got %d", n)
	}
}

// TestEngineRunActivationFailures tests that failed items are recorded and
// skipped without a visit.
func TestEngineRunActivationFailures(t *testing.T) {
	t.Parallel()

	x := viewtest.Leaf("X")
	x.Err = errors.New("element is detached")
	y := viewtest.Leaf("Y")
	y.Refuse = true

	tree := viewtest.New(x, y, viewtest.Leaf("Z"))
	rec := &memRecorder{}
	events := &memEvents{}

	report, err := newTestEngine(t, tree, rec, WithEventSink(events)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "Z@3"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", report.Failures)
	}
	if report.Failures[0].NodeName != "X" || report.Failures[0].Reason != "element is detached" {
		t.Errorf("unexpected first failure: %+v", report.Failures[0])
	}
	if report.Failures[1].NodeName != "Y" || report.Failures[1].Reason != model.ReasonActivationFailed {
		t.Errorf("unexpected second failure: %+v", report.Failures[1])
	}
	if len(events.failures) != 2 {
		t.Errorf("expected 2 failures in event sink, got %d", len(events.failures))
	}
	if report.Stats.AccessFailed != 2 {
		t.Errorf("expected AccessFailed 2, got %d", report.Stats.AccessFailed)
	}
	if tree.Activations("X") != 1 {
		t.Errorf("expected X to be attempted once, got %d", tree.Activations("X"))
	}
}

// TestEngineRunNodeVanishes tests re-location after the view mutated.
func TestEngineRunNodeVanishes(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"), viewtest.Leaf("C"))
	tree.AfterActivate("A", func(tr *viewtest.Tree) { tr.Remove("B") })
	rec := &memRecorder{}

	report, err := newTestEngine(t, tree, rec).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "A@1 C@3"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if len(report.Failures) != 1 || report.Failures[0].Reason != model.ReasonNodeNotFound {
		t.Errorf("expected a node-not-found failure, got %+v", report.Failures)
	}
}

// TestEngineRunAccessDenied tests that denied items are logged, not
// recorded, and not descended into.
func TestEngineRunAccessDenied(t *testing.T) {
	t.Parallel()

	p := viewtest.Folder("P", viewtest.Leaf("P1"), viewtest.Leaf("P2"))
	p.Title = "403 Forbidden"
	r := viewtest.Leaf("R")
	r.Content = `<html><body><p>You need permission. Access denied.</p></body></html>`

	tree := viewtest.New(p, viewtest.Folder("Q", viewtest.Leaf("Q1")), r)
	rec := &memRecorder{}
	events := &memEvents{}

	report, err := newTestEngine(t, tree, rec, WithEventSink(events)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "Q@2 Q1@2-1"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if len(report.Denied) != 2 {
		t.Fatalf("expected 2 denials, got %+v", report.Denied)
	}
	if report.Denied[0].NodeName != "P" || report.Denied[0].Marker != "403" {
		t.Errorf("unexpected first denial: %+v", report.Denied[0])
	}
	if report.Denied[1].NodeName != "R" || report.Denied[1].Marker != "access denied" {
		t.Errorf("unexpected second denial: %+v", report.Denied[1])
	}
	if len(events.denied) != 2 {
		t.Errorf("expected 2 denials in event sink, got %d", len(events.denied))
	}
	if tree.Activations("P1")+tree.Activations("P2") != 0 {
		t.Error("expected children of a denied item not to be activated")
	}
	if report.Stats.Unreached != 2 {
		t.Errorf("expected 2 unreached names, got %d", report.Stats.Unreached)
	}
	if report.Stats.DepthLimited != 0 {
		t.Errorf("expected no depth-limited names, got %d", report.Stats.DepthLimited)
	}
	assertPrefixClosed(t, rec.records)
}

// TestEngineRunSilentSkip tests activations that reach no document.
func TestEngineRunSilentSkip(t *testing.T) {
	t.Parallel()

	s := viewtest.Folder("S", viewtest.Leaf("S1"))
	s.NoTitle = true
	tree := viewtest.New(s, viewtest.Leaf("T"))
	rec := &memRecorder{}

	report, err := newTestEngine(t, tree, rec).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "T@2"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if report.Stats.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", report.Stats.Skipped)
	}
	if len(report.Failures) != 0 || len(report.Denied) != 0 {
		t.Errorf("expected no failure or denial records, got %+v %+v", report.Failures, report.Denied)
	}
	if tree.Activations("S1") != 0 {
		t.Error("expected child of skipped item not to be activated")
	}
	if report.Stats.Unreached != 1 || report.Stats.DepthLimited != 0 {
		t.Errorf("expected 1 unreached and no depth-limited names, got %d and %d",
			report.Stats.Unreached, report.Stats.DepthLimited)
	}
}

// TestEngineRunMaxDepth tests the depth bound.
func TestEngineRunMaxDepth(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(
		viewtest.Folder("A", viewtest.Folder("A1", viewtest.Leaf("A1a"))),
		viewtest.Leaf("B"),
	)
	rec := &memRecorder{}

	report, err := newTestEngine(t, tree, rec, WithMaxDepth(1)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "A@1 A1@1-1 B@2"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if report.Stats.DepthLimited != 1 {
		t.Errorf("expected 1 depth-limited name, got %d", report.Stats.DepthLimited)
	}
	if report.Stats.Unreached != 0 {
		t.Errorf("expected no unreached names, got %d", report.Stats.Unreached)
	}
	if report.Outcome != model.OutcomeCompleted {
		t.Errorf("expected completed, got %s", report.Outcome)
	}
}

// TestEngineRunChromeFiltered tests that sidebar chrome is never activated.
func TestEngineRunChromeFiltered(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(viewtest.Leaf("Roadmap"), viewtest.Leaf("Specs")).
		WithChrome("Search", "首页", "Settings")
	rec := &memRecorder{}

	if _, err := newTestEngine(t, tree, rec).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := visitTrace(rec.records), "Roadmap@1 Specs@2"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
}

// TestEngineRunStop tests an operator stop between items.
func TestEngineRunStop(t *testing.T) {
	t.Parallel()

	gate := &switchGate{}
	tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"), viewtest.Leaf("C"))
	tree.AfterActivate("B", func(*viewtest.Tree) { gate.stop() })
	rec := &memRecorder{}

	report, err := newTestEngine(t, tree, rec, WithGate(gate)).Run(context.Background())
	if err != nil {
		t.Fatalf("expected nil error on stop, got %v", err)
	}

	if report.Outcome != model.OutcomeStopped {
		t.Errorf("expected stopped, got %s", report.Outcome)
	}
	if got, want := visitTrace(rec.records), "A@1"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
	if tree.Activations("C") != 0 {
		t.Error("expected no activation after stop")
	}
}

// TestEngineRunStoppedBeforeStart tests a gate that is closed from the start.
func TestEngineRunStoppedBeforeStart(t *testing.T) {
	t.Parallel()

	gate := &switchGate{}
	gate.stop()
	tree := viewtest.New(viewtest.Leaf("A"))

	report, err := newTestEngine(t, tree, &memRecorder{}, WithGate(gate)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Outcome != model.OutcomeStopped || tree.TotalActivations() != 0 {
		t.Errorf("expected stopped run without activations, got %s and %d", report.Outcome, tree.TotalActivations())
	}
}

// TestEngineRunCancel tests context cancellation.
func TestEngineRunCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"), viewtest.Leaf("C"))
	tree.AfterActivate("B", func(*viewtest.Tree) { cancel() })
	rec := &memRecorder{}

	report, err := newTestEngine(t, tree, rec).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if report.Outcome != model.OutcomeStopped {
		t.Errorf("expected stopped, got %s", report.Outcome)
	}
	if got, want := visitTrace(rec.records), "A@1"; got != want {
		t.Errorf("expected visits %q, got %q", want, got)
	}
}

// TestEngineRunAppendFailure tests that a checkpoint failure aborts the run.
func TestEngineRunAppendFailure(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"))
	rec := &memRecorder{err: errors.New("no space left on device")}

	report, err := newTestEngine(t, tree, rec).Run(context.Background())
	if !errors.Is(err, model.ErrCheckpointAppend) {
		t.Fatalf("expected ErrCheckpointAppend, got %v", err)
	}
	if report.Outcome != model.OutcomeAborted {
		t.Errorf("expected aborted, got %s", report.Outcome)
	}
	if tree.Activations("B") != 0 {
		t.Error("expected no activation after append failure")
	}
	if report.Error == "" {
		t.Error("expected error message in report")
	}
}

// TestEngineRunEnumerationFailure tests a root level that cannot be read.
func TestEngineRunEnumerationFailure(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(viewtest.Leaf("A"))
	tree.FailEnumeration(viewtest.ErrEnumerate)

	report, err := newTestEngine(t, tree, &memRecorder{}).Run(context.Background())
	if !errors.Is(err, viewtest.ErrEnumerate) {
		t.Fatalf("expected enumeration error, got %v", err)
	}
	if report.Outcome != model.OutcomeAborted {
		t.Errorf("expected aborted, got %s", report.Outcome)
	}
}

// TestEngineRunDelays tests that every activation but the first is paced.
func TestEngineRunDelays(t *testing.T) {
	t.Parallel()

	tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"), viewtest.Leaf("C"))
	delayer := &fixedDelayer{delay: 3 * time.Second}

	report, err := newTestEngine(t, tree, &memRecorder{}, WithDelayer(delayer)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if delayer.calls != 2 {
		t.Errorf("expected 2 delays, got %d", delayer.calls)
	}
	if report.Stats.DelayCount != 2 || report.Stats.AverageDelay() != 3*time.Second {
		t.Errorf("unexpected delay stats: count=%d avg=%v", report.Stats.DelayCount, report.Stats.AverageDelay())
	}
}

// TestEngineRunWithCheckpointStore tests the engine against the CSV store.
func TestEngineRunWithCheckpointStore(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	tree := viewtest.New(viewtest.Folder("A", viewtest.Leaf("A1")), viewtest.Leaf("B"))
	if _, err := newTestEngine(t, tree, store).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := store.AllRecords()
	if err != nil {
		t.Fatalf("failed to read records: %v", err)
	}
	if got, want := visitTrace(records), "A@1 A1@1-1 B@2"; got != want {
		t.Errorf("expected persisted visits %q, got %q", want, got)
	}
	if records[0].URL != viewtest.BaseURL+"A" {
		t.Errorf("unexpected url %q", records[0].URL)
	}
}

func assertNoDuplicateNames(t *testing.T, records []model.VisitRecord) {
	t.Helper()

	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.NodeName] {
			t.Errorf("name %q recorded twice", r.NodeName)
		}
		seen[r.NodeName] = true
	}
}

func assertPrefixClosed(t *testing.T, records []model.VisitRecord) {
	t.Helper()

	paths := make([]treepath.Path, len(records))
	for i, r := range records {
		paths[i] = r.Path
	}
	for i, p := range paths {
		for _, prefix := range p.Prefixes()[:p.Level()] {
			found := false
			for _, q := range paths[:i] {
				if q.Equal(prefix) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("path %s recorded before its prefix %s", p, prefix)
			}
		}
	}
}
