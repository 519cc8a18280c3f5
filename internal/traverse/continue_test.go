package traverse

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
	"github.com/nao1215/treewalk/internal/viewtest"
)

// expand activates the named nodes in order, as a resume route would.
func expand(t *testing.T, tree *viewtest.Tree, names ...string) {
	t.Helper()

	ctx := context.Background()
	for _, name := range names {
		node, ok, err := tree.LocateByName(ctx, name)
		if err != nil || !ok {
			t.Fatalf("failed to locate %q: %v", name, err)
		}
		if _, err := tree.Activate(ctx, node); err != nil {
			t.Fatalf("failed to activate %q: %v", name, err)
		}
	}
	tree.ResetCounters()
}

// TestEngineContinue tests the hand-off from a resume plan.
func TestEngineContinue(t *testing.T) {
	t.Parallel()

	t.Run("continues deepest level then ancestors", func(t *testing.T) {
		t.Parallel()

		tree := viewtest.New(
			viewtest.Folder("A", viewtest.Leaf("A1"), viewtest.Leaf("A2"), viewtest.Leaf("A3")),
			viewtest.Folder("B", viewtest.Leaf("B1")),
		)
		expand(t, tree, "A")
		rec := &memRecorder{}

		plan := ResumePlan{
			Target:  treepath.Path{1, 2},
			Next:    treepath.Path{1, 3},
			Levels:  [][]string{{"A", "B"}, {"A1", "A2", "A3"}},
			Visited: []string{"A", "A1", "A2"},
		}

		report, err := newTestEngine(t, tree, rec).Continue(context.Background(), plan)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got, want := visitTrace(rec.records), "A3@1-3 B@2 B1@2-1"; got != want {
			t.Errorf("expected visits %q, got %q", want, got)
		}
		if !report.Resumed || report.ResumedFrom != "1-2" {
			t.Errorf("expected resumed from 1-2, got %v %q", report.Resumed, report.ResumedFrom)
		}
		for _, name := range []string{"A", "A1", "A2"} {
			if tree.Activations(name) != 0 {
				t.Errorf("expected %s not to be revisited", name)
			}
		}
	})

	t.Run("descends into first child", func(t *testing.T) {
		t.Parallel()

		tree := viewtest.New(
			viewtest.Folder("A", viewtest.Folder("A1", viewtest.Leaf("A1a"), viewtest.Leaf("A1b"))),
			viewtest.Leaf("B"),
		)
		expand(t, tree, "A", "A1")
		rec := &memRecorder{}

		plan := ResumePlan{
			Target:  treepath.Path{1, 1},
			Next:    treepath.Path{1, 1, 1},
			Levels:  [][]string{{"A", "B"}, {"A1"}, {"A1a", "A1b"}},
			Visited: []string{"A", "A1"},
		}

		if _, err := newTestEngine(t, tree, rec).Continue(context.Background(), plan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := visitTrace(rec.records), "A1a@1-1-1 A1b@1-1-2 B@2"; got != want {
			t.Errorf("expected visits %q, got %q", want, got)
		}
	})

	t.Run("does not retry items before the resume point", func(t *testing.T) {
		t.Parallel()

		tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("X"), viewtest.Leaf("C"), viewtest.Leaf("D"))
		rec := &memRecorder{}

		plan := ResumePlan{
			Target:  treepath.Path{3},
			Next:    treepath.Path{4},
			Levels:  [][]string{{"A", "X", "C", "D"}},
			Visited: []string{"A", "C"},
		}

		report, err := newTestEngine(t, tree, rec).Continue(context.Background(), plan)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, want := visitTrace(rec.records), "D@4"; got != want {
			t.Errorf("expected visits %q, got %q", want, got)
		}
		if tree.Activations("X") != 0 {
			t.Error("expected X not to be retried")
		}
		if report.Stats.TotalFound != 1 {
			t.Errorf("expected 1 pending item, got %d", report.Stats.TotalFound)
		}
	})

	t.Run("nothing left", func(t *testing.T) {
		t.Parallel()

		tree := viewtest.New(viewtest.Leaf("A"), viewtest.Leaf("B"))
		plan := ResumePlan{
			Target:  treepath.Path{2},
			Next:    treepath.Path{3},
			Levels:  [][]string{{"A", "B"}},
			Visited: []string{"A", "B"},
		}

		report, err := newTestEngine(t, tree, &memRecorder{}).Continue(context.Background(), plan)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Outcome != model.OutcomeCompleted || tree.TotalActivations() != 0 {
			t.Errorf("expected completed without activations, got %s/%d", report.Outcome, tree.TotalActivations())
		}
	})

	t.Run("invalid plan", func(t *testing.T) {
		t.Parallel()

		tree := viewtest.New(viewtest.Leaf("A"))
		plan := ResumePlan{Next: treepath.Path{1, 2}, Levels: [][]string{{"A"}}}

		report, err := newTestEngine(t, tree, &memRecorder{}).Continue(context.Background(), plan)
		if !errors.Is(err, model.ErrResumeFailed) {
			t.Fatalf("expected ErrResumeFailed, got %v", err)
		}
		if report.Outcome != model.OutcomeResumeFailed {
			t.Errorf("expected resume_failed, got %s", report.Outcome)
		}
	})
}
