package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/treewalk/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, report *model.RunReport) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, report *model.RunReport) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if p := New(WithContinueOnError(true)); !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		p := New()
		p.AddSteps(
			&mockStep{name: "step-1", doFunc: func(context.Context, *model.RunReport) error {
				order = append(order, "step-1")
				return nil
			}},
			&mockStep{name: "step-2", doFunc: func(context.Context, *model.RunReport) error {
				order = append(order, "step-2")
				return nil
			}},
		)

		report := model.NewRunReport()
		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 2 || order[0] != "step-1" || order[1] != "step-2" {
			t.Errorf("wrong execution order: %v", order)
		}
		if len(report.Steps) != 2 || report.Steps[1] != "step-2" {
			t.Errorf("report.Steps = %v", report.Steps)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		second := &mockStep{name: "should-not-run"}

		p := New()
		p.AddStep(&mockStep{name: "failing-step", doFunc: func(context.Context, *model.RunReport) error {
			return expectedErr
		}})
		p.AddStep(second)

		err := p.Execute(context.Background(), model.NewRunReport())
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if second.callCount != 0 {
			t.Error("second step should not have been called")
		}
	})

	t.Run("continues on error and returns the first error", func(t *testing.T) {
		t.Parallel()

		firstErr := errors.New("first")
		second := &mockStep{name: "fails-too", doFunc: func(context.Context, *model.RunReport) error {
			return errors.New("second")
		}}
		third := &mockStep{name: "should-run"}

		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "failing-step", doFunc: func(context.Context, *model.RunReport) error { return firstErr }},
			second,
			third,
		)

		report := model.NewRunReport()
		err := p.Execute(context.Background(), report)
		if !errors.Is(err, firstErr) {
			t.Errorf("expected first error, got %v", err)
		}
		if second.callCount != 1 || third.callCount != 1 {
			t.Error("later steps should have run")
		}
		if len(report.Steps) != 3 {
			t.Errorf("report.Steps = %v", report.Steps)
		}
	})

	t.Run("respects cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "never"}
		p := New()
		p.AddStep(step)

		if err := p.Execute(ctx, model.NewRunReport()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not run after cancellation")
		}
	})
}

func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddSteps(&mockStep{name: "a"}, &mockStep{name: "b"})

	names := p.StepNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("StepNames() = %v", names)
	}
}
