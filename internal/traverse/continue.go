package traverse

import (
	"context"
	"errors"
	"fmt"

	"github.com/nao1215/treewalk/internal/model"
	"github.com/nao1215/treewalk/internal/treepath"
)

// errInvalidPlan is wrapped by ResumePlan.Validate.
var errInvalidPlan = errors.New("invalid resume plan")

// ResumePlan positions the engine after an interrupted run.
type ResumePlan struct {
	// Target is the last checkpointed path.
	Target treepath.Path

	// Next is the first path that still has to be processed. It is either
	// Target's first child or Target's next sibling.
	Next treepath.Path

	// Levels holds, for every level 0..Next.Level(), the unique visible item
	// names of that level in display order. Position i holds the item
	// addressed by sibling index i+1.
	Levels [][]string

	// Visited is every node name already present in the checkpoint.
	Visited []string
}

// Validate checks that the plan covers every level of Next.
func (p ResumePlan) Validate() error {
	if err := p.Next.Validate(); err != nil {
		return fmt.Errorf("%w: next path: %w", errInvalidPlan, err)
	}
	if len(p.Levels) < len(p.Next) {
		return fmt.Errorf("%w: %d levels for next path %s", errInvalidPlan, len(p.Levels), p.Next)
	}
	return nil
}

// Continue resumes traversal from plan.
//
// Every name of every planned level is claimed before the first activation.
// The engine then walks the deepest level from Next and unwinds through the
// ancestors, each continuing after the sibling on the route. Items before
// the starting index that are not in the checkpoint were attempted by the
// interrupted run and are not retried.
func (e *Engine) Continue(ctx context.Context, plan ResumePlan) (*model.RunReport, error) {
	r := e.newRun(ctx)
	r.report.Resumed = true
	r.report.ResumedFrom = plan.Target.String()

	if err := plan.Validate(); err != nil {
		return e.finish(r, fmt.Errorf("%w: %w", model.ErrResumeFailed, err))
	}

	r.claim(plan.Visited)

	deepest := plan.Next.Level()
	pending := make([][]item, deepest+1)
	for level := 0; level <= deepest; level++ {
		from := plan.Next[level] + 1
		if level == deepest {
			from = plan.Next[level]
		}
		for i, name := range plan.Levels[level] {
			if _, seen := r.visited[name]; seen {
				continue
			}
			r.visited[name] = struct{}{}
			if i+1 >= from {
				pending[level] = append(pending[level], item{name: name, index: i + 1})
			}
		}
		r.report.Stats.TotalFound += len(pending[level])
	}

	e.logger.Info("traversal resumed",
		"after", plan.Target.String(),
		"next", plan.Next.String(),
		"visited", len(plan.Visited),
	)

	for level := deepest; level >= 0; level-- {
		if len(pending[level]) == 0 {
			continue
		}
		if err := e.proceed(ctx); err != nil {
			return e.finish(r, err)
		}

		e.setState(StateEnumerating)
		nodes, err := e.visible(ctx)
		if err != nil {
			return e.finish(r, fmt.Errorf("failed to enumerate level %d: %w", level, err))
		}

		parent := plan.Next[:level].Clone()
		if err := e.walkLevel(ctx, r, parent, level, pending[level], len(nodes)); err != nil {
			return e.finish(r, err)
		}
	}

	return e.finish(r, nil)
}
