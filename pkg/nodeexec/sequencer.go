package nodeexec

import (
	"context"
	"fmt"

	"github.com/buildforge/manager/pkg/model"
)

// NeedsChildren is returned by a TargetExecutor when it cannot continue
// without results from other configurations — the node-side trigger for
// emitting a BuildRequestBlocker with Children populated (spec.md §4.4).
// Resuming after the children complete is the node provider's job (it
// re-invokes the Sequencer with the results attached via ResumeWith).
type NeedsChildren struct {
	Children []*model.Request
}

func (e *NeedsChildren) Error() string {
	return fmt.Sprintf("target needs %d child request(s) before it can continue", len(e.Children))
}

// Sequencer runs a project's requested targets, one at a time, in
// dependency order — the node-side counterpart to the teacher's
// BuildSteps.runAllMatchingBuilds loop (spec.md §5: "targets within one
// request run sequentially").
type Sequencer struct {
	executors map[string]TargetExecutor
}

// NewSequencer indexes executors by name for dependency lookups.
func NewSequencer(executors []TargetExecutor) *Sequencer {
	byName := make(map[string]TargetExecutor, len(executors))
	for _, e := range executors {
		byName[e.Name()] = e
	}
	return &Sequencer{executors: byName}
}

// Run executes targets against cfg in the order given, after expanding
// each target's DependsOn closure exactly once. It stops at the first
// target failure (ordinary target errors bubble up as a Failure result
// per spec.md §7's propagation policy; they do not panic or abort the
// process). skipped is consulted before each target — when it returns
// true the scheduler has already determined (via skip-unsuccessful
// replay, spec.md §4.2) that this target should be reported as a skipped
// failure without re-execution.
func (s *Sequencer) Run(ctx context.Context, cfg *model.Configuration, targets []string, coop Cooperation, skipped func(target string) (skip bool, wasFailure bool)) (*model.Result, error) {
	result := model.NewResult(cfg.ID, 0)
	order, err := s.expand(targets)
	if err != nil {
		return nil, err
	}

	for _, name := range order {
		if skip, wasFailure := skipped(name); skip {
			result.AddTargetResult(&model.TargetResult{
				Name:           name,
				Code:           model.ResultSkipped,
				SkippedFailure: wasFailure,
			})
			if wasFailure {
				result.OverallResult = model.ResultFailure
			}
			continue
		}

		exec, ok := s.executors[name]
		if !ok {
			return nil, model.NewInternalError("target %q has no registered executor", name)
		}

		items, err := exec.Execute(ctx, cfg, coop)
		if err != nil {
			var needs *NeedsChildren
			if asNeedsChildren(err, &needs) {
				return result, err
			}
			result.AddTargetResult(&model.TargetResult{
				Name:             name,
				Code:             model.ResultFailure,
				ExceptionMessage: err.Error(),
			})
			return result, nil
		}

		result.AddTargetResult(&model.TargetResult{
			Name:        name,
			Code:        model.ResultSuccess,
			OutputItems: items,
		})
	}
	return result, nil
}

func asNeedsChildren(err error, target **NeedsChildren) bool {
	if nc, ok := err.(*NeedsChildren); ok {
		*target = nc
		return true
	}
	return false
}

// expand resolves each requested target's DependsOn closure into a single
// execution order, depth-first, skipping targets already placed. A target
// naming an executor that does not exist is left for Run to reject so the
// caller gets an InternalError with the specific missing name.
func (s *Sequencer) expand(targets []string) ([]string, error) {
	var order []string
	seen := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		if seen[name] {
			return nil
		}
		if visiting[name] {
			return fmt.Errorf("target %q participates in a dependency cycle", name)
		}
		visiting[name] = true
		if exec, ok := s.executors[name]; ok {
			for _, dep := range exec.DependsOn() {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visiting[name] = false
		seen[name] = true
		order = append(order, name)
		return nil
	}

	for _, t := range targets {
		if err := visit(t); err != nil {
			return nil, err
		}
	}
	return order, nil
}
