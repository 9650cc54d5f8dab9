// Package nodeexec is the seam between the scheduler/node machinery and
// "the runtime that invokes tasks" — spec.md §1 explicitly places task
// execution and the evaluation engine out of scope. This package only
// models the contract a node-side executor must satisfy to sequence
// targets and cooperate with the scheduler's core-rationing and nested
// build protocol; concrete tasks (compile, copy, message) live outside
// this repository's scope.
//
// Adapted from the teacher's pkg/build/interfaces.go (BuildStep /
// BuildOrchestrator) and pkg/build/build.go's BuildSteps sequencing loop,
// re-themed from "container build steps" to "project targets".
package nodeexec

import (
	"context"

	"github.com/buildforge/manager/pkg/model"
)

// TargetStatus mirrors BuildStepStatus from the teacher's BuildOrchestrator,
// renamed to the target vocabulary this package actually sequences.
type TargetStatus int

const (
	StatusPending TargetStatus = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

func (s TargetStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// TargetExecutor is the contract a target's task-execution runtime must
// satisfy. It is the external collaborator spec.md §1 calls out as
// "concrete built-in tasks ... and the runtime that invokes them" — this
// repository supplies the sequencing and cooperation machinery around it,
// not the implementation.
type TargetExecutor interface {
	// Name returns the target's declared name.
	Name() string
	// DependsOn returns the names of targets that must complete first.
	DependsOn() []string
	// Execute runs the target's tasks against cfg, returning the items it
	// produced. coop is used for Yield/RequestCores cooperation points
	// (spec.md §5).
	Execute(ctx context.Context, cfg *model.Configuration, coop Cooperation) ([]string, error)
}

// Cooperation is the set of cooperative-scheduling hooks a task may use
// while a target is executing (spec.md §5): yielding around a long tool
// invocation, and requesting/releasing extra execution cores.
type Cooperation interface {
	// Yield suspends the calling target until Reacquire-equivalent
	// conditions are met; the first core is implicit and this call never
	// blocks on core accounting by itself.
	Yield(ctx context.Context) error
	// RequestCores blocks until n additional cores beyond the implicit
	// first are granted from the session's core-grant ledger.
	RequestCores(ctx context.Context, n int) (int, error)
	// ReleaseCores returns k previously granted cores. Returning more
	// than granted is a contract violation (spec.md §5) and returns an
	// error rather than panicking, since it crosses a process boundary
	// for out-of-proc nodes.
	ReleaseCores(k int) error
}
