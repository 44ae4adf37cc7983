// Package workflow chains pipeline actions into multi-step data flows with
// batched execution and optional recurring schedules.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semindex/errors"
)

// Action processes a batch of elements and returns the transformed batch.
type Action func(ctx context.Context, elements []any) ([]any, error)

// Task is one step of a workflow. Elements flow through Action in batches;
// Initialize runs before the first batch, Finalize after the last.
type Task struct {
	// Action transforms each batch of elements
	Action Action

	// Initialize runs once before the task processes elements
	Initialize func(ctx context.Context) error

	// Finalize runs once after the task processed all elements
	Finalize func(ctx context.Context) error

	// Unpack replaces single-element slice results with their element
	// (default true)
	Unpack bool

	// Batch is the maximum elements per Action call (default 100)
	Batch int
}

const defaultBatch = 100

// Workflow executes tasks in order, feeding each task's output to the next.
type Workflow struct {
	name   string
	tasks  []Task
	logger *slog.Logger
}

// New creates a workflow. At least one task with an action is required.
func New(name string, tasks []Task, logger *slog.Logger) (*Workflow, error) {
	if len(tasks) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("workflow %s has no tasks", name),
			"Workflow", "New", "validate tasks")
	}
	for i, task := range tasks {
		if task.Action == nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("workflow %s task %d has no action", name, i),
				"Workflow", "New", "validate tasks")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{name: name, tasks: tasks, logger: logger}, nil
}

// Name returns the workflow name.
func (w *Workflow) Name() string {
	return w.name
}

// Run pushes elements through every task in order and returns the final
// elements. A task error aborts the run; finalizers of tasks that already
// initialized still execute.
func (w *Workflow) Run(ctx context.Context, elements []any) ([]any, error) {
	for i := range w.tasks {
		task := &w.tasks[i]

		if task.Initialize != nil {
			if err := task.Initialize(ctx); err != nil {
				return nil, errors.Wrap(err, "Workflow", "Run",
					fmt.Sprintf("initialize task %d", i))
			}
		}

		processed, err := w.runTask(ctx, task, elements)

		if task.Finalize != nil {
			if ferr := task.Finalize(ctx); ferr != nil && err == nil {
				err = errors.Wrap(ferr, "Workflow", "Run",
					fmt.Sprintf("finalize task %d", i))
			}
		}
		if err != nil {
			return nil, err
		}
		elements = processed
	}
	return elements, nil
}

func (w *Workflow) runTask(ctx context.Context, task *Task, elements []any) ([]any, error) {
	batchSize := task.Batch
	if batchSize <= 0 {
		batchSize = defaultBatch
	}

	var output []any
	for start := 0; start < len(elements); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapTransient(err, "Workflow", "runTask", "check context")
		}

		end := min(start+batchSize, len(elements))
		batch, err := task.Action(ctx, elements[start:end])
		if err != nil {
			return nil, errors.Wrap(err, "Workflow", "runTask", "run action")
		}
		for _, result := range batch {
			output = append(output, unpack(task, result))
		}
	}
	return output, nil
}

// unpack flattens single-element slice results when the task requests it.
func unpack(task *Task, result any) any {
	if !task.Unpack {
		return result
	}
	if slice, ok := result.([]any); ok && len(slice) == 1 {
		return slice[0]
	}
	return result
}

// Schedule runs a workflow repeatedly on fixed elements.
type Schedule struct {
	// Every is the interval between runs
	Every time.Duration

	// Iterations bounds the number of runs; zero means run until the
	// context is canceled
	Iterations int

	// Elements is the fixed input of every run
	Elements []any
}

// RunSchedule executes the workflow per the schedule until iterations are
// exhausted or the context is canceled. Each run is tagged with an id for
// log correlation.
func (w *Workflow) RunSchedule(ctx context.Context, schedule Schedule) error {
	if schedule.Every <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("workflow %s schedule interval %v", w.name, schedule.Every),
			"Workflow", "RunSchedule", "validate interval")
	}

	logger := w.logger.With("workflow", w.name, "schedule", uuid.NewString())
	logger.Info("schedule started",
		"every", schedule.Every.String(),
		"iterations", schedule.Iterations)

	ticker := time.NewTicker(schedule.Every)
	defer ticker.Stop()

	for iteration := 1; ; iteration++ {
		if _, err := w.Run(ctx, schedule.Elements); err != nil {
			logger.Error("scheduled run failed", "iteration", iteration, "error", err)
		} else {
			logger.Debug("scheduled run complete", "iteration", iteration)
		}

		if schedule.Iterations > 0 && iteration >= schedule.Iterations {
			logger.Info("schedule complete", "iterations", iteration)
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Info("schedule stopped", "iterations", iteration)
			return nil
		case <-ticker.C:
		}
	}
}
