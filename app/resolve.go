package app

import (
	"context"
	"fmt"

	"github.com/c360/semindex/config"
	"github.com/c360/semindex/errors"
	"github.com/c360/semindex/workflow"
)

// resolvedAction is one callable workflow step. mutation marks the built-in
// index-mutating actions, which buffer through Add and flush in a finalizer.
type resolvedAction struct {
	run      func(ctx context.Context, element any, unpack bool) (any, error)
	mutation string
}

// resolveTask turns a declarative task descriptor into an executable task.
// Resolution happens once, at workflow construction; action names reference
// either a built-in mutation ("index", "upsert") or a pipeline.
func (app *Application) resolveTask(cfg config.TaskConfig) (workflow.Task, error) {
	names, single, err := actionNames(cfg.Action)
	if err != nil {
		return workflow.Task{}, err
	}

	actions := make([]resolvedAction, len(names))
	mutation := ""
	for i, name := range names {
		action, err := app.resolveAction(name)
		if err != nil {
			return workflow.Task{}, err
		}
		actions[i] = action
		if action.mutation != "" {
			mutation = action.mutation
		}
	}

	// Mutations receive whole elements, never unpacked argument lists
	unpack := cfg.Unpack == nil || *cfg.Unpack
	if mutation != "" {
		unpack = false
	}

	task := workflow.Task{
		Action: app.taskAction(actions, single, unpack),
		Unpack: unpack,
		Batch:  cfg.Batch,
	}

	if cfg.Initialize != "" {
		task.Initialize, err = app.resolveHook(cfg.Initialize)
		if err != nil {
			return workflow.Task{}, err
		}
	}

	// Mutation tasks always flush the staged buffer when they finish,
	// regardless of any configured finalize
	finalize := cfg.Finalize
	if mutation != "" {
		finalize = mutation
	}
	if finalize != "" {
		task.Finalize, err = app.resolveHook(finalize)
		if err != nil {
			return workflow.Task{}, err
		}
	}

	return task, nil
}

// actionNames flattens the action field into a name list, remembering whether
// the input was a single name.
func actionNames(action any) ([]string, bool, error) {
	switch v := action.(type) {
	case string:
		return []string{v}, true, nil
	case []string:
		return v, false, nil
	case []any:
		names := make([]string, len(v))
		for i, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, false, errors.WrapInvalid(
					fmt.Errorf("action %d is %T, want string", i, item),
					"Application", "resolveTask", "read action names")
			}
			names[i] = name
		}
		return names, false, nil
	default:
		return nil, false, errors.WrapInvalid(
			fmt.Errorf("action is %T, want string or string list", action),
			"Application", "resolveTask", "read action names")
	}
}

// resolveAction maps an action name to a callable. The built-in "index" and
// "upsert" names buffer elements through Add; everything else resolves to a
// configured pipeline, falling back to anonymous construction for built-in
// pipeline types.
func (app *Application) resolveAction(name string) (resolvedAction, error) {
	switch name {
	case "index", "upsert":
		return resolvedAction{
			mutation: name,
			run: func(ctx context.Context, element any, _ bool) (any, error) {
				staged, err := app.Add(ctx, []any{element})
				if err != nil {
					return nil, err
				}
				return staged[0], nil
			},
		}, nil
	default:
		p, err := app.pipelineInstance(name)
		if err != nil {
			return resolvedAction{}, err
		}
		return resolvedAction{
			run: func(ctx context.Context, element any, unpack bool) (any, error) {
				if args, ok := element.([]any); ok && unpack {
					return p.Run(ctx, args...)
				}
				return p.Run(ctx, element)
			},
		}, nil
	}
}

// taskAction adapts resolved actions to the workflow's batch action shape.
// A single action maps elements directly; an action list packs each action's
// output per element.
func (app *Application) taskAction(actions []resolvedAction, single, unpack bool) workflow.Action {
	return func(ctx context.Context, elements []any) ([]any, error) {
		out := make([]any, len(elements))
		for i, element := range elements {
			if single {
				result, err := actions[0].run(ctx, element, unpack)
				if err != nil {
					return nil, err
				}
				out[i] = result
				continue
			}

			packed := make([]any, len(actions))
			for j, action := range actions {
				result, err := action.run(ctx, element, unpack)
				if err != nil {
					return nil, err
				}
				packed[j] = result
			}
			out[i] = packed
		}
		return out, nil
	}
}

// resolveHook maps an initialize/finalize name to a callable. The built-in
// mutation names flush the gateway buffer; pipeline names run without
// arguments.
func (app *Application) resolveHook(name string) (func(ctx context.Context) error, error) {
	switch name {
	case "index":
		return app.Index, nil
	case "upsert":
		return app.Upsert, nil
	default:
		p, err := app.pipelineInstance(name)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			_, err := p.Run(ctx)
			return err
		}, nil
	}
}
