package workflow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upperAction(ctx context.Context, elements []any) ([]any, error) {
	out := make([]any, len(elements))
	for i, element := range elements {
		out[i] = strings.ToUpper(element.(string))
	}
	return out, nil
}

func TestWorkflow_Run(t *testing.T) {
	workflow, err := New("upper", []Task{{Action: upperAction, Unpack: true}}, nil)
	require.NoError(t, err)

	results, err := workflow.Run(context.Background(), []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B"}, results)
}

func TestWorkflow_ChainsTasks(t *testing.T) {
	suffix := func(ctx context.Context, elements []any) ([]any, error) {
		out := make([]any, len(elements))
		for i, element := range elements {
			out[i] = element.(string) + "!"
		}
		return out, nil
	}

	workflow, err := New("chain", []Task{
		{Action: upperAction, Unpack: true},
		{Action: suffix, Unpack: true},
	}, nil)
	require.NoError(t, err)

	results, err := workflow.Run(context.Background(), []any{"hi"})
	require.NoError(t, err)
	assert.Equal(t, []any{"HI!"}, results)
}

func TestWorkflow_Batching(t *testing.T) {
	var calls atomic.Int32
	counting := func(ctx context.Context, elements []any) ([]any, error) {
		calls.Add(1)
		return elements, nil
	}

	workflow, err := New("batched", []Task{{Action: counting, Batch: 2, Unpack: true}}, nil)
	require.NoError(t, err)

	elements := []any{"a", "b", "c", "d", "e"}
	results, err := workflow.Run(context.Background(), elements)
	require.NoError(t, err)

	assert.Equal(t, elements, results)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkflow_Unpack(t *testing.T) {
	wrap := func(ctx context.Context, elements []any) ([]any, error) {
		out := make([]any, len(elements))
		for i, element := range elements {
			out[i] = []any{element}
		}
		return out, nil
	}

	unpacked, err := New("unpacked", []Task{{Action: wrap, Unpack: true}}, nil)
	require.NoError(t, err)
	results, err := unpacked.Run(context.Background(), []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, results)

	packed, err := New("packed", []Task{{Action: wrap}}, nil)
	require.NoError(t, err)
	results, err = packed.Run(context.Background(), []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"x"}}, results)
}

func TestWorkflow_InitializeFinalize(t *testing.T) {
	var order []string
	workflow, err := New("hooks", []Task{{
		Action: func(ctx context.Context, elements []any) ([]any, error) {
			order = append(order, "action")
			return elements, nil
		},
		Initialize: func(ctx context.Context) error {
			order = append(order, "initialize")
			return nil
		},
		Finalize: func(ctx context.Context) error {
			order = append(order, "finalize")
			return nil
		},
	}}, nil)
	require.NoError(t, err)

	_, err = workflow.Run(context.Background(), []any{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"initialize", "action", "finalize"}, order)
}

func TestWorkflow_FinalizeRunsAfterActionError(t *testing.T) {
	finalized := false
	actionErr := errors.New("action failed")

	workflow, err := New("failing", []Task{{
		Action: func(ctx context.Context, elements []any) ([]any, error) {
			return nil, actionErr
		},
		Finalize: func(ctx context.Context) error {
			finalized = true
			return nil
		},
	}}, nil)
	require.NoError(t, err)

	_, err = workflow.Run(context.Background(), []any{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, actionErr)
	assert.True(t, finalized)
}

func TestWorkflow_ValidatesTasks(t *testing.T) {
	_, err := New("empty", nil, nil)
	assert.Error(t, err)

	_, err = New("nilaction", []Task{{}}, nil)
	assert.Error(t, err)
}

func TestWorkflow_RunScheduleIterations(t *testing.T) {
	var runs atomic.Int32
	workflow, err := New("scheduled", []Task{{
		Action: func(ctx context.Context, elements []any) ([]any, error) {
			runs.Add(1)
			return elements, nil
		},
	}}, nil)
	require.NoError(t, err)

	err = workflow.RunSchedule(context.Background(), Schedule{
		Every:      time.Millisecond,
		Iterations: 3,
		Elements:   []any{"x"},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), runs.Load())
}

func TestWorkflow_RunScheduleCancel(t *testing.T) {
	var runs atomic.Int32
	workflow, err := New("canceled", []Task{{
		Action: func(ctx context.Context, elements []any) ([]any, error) {
			runs.Add(1)
			return elements, nil
		},
	}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = workflow.RunSchedule(ctx, Schedule{Every: time.Hour, Elements: []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), runs.Load())
}

func TestWorkflow_RunScheduleValidatesInterval(t *testing.T) {
	workflow, err := New("nointerval", []Task{{
		Action: func(ctx context.Context, elements []any) ([]any, error) {
			return elements, nil
		},
	}}, nil)
	require.NoError(t, err)

	err = workflow.RunSchedule(context.Background(), Schedule{})
	assert.Error(t, err)
}
