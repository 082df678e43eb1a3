package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civant/agentcore/agent/registry"
	"github.com/civant/agentcore/audit"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/testutil"
	"github.com/civant/agentcore/types"
)

func newTestEngine(t *testing.T, agents ...types.Agent) *Engine {
	t.Helper()
	reg := registry.New(audit.Nop{}, nil)
	for _, a := range agents {
		reg.Register(context.Background(), a)
	}
	return NewEngine(DefaultConfig(), reg, nil, audit.Nop{}, nil, nil)
}

// echoAgent returns its mapped input under data so output mappings can
// route it onward.
func echoAgent(id string) *testutil.StubAgent {
	a := testutil.NewStubAgent(id)
	a.ProcessFn = func(_ context.Context, input any, _ types.ExecutionContext) (types.ProcessResult, error) {
		return types.ProcessResult{Status: types.StatusSuccess, Data: input}, nil
	}
	return a
}

func failingAgent(id string) *testutil.StubAgent {
	a := testutil.NewStubAgent(id)
	a.ProcessFn = func(_ context.Context, _ any, _ types.ExecutionContext) (types.ProcessResult, error) {
		return types.ProcessResult{}, errors.New("worker exploded")
	}
	return a
}

func TestExecute_MappingChain(t *testing.T) {
	t.Parallel()

	double := testutil.NewStubAgent("doubler")
	double.ProcessFn = func(_ context.Context, input any, _ types.ExecutionContext) (types.ProcessResult, error) {
		m := input.(map[string]any)
		v := m["value"].(int)
		return types.ProcessResult{Status: types.StatusSuccess, Data: map[string]any{"value": v * 2}}, nil
	}

	e := newTestEngine(t, double)
	require.NoError(t, e.Register(Definition{
		ID:      "double-twice",
		Enabled: true,
		Steps: []Step{
			{
				ID:            "first",
				AgentID:       "doubler",
				InputMapping:  map[string]string{"value": "input.value"},
				OutputMapping: map[string]string{"intermediate": "data.value"},
			},
			{
				ID:            "second",
				AgentID:       "doubler",
				InputMapping:  map[string]string{"value": "intermediate"},
				OutputMapping: map[string]string{"output.value": "data.value"},
			},
		},
	}))

	res, err := e.Execute(context.Background(), "double-twice", map[string]any{"value": 3})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Output)
	assert.Equal(t, 12, res.Output.(map[string]any)["value"])
	assert.Len(t, res.StepResults, 2)
	assert.NotEmpty(t, res.ExecutionID)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))
}

func TestExecute_ConditionSkipPreservesDataChain(t *testing.T) {
	t.Parallel()

	a1 := echoAgent("step1-agent")
	a2 := echoAgent("step2-agent")
	a3 := echoAgent("step3-agent")

	e := newTestEngine(t, a1, a2, a3)
	require.NoError(t, e.Register(Definition{
		ID:      "gated",
		Enabled: true,
		Steps: []Step{
			{
				ID:            "one",
				AgentID:       "step1-agent",
				InputMapping:  map[string]string{"payload": "input.payload"},
				OutputMapping: map[string]string{"fromOne": "data.payload"},
			},
			{
				ID:        "two",
				AgentID:   "step2-agent",
				Condition: "input.runStepTwo", // absent -> skip
			},
			{
				ID:            "three",
				AgentID:       "step3-agent",
				InputMapping:  map[string]string{"carried": "fromOne"},
				OutputMapping: map[string]string{"output.carried": "data.carried"},
			},
		},
	}))

	res, err := e.Execute(context.Background(), "gated", map[string]any{"payload": "parcel-9"})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, a2.ProcessCalls(), "skipped step's agent is never invoked")
	require.True(t, res.StepResults["two"].Skipped)

	// step 3 still receives step 1's mapped output
	require.Len(t, a3.ProcessCalls(), 1)
	got := a3.ProcessCalls()[0].(map[string]any)
	assert.Equal(t, "parcel-9", got["carried"])
	assert.Equal(t, "parcel-9", res.Output.(map[string]any)["carried"])
}

func TestExecute_ConditionTruthyRuns(t *testing.T) {
	t.Parallel()

	a := echoAgent("gated-agent")
	e := newTestEngine(t, a)
	require.NoError(t, e.Register(Definition{
		ID:      "gated",
		Enabled: true,
		Steps:   []Step{{ID: "only", AgentID: "gated-agent", Condition: "input.go"}},
	}))

	res, err := e.Execute(context.Background(), "gated", map[string]any{"go": true})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, a.ProcessCalls(), 1)
}

func TestExecute_ContinueOnErrorPolicies(t *testing.T) {
	t.Parallel()

	makeDef := func(continueOnError bool) Definition {
		return Definition{
			ID:      fmt.Sprintf("policy-%v", continueOnError),
			Enabled: true,
			Steps: []Step{
				{ID: "ok", AgentID: "fine"},
				{ID: "bad", AgentID: "broken", ContinueOnError: continueOnError},
				{ID: "after", AgentID: "fine2"},
			},
		}
	}

	t.Run("abort on false", func(t *testing.T) {
		fine, fine2 := echoAgent("fine"), echoAgent("fine2")
		e := newTestEngine(t, fine, failingAgent("broken"), fine2)
		require.NoError(t, e.Register(makeDef(false)))

		res, err := e.Execute(context.Background(), "policy-false", nil)
		require.NoError(t, err)

		assert.Equal(t, StatusError, res.Status)
		assert.Empty(t, fine2.ProcessCalls(), "no subsequent step executes")
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "bad", res.Errors[0].StepID)
		_, ran := res.StepResults["after"]
		assert.False(t, ran)
	})

	t.Run("degrade on true", func(t *testing.T) {
		fine, fine2 := echoAgent("fine"), echoAgent("fine2")
		e := newTestEngine(t, fine, failingAgent("broken"), fine2)
		require.NoError(t, e.Register(makeDef(true)))

		res, err := e.Execute(context.Background(), "policy-true", nil)
		require.NoError(t, err)

		assert.Equal(t, StatusPartialSuccess, res.Status, "never upgraded back to success")
		assert.Len(t, fine2.ProcessCalls(), 1, "subsequent steps still run")
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "bad", res.Errors[0].StepID)
	})
}

func TestExecute_PanicTreatedAsStepError(t *testing.T) {
	t.Parallel()

	angry := testutil.NewStubAgent("angry")
	angry.ProcessFn = func(_ context.Context, _ any, _ types.ExecutionContext) (types.ProcessResult, error) {
		panic("unexpected nil parcel")
	}

	e := newTestEngine(t, angry)
	require.NoError(t, e.Register(Definition{
		ID:      "panicky",
		Enabled: true,
		Steps:   []Step{{ID: "boom", AgentID: "angry"}},
	}))

	res, err := e.Execute(context.Background(), "panicky", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.StepResults["boom"].Error, "panicked")
}

func TestExecute_CriticalValidationShortCircuits(t *testing.T) {
	t.Parallel()

	strict := testutil.NewStubAgent("strict")
	strict.ValidateFn = func(_ context.Context, _ any) (types.ValidationResult, error) {
		return types.ValidationResult{
			IsValid: true, // critical overrides the agent's own claim
			Issues:  []types.Issue{{Field: "parcel_id", Type: "missing", Severity: types.SeverityCritical}},
		}, nil
	}

	e := newTestEngine(t, strict)
	require.NoError(t, e.Register(Definition{
		ID:      "validated",
		Enabled: true,
		Steps:   []Step{{ID: "check", AgentID: "strict"}},
	}))

	res, err := e.Execute(context.Background(), "validated", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, strict.ProcessCalls(), "no partial side effects after a critical issue")
	require.NotNil(t, res.StepResults["check"].Result)
	assert.Equal(t, types.StatusError, res.StepResults["check"].Result.Status)
}

func TestExecute_ValidatedDataReplacesInput(t *testing.T) {
	t.Parallel()

	normalizer := testutil.NewStubAgent("normalizer")
	normalizer.ValidateFn = func(_ context.Context, _ any) (types.ValidationResult, error) {
		return types.ValidationResult{IsValid: true, ValidatedData: map[string]any{"normalized": true}}, nil
	}

	e := newTestEngine(t, normalizer)
	require.NoError(t, e.Register(Definition{
		ID:      "normalizing",
		Enabled: true,
		Steps:   []Step{{ID: "n", AgentID: "normalizer"}},
	}))

	_, err := e.Execute(context.Background(), "normalizing", map[string]any{"raw": 1})
	require.NoError(t, err)

	calls := normalizer.ProcessCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{"normalized": true}, calls[0])
}

func TestExecute_UnknownAndDisabled(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	_, err := e.Execute(context.Background(), "ghost", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkflowNotFound, types.GetErrorCode(err))

	require.NoError(t, e.Register(Definition{
		ID:      "off",
		Enabled: false,
		Steps:   []Step{{ID: "s", AgentID: "a"}},
	}))
	_, err = e.Execute(context.Background(), "off", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrWorkflowDisabled, types.GetErrorCode(err))
}

func TestExecute_UnregisteredStepAgent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	require.NoError(t, e.Register(Definition{
		ID:      "orphan",
		Enabled: true,
		Steps:   []Step{{ID: "s", AgentID: "nobody"}},
	}))

	res, err := e.Execute(context.Background(), "orphan", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.StepResults["s"].Error, "not registered")
}

func TestExecute_CanceledContext(t *testing.T) {
	t.Parallel()

	a := echoAgent("a")
	e := newTestEngine(t, a)
	require.NoError(t, e.Register(Definition{
		ID:      "cancelable",
		Enabled: true,
		Steps:   []Step{{ID: "s", AgentID: "a"}},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Execute(ctx, "cancelable", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
	assert.Empty(t, a.ProcessCalls())
}

func TestEngine_HistoryCapped(t *testing.T) {
	t.Parallel()

	a := echoAgent("a")
	reg := registry.New(audit.Nop{}, nil)
	reg.Register(context.Background(), a)
	e := NewEngine(Config{HistorySize: 2}, reg, nil, audit.Nop{}, nil, nil)

	require.NoError(t, e.Register(Definition{
		ID: "w", Enabled: true, Steps: []Step{{ID: "s", AgentID: "a"}},
	}))

	var execIDs []string
	for i := 0; i < 3; i++ {
		res, err := e.Execute(context.Background(), "w", nil)
		require.NoError(t, err)
		execIDs = append(execIDs, res.ExecutionID)
	}

	hist := e.History()
	require.Len(t, hist, 2, "oldest entries pruned first")
	assert.Equal(t, execIDs[1], hist[0].ExecutionID)
	assert.Equal(t, execIDs[2], hist[1].ExecutionID)
}

func TestEngine_LoadDefinitions(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	n, err := e.LoadDefinitions([]byte(`
workflows:
  - id: one
    steps: [{id: s, agent: a}]
  - id: two
    steps: [{id: s, agent: a}]
`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"one", "two"}, e.Definitions())
	assert.NotNil(t, e.Definition("one"))
	assert.Nil(t, e.Definition("ghost"))
}

func TestExecute_RecordsStepExperiences(t *testing.T) {
	t.Parallel()

	reg := registry.New(audit.Nop{}, nil)
	reg.Register(context.Background(), echoAgent("fine"))
	reg.Register(context.Background(), failingAgent("broken"))
	store := replay.New(replay.DefaultConfig(), nil)
	t.Cleanup(store.Close)
	e := NewEngine(DefaultConfig(), reg, store, audit.Nop{}, nil, nil)

	require.NoError(t, e.Register(Definition{
		ID: "w", Enabled: true, Steps: []Step{
			{ID: "ok", AgentID: "fine"},
			{ID: "bad", AgentID: "broken", ContinueOnError: true},
		},
	}))

	_, err := e.Execute(context.Background(), "w", nil)
	require.NoError(t, err)

	good := store.ByAgent("fine")
	require.Len(t, good, 1)
	assert.Equal(t, replay.TypeWorkflowStep, good[0].Type)
	assert.True(t, good[0].Success)

	bad := store.ByAgent("broken")
	require.Len(t, bad, 1)
	assert.False(t, bad[0].Success)
	assert.Contains(t, bad[0].Metadata["error"], "worker exploded")

	// a second run of the same workflow merges instead of growing the store
	_, err = e.Execute(context.Background(), "w", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 2, store.ByAgent("fine")[0].Occurrences)
}

func TestExecute_FailedStepStillSetsLastStepResult(t *testing.T) {
	t.Parallel()

	after := echoAgent("after")
	e := newTestEngine(t, failingAgent("broken"), after)

	require.NoError(t, e.Register(Definition{
		ID: "w", Enabled: true, Steps: []Step{
			{ID: "bad", AgentID: "broken", ContinueOnError: true},
			{ID: "observe", AgentID: "after"},
		},
	}))

	res, err := e.Execute(context.Background(), "w", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, res.Status)

	// the follow-up step's full-bag input carries the failed step's raw
	// result, while the failed step mapped nothing into the bag
	require.Len(t, after.ProcessCalls(), 1)
	bag, ok := after.ProcessCalls()[0].(map[string]any)
	require.True(t, ok)
	last, ok := bag["lastStepResult"].(map[string]any)
	require.True(t, ok, "failed step must still publish lastStepResult")
	assert.Equal(t, string(types.StatusError), last["status"])
}
