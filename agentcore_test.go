package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/civant/agentcore/collab"
	"github.com/civant/agentcore/config"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/router"
	"github.com/civant/agentcore/testutil"
	"github.com/civant/agentcore/types"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := config.DefaultConfig()
	// The Prometheus default registry rejects duplicate collectors across
	// test runs, so the shared collector stays off here.
	cfg.Metrics.Enabled = false

	core, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(core.Close)
	return core
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "loud"
	_, err := New(cfg)
	require.Error(t, err)
}

func TestCoreEndToEndDelegation(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	requester := testutil.NewStubAgent("analysis-lead", "analysis")
	delegate := testutil.NewHandlingStubAgent("extraction-specialist", "extraction")
	delegate.HandleFn = func(ctx context.Context, msg *types.Message) error {
		resp := core.Router().CreateMessage(types.MessageTypeResponse,
			delegate.ID(), msg.Sender,
			map[string]any{"result": "extracted"},
			router.WithConversationID(msg.ConversationID))
		return core.Router().Send(ctx, resp)
	}
	core.Registry().Register(ctx, requester)
	core.Registry().Register(ctx, delegate)

	res := core.Collab().DelegateTask(ctx, "analysis-lead", []string{"extraction"},
		map[string]any{"document": "report.pdf"}, collab.DelegateOptions{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "extraction-specialist", res.DelegateID)
	assert.Equal(t, "extracted", res.Result["result"])

	// the shared replay store saw the delegation
	var sawDelegation bool
	for _, e := range core.Replay().ByAgent("analysis-lead") {
		if e.Type == replay.TypeTaskDelegation && e.Success {
			sawDelegation = true
		}
	}
	assert.True(t, sawDelegation)
}

func TestCoreEndToEndWorkflow(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()

	worker := testutil.NewStubAgent("transform-specialist", "transform")
	worker.ProcessFn = func(_ context.Context, input any, _ types.ExecutionContext) (types.ProcessResult, error) {
		m := input.(map[string]any)
		return types.ProcessResult{
			Status: types.StatusSuccess,
			Data:   map[string]any{"echo": m["payload"]},
		}, nil
	}
	core.Registry().Register(ctx, worker)

	def := `
workflows:
  - id: echo-flow
    name: Echo flow
    steps:
      - id: only
        agent: transform-specialist
        input_mapping:
          payload: input.payload
        output_mapping:
          output.echo: data.echo
`
	n, err := core.Workflows().LoadDefinitions([]byte(def))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	res, err := core.Workflows().Execute(ctx, "echo-flow", map[string]any{"payload": "ping"})
	require.NoError(t, err)
	out, ok := res.Output.(map[string]any)
	require.True(t, ok, "workflow output should be the mapped output bag")
	assert.Equal(t, "ping", out["echo"])
}
