// =============================================================================
// 🧪 StubAgent - Agent 合约的测试模拟实现
// =============================================================================
// 用于测试的 Agent 模拟，支持固定响应、错误注入与调用记录。
//
// 使用方法:
//
//	a := testutil.NewStubAgent("valuation-specialist", "valuation")
//	a.ProcessFn = func(ctx context.Context, input any, ec types.ExecutionContext) (types.ProcessResult, error) {
//	    return types.ProcessResult{Status: types.StatusSuccess, Data: input}, nil
//	}
// =============================================================================
package testutil

import (
	"context"
	"sync"

	"github.com/civant/agentcore/types"
)

// StubAgent is a configurable types.Agent implementation for tests. The
// zero behavior validates everything and echoes input back as success.
type StubAgent struct {
	mu sync.Mutex

	AgentID   string
	AgentName string
	Caps      []string

	// ValidateFn overrides ValidateInput when set.
	ValidateFn func(ctx context.Context, input any) (types.ValidationResult, error)
	// ProcessFn overrides Process when set.
	ProcessFn func(ctx context.Context, input any, ec types.ExecutionContext) (types.ProcessResult, error)
	// HandleFn, when set, makes the stub implement direct message handling.
	HandleFn func(ctx context.Context, msg *types.Message) error

	// 调用记录
	processCalls []any
	handled      []*types.Message
}

// NewStubAgent creates a stub with the given identity and capabilities.
func NewStubAgent(id string, capabilities ...string) *StubAgent {
	return &StubAgent{AgentID: id, AgentName: id, Caps: capabilities}
}

func (a *StubAgent) ID() string   { return a.AgentID }
func (a *StubAgent) Name() string { return a.AgentName }

func (a *StubAgent) Capabilities() []string {
	return append([]string(nil), a.Caps...)
}

func (a *StubAgent) ValidateInput(ctx context.Context, input any) (types.ValidationResult, error) {
	if a.ValidateFn != nil {
		return a.ValidateFn(ctx, input)
	}
	return types.ValidationResult{IsValid: true, ValidatedData: input}, nil
}

func (a *StubAgent) Process(ctx context.Context, input any, ec types.ExecutionContext) (types.ProcessResult, error) {
	a.mu.Lock()
	a.processCalls = append(a.processCalls, input)
	a.mu.Unlock()

	if a.ProcessFn != nil {
		return a.ProcessFn(ctx, input, ec)
	}
	return types.ProcessResult{Status: types.StatusSuccess, Data: input}, nil
}

// ProcessCalls returns a copy of the inputs Process has been called with.
func (a *StubAgent) ProcessCalls() []any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]any(nil), a.processCalls...)
}

// HandledMessages returns a copy of the messages delivered directly.
func (a *StubAgent) HandledMessages() []*types.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*types.Message(nil), a.handled...)
}

// HandlingStubAgent is a StubAgent that also implements direct delivery.
// Kept as a separate type so plain stubs do not satisfy
// types.MessageHandler by accident.
type HandlingStubAgent struct {
	StubAgent
}

// NewHandlingStubAgent creates a stub that records direct deliveries.
func NewHandlingStubAgent(id string, capabilities ...string) *HandlingStubAgent {
	return &HandlingStubAgent{StubAgent: StubAgent{AgentID: id, AgentName: id, Caps: capabilities}}
}

func (a *HandlingStubAgent) HandleMessage(ctx context.Context, msg *types.Message) error {
	a.mu.Lock()
	a.handled = append(a.handled, msg)
	a.mu.Unlock()

	if a.HandleFn != nil {
		return a.HandleFn(ctx, msg)
	}
	return nil
}
