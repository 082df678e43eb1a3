// Package workflow executes ordered step sequences against registered
// agents. Steps are conditionally gated by dot-path conditions, exchange
// data through declarative input/output mappings over a workflow-scoped
// data bag, and degrade or abort on failure according to each step's
// continue-on-error policy. Every run produces an auditable result record
// appended to a bounded history.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civant/agentcore/agent/registry"
	"github.com/civant/agentcore/audit"
	"github.com/civant/agentcore/internal/metrics"
	"github.com/civant/agentcore/internal/paths"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/types"
)

// Status classifies a workflow run.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in-progress"
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial-success"
	StatusError          Status = "error"
	StatusCanceled       Status = "canceled"
)

// StepError tags a run error with the offending step.
type StepError struct {
	StepID  string `json:"step_id"`
	Message string `json:"message"`
}

// StepResult records one step's outcome inside a run.
type StepResult struct {
	StepID    string               `json:"step_id"`
	AgentID   string               `json:"agent_id"`
	Skipped   bool                 `json:"skipped"`
	Result    *types.ProcessResult `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
}

// Result is the frozen record of one workflow execution.
type Result struct {
	ExecutionID  string                 `json:"execution_id"`
	DefinitionID string                 `json:"definition_id"`
	Status       Status                 `json:"status"`
	StepResults  map[string]*StepResult `json:"step_results"`
	Output       any                    `json:"output,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  time.Time              `json:"completed_at"`
	Errors       []StepError            `json:"errors,omitempty"`
}

// Config holds engine tunables.
type Config struct {
	// HistorySize caps the retained run history; oldest entries are pruned
	// first. 0 means the default.
	HistorySize int `yaml:"history_size"`

	// AccessLevel is stamped into every ExecutionContext.
	AccessLevel string `yaml:"access_level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{HistorySize: 100, AccessLevel: "standard"}
}

// Engine registers workflow definitions and executes them.
type Engine struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	history []*Result

	registry *registry.Registry
	store    *replay.Store
	recorder audit.Recorder
	metrics  *metrics.Collector

	historySize int
	accessLevel string
	logger      *zap.Logger
}

// NewEngine creates an engine backed by the given registry. The store may
// be nil; with one, every executed step is recorded as an experience.
func NewEngine(config Config, reg *registry.Registry, store *replay.Store, recorder audit.Recorder, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	if config.AccessLevel == "" {
		config.AccessLevel = DefaultConfig().AccessLevel
	}
	return &Engine{
		defs:        make(map[string]*Definition),
		registry:    reg,
		store:       store,
		recorder:    recorder,
		metrics:     collector,
		historySize: config.HistorySize,
		accessLevel: config.AccessLevel,
		logger:      logger.With(zap.String("component", "workflow_engine")),
	}
}

// Register validates and stores a definition. Re-registering an id
// replaces the prior definition and logs a warning.
func (e *Engine) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.defs[def.ID]; exists {
		e.logger.Warn("workflow re-registered, replacing prior definition",
			zap.String("workflow_id", def.ID))
	}
	e.defs[def.ID] = def.clone()
	e.mu.Unlock()

	e.logger.Info("workflow registered",
		zap.String("workflow_id", def.ID),
		zap.Int("steps", len(def.Steps)),
	)
	return nil
}

// LoadDefinitions parses YAML and registers every definition it contains.
func (e *Engine) LoadDefinitions(data []byte) (int, error) {
	defs, err := ParseDefinitions(data)
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := e.Register(def); err != nil {
			return 0, err
		}
	}
	return len(defs), nil
}

// Definition returns a copy of a registered definition, or nil.
func (e *Engine) Definition(id string) *Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if def, ok := e.defs[id]; ok {
		return def.clone()
	}
	return nil
}

// Definitions returns the ids of all registered workflows.
func (e *Engine) Definitions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.defs))
	for id := range e.defs {
		ids = append(ids, id)
	}
	return ids
}

// History returns a copy of the retained run records, oldest first.
func (e *Engine) History() []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Result, len(e.history))
	for i, r := range e.history {
		out[i] = *r
	}
	return out
}

// Execute runs a registered workflow against input. The returned Result
// is also appended to the engine's history; the non-nil error return is
// reserved for preconditions (unknown or disabled workflow), run-level
// failures are reported through Result.Status.
func (e *Engine) Execute(ctx context.Context, definitionID string, input any) (*Result, error) {
	e.mu.RLock()
	def, ok := e.defs[definitionID]
	if ok {
		def = def.clone()
	}
	e.mu.RUnlock()

	if !ok {
		return nil, types.NewError(types.ErrWorkflowNotFound, fmt.Sprintf("workflow %s not registered", definitionID))
	}
	if !def.Enabled {
		return nil, types.NewError(types.ErrWorkflowDisabled, fmt.Sprintf("workflow %s is disabled", definitionID))
	}

	res := &Result{
		ExecutionID:  uuid.New().String(),
		DefinitionID: def.ID,
		Status:       StatusInProgress,
		StepResults:  make(map[string]*StepResult, len(def.Steps)),
		StartedAt:    time.Now(),
	}

	bag := map[string]any{
		"input":      input,
		"parameters": def.DefaultParameters,
	}

	e.logger.Info("workflow execution started",
		zap.String("workflow_id", def.ID),
		zap.String("execution_id", res.ExecutionID),
	)

	for _, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			res.Status = StatusCanceled
			res.Errors = append(res.Errors, StepError{StepID: step.ID, Message: err.Error()})
			break
		}

		if step.Condition != "" {
			v, found := paths.Get(bag, step.Condition)
			if !found || !paths.Truthy(v) {
				e.logger.Debug("step skipped by condition",
					zap.String("execution_id", res.ExecutionID),
					zap.String("step_id", step.ID),
					zap.String("condition", step.Condition),
				)
				res.StepResults[step.ID] = &StepResult{StepID: step.ID, AgentID: step.AgentID, Skipped: true}
				continue
			}
		}

		sr := e.runStep(ctx, def, step, bag, res.ExecutionID)
		res.StepResults[step.ID] = sr
		e.metrics.RecordWorkflowStep(def.ID, step.ID, sr.Duration)
		e.recordStepExperience(def, step, sr, res.ExecutionID)

		// the raw step result is exposed downstream even when the step
		// failed; only the output mapping is withheld on failure. Steps
		// that died without a result still publish their error.
		resultMap := processResultMap(sr.Result)
		if sr.Error != "" && sr.Result == nil {
			resultMap["status"] = string(types.StatusError)
			resultMap["explanation"] = sr.Error
		}
		bag["lastStepResult"] = resultMap

		if sr.Error != "" {
			res.Errors = append(res.Errors, StepError{StepID: step.ID, Message: sr.Error})
			audit.Fire(ctx, e.recorder, e.logger, audit.Event{
				Type:    audit.EventStepFailed,
				Actor:   step.AgentID,
				Subject: def.ID,
				Details: map[string]any{"execution_id": res.ExecutionID, "step_id": step.ID, "error": sr.Error},
			})
			if !step.ContinueOnError {
				res.Status = StatusError
				break
			}
			// degraded, never upgraded back to success
			res.Status = StatusPartialSuccess
			continue
		}

		audit.Fire(ctx, e.recorder, e.logger, audit.Event{
			Type:    audit.EventStepCompleted,
			Actor:   step.AgentID,
			Subject: def.ID,
			Details: map[string]any{"execution_id": res.ExecutionID, "step_id": step.ID},
		})

		// copy mapped outputs back into the bag
		for target, source := range step.OutputMapping {
			v, found := paths.Get(resultMap, source)
			if !found {
				continue
			}
			if err := paths.Set(bag, target, v); err != nil {
				e.logger.Warn("output mapping failed",
					zap.String("step_id", step.ID),
					zap.String("target", target),
					zap.Error(err),
				)
			}
		}
	}

	if res.Status == StatusInProgress {
		res.Status = StatusSuccess
	}
	res.Output, _ = paths.Get(bag, "output")
	res.CompletedAt = time.Now()

	e.appendHistory(res)
	e.metrics.RecordWorkflowRun(def.ID, string(res.Status))
	audit.Fire(ctx, e.recorder, e.logger, audit.Event{
		Type:    audit.EventWorkflowCompleted,
		Subject: def.ID,
		Details: map[string]any{
			"execution_id": res.ExecutionID,
			"status":       res.Status,
			"steps":        len(res.StepResults),
			"errors":       len(res.Errors),
		},
	})
	e.logger.Info("workflow execution completed",
		zap.String("workflow_id", def.ID),
		zap.String("execution_id", res.ExecutionID),
		zap.String("status", string(res.Status)),
	)
	return res, nil
}

// runStep resolves the step's agent and invokes it through the shared
// execution contract. A panic inside the agent is treated identically to
// a worker-reported error.
func (e *Engine) runStep(ctx context.Context, def *Definition, step Step, bag map[string]any, executionID string) *StepResult {
	sr := &StepResult{StepID: step.ID, AgentID: step.AgentID, StartedAt: time.Now()}
	defer func() { sr.Duration = time.Since(sr.StartedAt) }()

	var a types.Agent
	if e.registry != nil {
		a = e.registry.Get(step.AgentID)
	}
	if a == nil {
		sr.Error = fmt.Sprintf("agent %q not registered", step.AgentID)
		return sr
	}

	input := buildStepInput(step, bag)

	ec := types.ExecutionContext{
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		AccessLevel: e.accessLevel,
		Parameters:  def.DefaultParameters,
		Logger: e.logger.With(
			zap.String("execution_id", executionID),
			zap.String("step_id", step.ID),
			zap.String("agent_id", step.AgentID),
		),
	}

	result, err := invokeAgent(ctx, a, input, ec)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	sr.Result = result
	if result.Status == types.StatusError || result.Status == types.StatusBlockedByCompliance {
		sr.Error = result.Explanation
		if sr.Error == "" {
			sr.Error = fmt.Sprintf("step %s reported status %s", step.ID, result.Status)
		}
	}
	return sr
}

// recordStepExperience writes one executed step's outcome to the replay
// store. Repeated runs of the same step merge by the store's dedup rules.
func (e *Engine) recordStepExperience(def *Definition, step Step, sr *StepResult, executionID string) {
	if e.store == nil {
		return
	}
	success := sr.Error == ""
	priority := 0.3
	md := map[string]any{"execution_id": executionID}
	if !success {
		priority = 0.7
		md["error"] = sr.Error
	}
	e.store.Add(replay.Experience{
		AgentID:  step.AgentID,
		Type:     replay.TypeWorkflowStep,
		State:    map[string]any{"workflow": def.ID, "step": step.ID},
		Action:   map[string]any{"execute": step.AgentID},
		Result:   map[string]any{"success": success},
		Priority: priority,
		Success:  success,
		Metadata: md,
	})
	e.metrics.RecordExperience(replay.TypeWorkflowStep, success)
}

// buildStepInput materializes the agent input from the input-mapping. An
// empty mapping hands the step a shallow copy of the whole data bag.
func buildStepInput(step Step, bag map[string]any) any {
	if len(step.InputMapping) == 0 {
		cp := make(map[string]any, len(bag))
		for k, v := range bag {
			cp[k] = v
		}
		return cp
	}

	input := make(map[string]any, len(step.InputMapping))
	for target, source := range step.InputMapping {
		v, found := paths.Get(bag, source)
		if !found {
			continue
		}
		// target paths never fail on a fresh map
		_ = paths.Set(input, target, v)
	}
	return input
}

// invokeAgent is the execution contract shared with direct agent calls:
// validate, short-circuit on critical issues, process, attach timing.
func invokeAgent(ctx context.Context, a types.Agent, input any, ec types.ExecutionContext) (result *types.ProcessResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("agent %s panicked: %v", a.ID(), rec)
		}
	}()

	validation, err := a.ValidateInput(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	if validation.HasCritical() || !validation.IsValid {
		return &types.ProcessResult{
			Status:      types.StatusError,
			Issues:      validation.Issues,
			Explanation: "input validation failed",
		}, nil
	}
	if validation.ValidatedData != nil {
		input = validation.ValidatedData
	}

	start := time.Now()
	out, err := a.Process(ctx, input, ec)
	if err != nil {
		return nil, err
	}
	if out.Metrics == nil {
		out.Metrics = make(map[string]any, 2)
	}
	out.Metrics["duration_ms"] = time.Since(start).Milliseconds()
	out.Metrics["executed_at"] = ec.Timestamp
	return &out, nil
}

// processResultMap exposes a ProcessResult to dot-path resolution.
func processResultMap(r *types.ProcessResult) map[string]any {
	if r == nil {
		return map[string]any{}
	}
	return map[string]any{
		"status":          string(r.Status),
		"data":            r.Data,
		"explanation":     r.Explanation,
		"recommendations": r.Recommendations,
		"metrics":         r.Metrics,
	}
}

func (e *Engine) appendHistory(res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, res)
	if overflow := len(e.history) - e.historySize; overflow > 0 {
		e.history = e.history[overflow:]
	}
}
