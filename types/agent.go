package types

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Issue describes one problem found while validating or processing input.
type Issue struct {
	Field       string   `json:"field"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// ValidationResult is the outcome of Agent.ValidateInput. A critical issue
// forces IsValid=false upstream regardless of what the agent reported.
type ValidationResult struct {
	IsValid       bool    `json:"is_valid"`
	Issues        []Issue `json:"issues,omitempty"`
	ValidatedData any     `json:"validated_data,omitempty"`
}

// HasCritical reports whether any issue carries critical severity.
func (r ValidationResult) HasCritical() bool {
	for _, iss := range r.Issues {
		if iss.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ProcessStatus classifies the outcome of Agent.Process.
type ProcessStatus string

const (
	StatusSuccess             ProcessStatus = "success"
	StatusWarning             ProcessStatus = "warning"
	StatusError               ProcessStatus = "error"
	StatusBlockedByCompliance ProcessStatus = "blocked_by_compliance"
)

// ProcessResult is the tagged result every agent returns from Process.
// It replaces the variable response shapes of ad hoc duck typing with a
// single explicit contract.
type ProcessResult struct {
	Status          ProcessStatus  `json:"status"`
	Data            any            `json:"data,omitempty"`
	Explanation     string         `json:"explanation,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Issues          []Issue        `json:"issues,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
}

// ExecutionContext is supplied to every Process call.
type ExecutionContext struct {
	ExecutionID string         `json:"execution_id"`
	Timestamp   time.Time      `json:"timestamp"`
	AccessLevel string         `json:"access_level,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Logger is the structured log sink for the agent. Never nil once the
	// engine has built the context.
	Logger *zap.Logger `json:"-"`
}

// Agent is the capability contract every worker satisfies. Registration,
// routing, workflow execution and delegation all address agents only
// through this interface.
type Agent interface {
	// ID returns the agent's unique identity. The chain-of-command tier is
	// derived from it, see DeriveTier.
	ID() string

	// Name returns a human readable display name.
	Name() string

	// Capabilities returns the declared capability set.
	Capabilities() []string

	// ValidateInput checks input before processing. Validation failures are
	// data, not errors: the returned issue list carries severities and a
	// critical issue short-circuits execution upstream.
	ValidateInput(ctx context.Context, input any) (ValidationResult, error)

	// Process performs the agent's work.
	Process(ctx context.Context, input any, ec ExecutionContext) (ProcessResult, error)
}

// MessageHandler is optionally implemented by agents that want direct
// delivery in addition to subscription-based delivery.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}
