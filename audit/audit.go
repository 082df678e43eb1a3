// Package audit provides the event-logging collaborator the orchestration
// core notifies after every significant action. Recording is strictly
// fire-and-forget: a failing recorder is logged and never aborts the core
// operation that triggered it.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventType classifies an audit event.
type EventType string

const (
	EventAgentRegistered    EventType = "agent_registered"
	EventMessageSent        EventType = "message_sent"
	EventMessageDelivered   EventType = "message_delivered"
	EventDeliveryFailed     EventType = "delivery_failed"
	EventStepCompleted      EventType = "step_completed"
	EventStepFailed         EventType = "step_failed"
	EventWorkflowCompleted  EventType = "workflow_completed"
	EventDelegationOutcome  EventType = "delegation_outcome"
	EventHelpRequestOutcome EventType = "help_request_outcome"
)

// Event is one auditable action.
type Event struct {
	Type      EventType      `json:"type"`
	Actor     string         `json:"actor,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recorder receives audit events. Implementations may persist them; the
// core never reads them back.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Fire records an event on rec, swallowing every failure mode (nil
// recorder, returned error, panic) after logging it. All core packages
// route audit writes through here so the never-escalate rule lives in one
// place.
func Fire(ctx context.Context, rec Recorder, logger *zap.Logger, ev Event) {
	if rec == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("audit recorder panicked",
				zap.String("event_type", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	if err := rec.Record(ctx, ev); err != nil && logger != nil {
		logger.Warn("audit record failed",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

// ZapRecorder writes audit events to a zap logger. It is the default
// recorder when the embedding application does not supply its own.
type ZapRecorder struct {
	logger *zap.Logger
}

// NewZapRecorder creates a zap-backed recorder.
func NewZapRecorder(logger *zap.Logger) *ZapRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapRecorder{logger: logger.With(zap.String("component", "audit"))}
}

// Record implements Recorder.
func (r *ZapRecorder) Record(_ context.Context, ev Event) error {
	r.logger.Info("audit",
		zap.String("event_type", string(ev.Type)),
		zap.String("actor", ev.Actor),
		zap.String("subject", ev.Subject),
		zap.Time("at", ev.Timestamp),
		zap.Any("details", ev.Details),
	)
	return nil
}

// Nop is a Recorder that discards everything.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) error { return nil }
