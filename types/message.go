package types

import (
	"time"
)

// BroadcastRecipient is the literal recipient that addresses every
// subscribed agent.
const BroadcastRecipient = "all"

// MessageType classifies a message within an exchange.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeQuery    MessageType = "query"
	MessageTypeError    MessageType = "error"
	MessageTypeEvent    MessageType = "event"
)

// EventType tags a message with a domain event category. The constants
// below are the ones the hierarchy visibility rules key on; senders are
// free to use additional ad hoc values.
type EventType string

const (
	EventCoordination          EventType = "coordination"
	EventIntegrationCheckpoint EventType = "integration-checkpoint"
	EventTaskAssignment        EventType = "task-assignment"
	EventStrategicDirective    EventType = "strategic-directive"
	EventArchitectureUpdate    EventType = "architecture-update"
	EventHelpRequest           EventType = "help-request"
	EventTaskDelegation        EventType = "task-delegation"
)

// Priority orders messages from low to urgent.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityRank returns the ordinal rank of a priority for comparisons
// (low < normal < high < urgent). Unknown priorities rank as normal.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// CheckpointStatus reports the state of an integration checkpoint a
// message relates to.
type CheckpointStatus string

const (
	CheckpointPending CheckpointStatus = "pending"
	CheckpointPassed  CheckpointStatus = "passed"
	CheckpointFailed  CheckpointStatus = "failed"
)

// Message is one unit of agent-to-agent communication. Messages are
// created by the router's factory and are immutable after delivery except
// for the Acknowledged flag.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	CorrelationID  string      `json:"correlation_id,omitempty"`
	Type           MessageType `json:"type"`
	EventType      EventType   `json:"event_type,omitempty"`
	Sender         string      `json:"sender"`
	Recipient      string      `json:"recipient"`
	Priority       Priority    `json:"priority"`

	// Content is an opaque payload. By convention the "action" key is
	// consulted by subscription filters.
	Content map[string]any `json:"content,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Acknowledged bool      `json:"acknowledged"`

	SenderTier    Tier `json:"sender_tier,omitempty"`
	RecipientTier Tier `json:"recipient_tier,omitempty"`

	// ChainOfCommandValid records whether the sender/recipient tier pair
	// respects the chain of command. It is computed at creation time and
	// consumed as a visibility gate at read time; it never blocks delivery.
	ChainOfCommandValid bool `json:"chain_of_command_valid"`

	RelatedComponent string           `json:"related_component,omitempty"`
	CheckpointStatus CheckpointStatus `json:"checkpoint_status,omitempty"`

	// Metadata carries free-form tags consulted by subscription filters.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsBroadcast reports whether the message addresses all agents.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == BroadcastRecipient
}

// Expired reports whether the message's expiry has passed at the given time.
// Messages without an expiry never expire.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt)
}

// Action returns the content "action" tag, if present.
func (m *Message) Action() string {
	if m.Content == nil {
		return ""
	}
	s, _ := m.Content["action"].(string)
	return s
}
