package router

import (
	"github.com/civant/agentcore/types"
)

// Filter is a conjunctive message predicate. Every field is optional; an
// absent (zero) field imposes no constraint.
type Filter struct {
	// Sender matches the message sender id.
	Sender string `json:"sender,omitempty"`

	// Types matches any of the given message types.
	Types []types.MessageType `json:"types,omitempty"`

	// EventTypes matches any of the given event types.
	EventTypes []types.EventType `json:"event_types,omitempty"`

	// MinPriority requires the message priority to rank at least this high.
	MinPriority types.Priority `json:"min_priority,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`

	// Action matches the content "action" tag.
	Action string `json:"action,omitempty"`

	// Tags matches when the message carries at least one of these tags in
	// its metadata "tags" entry (any-of).
	Tags []string `json:"tags,omitempty"`

	SenderTier    types.Tier `json:"sender_tier,omitempty"`
	RecipientTier types.Tier `json:"recipient_tier,omitempty"`

	// ChainOfCommandValid, when set, matches the computed validity flag.
	ChainOfCommandValid *bool `json:"chain_of_command_valid,omitempty"`

	RelatedComponent string                 `json:"related_component,omitempty"`
	CheckpointStatus types.CheckpointStatus `json:"checkpoint_status,omitempty"`
}

// Matches reports whether msg satisfies every constraint in the filter.
func (f Filter) Matches(msg *types.Message) bool {
	if msg == nil {
		return false
	}
	if f.Sender != "" && msg.Sender != f.Sender {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, msg.Type) {
		return false
	}
	if len(f.EventTypes) > 0 && !containsEvent(f.EventTypes, msg.EventType) {
		return false
	}
	if f.MinPriority != "" && types.PriorityRank(msg.Priority) < types.PriorityRank(f.MinPriority) {
		return false
	}
	if f.ConversationID != "" && msg.ConversationID != f.ConversationID {
		return false
	}
	if f.CorrelationID != "" && msg.CorrelationID != f.CorrelationID {
		return false
	}
	if f.Action != "" && msg.Action() != f.Action {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(msg, f.Tags) {
		return false
	}
	if f.SenderTier != "" && msg.SenderTier != f.SenderTier {
		return false
	}
	if f.RecipientTier != "" && msg.RecipientTier != f.RecipientTier {
		return false
	}
	if f.ChainOfCommandValid != nil && msg.ChainOfCommandValid != *f.ChainOfCommandValid {
		return false
	}
	if f.RelatedComponent != "" && msg.RelatedComponent != f.RelatedComponent {
		return false
	}
	if f.CheckpointStatus != "" && msg.CheckpointStatus != f.CheckpointStatus {
		return false
	}
	return true
}

func containsType(set []types.MessageType, t types.MessageType) bool {
	for _, x := range set {
		if x == t {
			return true
		}
	}
	return false
}

func containsEvent(set []types.EventType, e types.EventType) bool {
	for _, x := range set {
		if x == e {
			return true
		}
	}
	return false
}

// hasAnyTag checks the message metadata "tags" entry, accepting both
// []string and []any shapes since payloads often round-trip through JSON.
func hasAnyTag(msg *types.Message, wanted []string) bool {
	if msg.Metadata == nil {
		return false
	}
	var tags []string
	switch raw := msg.Metadata["tags"].(type) {
	case []string:
		tags = raw
	case []any:
		for _, v := range raw {
			if s, ok := v.(string); ok {
				tags = append(tags, s)
			}
		}
	default:
		return false
	}
	for _, w := range wanted {
		for _, tag := range tags {
			if tag == w {
				return true
			}
		}
	}
	return false
}
