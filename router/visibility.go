package router

import (
	"github.com/civant/agentcore/types"
)

// specialistTacticalEvents is the fixed allow-list of Tactical-Leadership
// event types a Specialist reader may see.
var specialistTacticalEvents = []types.EventType{
	types.EventCoordination,
	types.EventIntegrationCheckpoint,
	types.EventTaskAssignment,
}

// componentStrategicEvents is the fixed allow-list of Strategic-Leadership
// event types a Component-Leadership reader may see.
var componentStrategicEvents = []types.EventType{
	types.EventStrategicDirective,
	types.EventArchitectureUpdate,
}

// GetMessages returns buffered messages visible to the reader, newest
// first, further narrowed by filter and capped at limit (0 means no cap).
//
// The reader's tier is re-derived from its id and the hierarchical
// visibility rules applied: chain-of-command-invalid messages are hidden
// unless the reader is System tier and the filter explicitly requests
// ChainOfCommandValid=false; a Specialist reader sees Component-Leadership
// and System senders unconditionally, Tactical-Leadership senders only for
// coordination/checkpoint/assignment events, and Strategic-Leadership
// senders not at all; a Component-Leadership reader sees
// Strategic-Leadership senders only for strategic-directive and
// architecture-update events.
func (r *Router) GetMessages(readerID string, filter Filter, limit int) []types.Message {
	readerTier := r.tierOf(readerID)

	// Filter and copy under the read lock; Acknowledge mutates buffered
	// messages in place under the write lock.
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.Message
	for i := len(r.buffer) - 1; i >= 0; i-- {
		msg := r.buffer[i]
		if !visibleTo(readerTier, msg, filter) {
			continue
		}
		if !filter.Matches(msg) {
			continue
		}
		out = append(out, *msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func visibleTo(readerTier types.Tier, msg *types.Message, filter Filter) bool {
	if !msg.ChainOfCommandValid {
		// invalid-chain messages are only surfaced to System readers that
		// explicitly ask for them
		explicit := filter.ChainOfCommandValid != nil && !*filter.ChainOfCommandValid
		if !(readerTier == types.TierSystem && explicit) {
			return false
		}
	}

	switch readerTier {
	case types.TierSpecialist:
		switch msg.SenderTier {
		case types.TierStrategicLeadership:
			return false
		case types.TierTacticalLeadership:
			return containsEvent(specialistTacticalEvents, msg.EventType)
		default:
			return true
		}
	case types.TierComponentLeadership:
		if msg.SenderTier == types.TierStrategicLeadership {
			return containsEvent(componentStrategicEvents, msg.EventType)
		}
		return true
	default:
		return true
	}
}
