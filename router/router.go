// Package router constructs, validates and delivers messages between
// agents. Delivery is in-process and fire-and-forget: routing failures are
// logged and recorded as negative experiences, never surfaced to the
// sender. The chain-of-command topology is computed at send time and
// enforced as a visibility gate at read time.
package router

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
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/types"
)

// HandlerFunc receives messages matched by a subscription.
type HandlerFunc func(ctx context.Context, msg *types.Message) error

// Subscription binds a filter to a delivery handler.
type Subscription struct {
	ID         string
	Subscriber string
	Filter     Filter
	Handler    HandlerFunc

	// once marks one-shot subscriptions that unregister themselves after
	// the first matched delivery.
	once bool
}

// Config holds router tunables.
type Config struct {
	// BufferSize caps the in-memory message buffer consumed by
	// GetMessages. Oldest messages are pruned first. 0 means the default.
	BufferSize int `yaml:"buffer_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{BufferSize: 2000}
}

// Router is the in-process message router. All methods are safe for
// concurrent use.
type Router struct {
	mu sync.RWMutex

	// buffer holds delivered messages for read-time queries, oldest first.
	buffer []*types.Message

	// subs holds active subscriptions in registration order; delivery to
	// multiple subscribers is sequential and isolated.
	subs []*Subscription

	registry *registry.Registry
	store    *replay.Store
	recorder audit.Recorder
	metrics  *metrics.Collector

	bufferSize int
	logger     *zap.Logger
}

// New creates a router. The registry is required; store, recorder and
// collector may be nil.
func New(config Config, reg *registry.Registry, store *replay.Store, recorder audit.Recorder, collector *metrics.Collector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	return &Router{
		registry:   reg,
		store:      store,
		recorder:   recorder,
		metrics:    collector,
		bufferSize: config.BufferSize,
		logger:     logger.With(zap.String("component", "message_router")),
	}
}

// MessageOption customizes a message built by CreateMessage.
type MessageOption func(*types.Message)

// WithPriority sets the message priority.
func WithPriority(p types.Priority) MessageOption {
	return func(m *types.Message) { m.Priority = p }
}

// WithConversationID groups the message into a request/response exchange.
func WithConversationID(id string) MessageOption {
	return func(m *types.Message) { m.ConversationID = id }
}

// WithCorrelationID sets the cross-conversation correlation id.
func WithCorrelationID(id string) MessageOption {
	return func(m *types.Message) { m.CorrelationID = id }
}

// WithEventType tags the message with an event category.
func WithEventType(e types.EventType) MessageOption {
	return func(m *types.Message) { m.EventType = e }
}

// WithExpiry sets an absolute expiry.
func WithExpiry(at time.Time) MessageOption {
	return func(m *types.Message) { m.ExpiresAt = at }
}

// WithRelatedComponent tags the message with a component.
func WithRelatedComponent(component string) MessageOption {
	return func(m *types.Message) { m.RelatedComponent = component }
}

// WithCheckpointStatus tags the message with an integration checkpoint state.
func WithCheckpointStatus(s types.CheckpointStatus) MessageOption {
	return func(m *types.Message) { m.CheckpointStatus = s }
}

// WithMetadata attaches free-form metadata.
func WithMetadata(md map[string]any) MessageOption {
	return func(m *types.Message) { m.Metadata = md }
}

// WithSenderTier overrides the derived sender tier.
func WithSenderTier(t types.Tier) MessageOption {
	return func(m *types.Message) { m.SenderTier = t }
}

// WithRecipientTier overrides the derived recipient tier.
func WithRecipientTier(t types.Tier) MessageOption {
	return func(m *types.Message) { m.RecipientTier = t }
}

// CreateMessage builds a message, deriving sender/recipient tiers when not
// supplied and computing the chain-of-command validity flag. The flag
// never blocks delivery.
func (r *Router) CreateMessage(msgType types.MessageType, sender, recipient string, content map[string]any, opts ...MessageOption) *types.Message {
	msg := &types.Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Sender:    sender,
		Recipient: recipient,
		Priority:  types.PriorityNormal,
		Content:   content,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(msg)
	}
	if msg.ConversationID == "" {
		msg.ConversationID = uuid.New().String()
	}
	if msg.SenderTier == "" {
		msg.SenderTier = r.tierOf(sender)
	}
	if msg.RecipientTier == "" {
		if msg.IsBroadcast() {
			// a broadcast addresses the system as a whole
			msg.RecipientTier = types.TierSystem
		} else {
			msg.RecipientTier = r.tierOf(recipient)
		}
	}
	msg.ChainOfCommandValid = chainOfCommandValid(msg.SenderTier, msg.RecipientTier)
	return msg
}

// chainOfCommandValid applies the fixed authority topology: a Specialist
// may only address Component-Leadership or System recipients, and a
// Component-Leadership sender may not address Strategic-Leadership.
func chainOfCommandValid(sender, recipient types.Tier) bool {
	switch sender {
	case types.TierSpecialist:
		return recipient == types.TierComponentLeadership || recipient == types.TierSystem
	case types.TierComponentLeadership:
		return recipient != types.TierStrategicLeadership
	default:
		return true
	}
}

func (r *Router) tierOf(id string) types.Tier {
	if r.registry != nil {
		return r.registry.Tier(id)
	}
	return types.DeriveTier(id)
}

// Subscribe registers a handler for messages matching filter and returns
// the subscription id.
func (r *Router) Subscribe(subscriber string, filter Filter, handler HandlerFunc) string {
	return r.subscribe(subscriber, filter, handler, false)
}

// SubscribeOnce registers a handler that unregisters itself after the
// first matched delivery. The caller still owns removal on timeout via
// Unsubscribe; delivery and timeout may race, so both paths unregister.
func (r *Router) SubscribeOnce(subscriber string, filter Filter, handler HandlerFunc) string {
	return r.subscribe(subscriber, filter, handler, true)
}

func (r *Router) subscribe(subscriber string, filter Filter, handler HandlerFunc, once bool) string {
	sub := &Subscription{
		ID:         uuid.New().String(),
		Subscriber: subscriber,
		Filter:     filter,
		Handler:    handler,
		once:       once,
	}

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	n := len(r.subs)
	r.mu.Unlock()

	r.metrics.SetActiveSubscriptions(n)
	r.logger.Debug("subscription added",
		zap.String("subscription_id", sub.ID),
		zap.String("subscriber", subscriber),
	)
	return sub.ID
}

// Unsubscribe removes a subscription. Returns false when the id is
// unknown (already removed).
func (r *Router) Unsubscribe(id string) bool {
	r.mu.Lock()
	removed := false
	for i, sub := range r.subs {
		if sub.ID == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			removed = true
			break
		}
	}
	n := len(r.subs)
	r.mu.Unlock()

	if removed {
		r.metrics.SetActiveSubscriptions(n)
	}
	return removed
}

// SubscriptionCount returns the number of active subscriptions.
func (r *Router) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Send appends the message to the buffer and delivers it immediately.
// Delivery failures never propagate to the sender.
func (r *Router) Send(ctx context.Context, msg *types.Message) error {
	if msg == nil {
		return types.NewError(types.ErrInvalidMessage, "nil message").WithComponent("router")
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Expired(time.Now()) {
		r.logger.Debug("dropping expired message", zap.String("message_id", msg.ID))
		return types.NewError(types.ErrMessageExpired, "message expired before send").WithComponent("router")
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, msg)
	if overflow := len(r.buffer) - r.bufferSize; overflow > 0 {
		r.buffer = r.buffer[overflow:]
	}
	r.mu.Unlock()

	r.metrics.RecordMessageSent(string(msg.Type), string(msg.Priority))
	audit.Fire(ctx, r.recorder, r.logger, audit.Event{
		Type:    audit.EventMessageSent,
		Actor:   msg.Sender,
		Subject: msg.Recipient,
		Details: map[string]any{
			"message_id": msg.ID,
			"type":       msg.Type,
			"priority":   msg.Priority,
		},
	})

	start := time.Now()
	r.deliver(ctx, msg)
	r.metrics.RecordDeliveryDuration(string(msg.Type), time.Since(start))
	return nil
}

// deliver fans the message out. For a broadcast every matching
// subscription is invoked; for a concrete recipient the recipient's own
// handler (when implemented) runs first and matching subscriptions run as
// an independent second path, so a message can legitimately arrive twice.
func (r *Router) deliver(ctx context.Context, msg *types.Message) {
	if !msg.IsBroadcast() {
		r.deliverDirect(ctx, msg)
	}
	r.deliverSubscriptions(ctx, msg)
}

func (r *Router) deliverDirect(ctx context.Context, msg *types.Message) {
	var a types.Agent
	if r.registry != nil {
		a = r.registry.Get(msg.Recipient)
	}
	if a == nil {
		r.logger.Warn("recipient not registered",
			zap.String("message_id", msg.ID),
			zap.String("recipient", msg.Recipient),
		)
		r.metrics.RecordDelivery("direct", "unknown_recipient")
		r.recordDeliveryExperience(msg, msg.Recipient, "direct", fmt.Errorf("recipient %q not registered", msg.Recipient))
		return
	}

	handler, ok := a.(types.MessageHandler)
	if !ok {
		// subscription-only agent, nothing to do on the direct path
		return
	}

	err := r.invoke(ctx, msg, func(ctx context.Context) error {
		return handler.HandleMessage(ctx, msg)
	})
	if err != nil {
		r.logger.Warn("direct delivery failed",
			zap.String("message_id", msg.ID),
			zap.String("recipient", msg.Recipient),
			zap.Error(err),
		)
		r.metrics.RecordDelivery("direct", "failed")
	} else {
		r.metrics.RecordDelivery("direct", "delivered")
	}
	r.recordDeliveryExperience(msg, msg.Recipient, "direct", err)
}

func (r *Router) deliverSubscriptions(ctx context.Context, msg *types.Message) {
	r.mu.RLock()
	matched := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		if sub.Filter.Matches(msg) {
			matched = append(matched, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range matched {
		if sub.once && !r.Unsubscribe(sub.ID) {
			// lost the race against an explicit Unsubscribe (e.g. a
			// delegation timeout); the response is dropped
			continue
		}

		err := r.invoke(ctx, msg, func(ctx context.Context) error {
			return sub.Handler(ctx, msg)
		})
		if err != nil {
			// isolation guarantee: one handler's failure never stops
			// delivery to the remaining subscribers
			r.logger.Warn("subscription handler failed",
				zap.String("message_id", msg.ID),
				zap.String("subscription_id", sub.ID),
				zap.String("subscriber", sub.Subscriber),
				zap.Error(err),
			)
			r.metrics.RecordDelivery("subscription", "failed")
			audit.Fire(ctx, r.recorder, r.logger, audit.Event{
				Type:    audit.EventDeliveryFailed,
				Actor:   msg.Sender,
				Subject: sub.Subscriber,
				Details: map[string]any{"message_id": msg.ID, "error": err.Error()},
			})
		} else {
			r.metrics.RecordDelivery("subscription", "delivered")
		}
		r.recordDeliveryExperience(msg, sub.Subscriber, "subscription", err)
	}
}

// invoke runs a delivery handler, converting panics into errors so a
// misbehaving handler cannot abort the fan-out.
func (r *Router) invoke(ctx context.Context, msg *types.Message, fn func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return fn(ctx)
}

// recordDeliveryExperience writes one delivery outcome to the replay
// store. Repeated identical outcomes merge there rather than growing it.
func (r *Router) recordDeliveryExperience(msg *types.Message, receiver, path string, deliveryErr error) {
	if r.store == nil {
		return
	}
	success := deliveryErr == nil
	priority := 0.3
	md := map[string]any{"message_id": msg.ID, "path": path}
	if !success {
		priority = 0.7
		md["error"] = deliveryErr.Error()
	}
	r.store.Add(replay.Experience{
		AgentID: receiver,
		Type:    replay.TypeMessageDelivery,
		State: map[string]any{
			"sender":     msg.Sender,
			"recipient":  msg.Recipient,
			"type":       string(msg.Type),
			"event_type": string(msg.EventType),
		},
		Action:   map[string]any{"deliver": path},
		Result:   map[string]any{"success": success},
		Priority: priority,
		Success:  success,
		Metadata: md,
	})
	r.metrics.RecordExperience(replay.TypeMessageDelivery, success)
	r.metrics.SetReplayStoreSize(r.store.Len())
}

// Acknowledge marks a buffered message as acknowledged. Messages are
// immutable after delivery except for this flag.
func (r *Router) Acknowledge(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.buffer {
		if m.ID == messageID {
			m.Acknowledged = true
			return true
		}
	}
	return false
}

// BufferLen returns the number of buffered messages.
func (r *Router) BufferLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffer)
}
