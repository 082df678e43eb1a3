package collab

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civant/agentcore/agent/registry"
	"github.com/civant/agentcore/audit"
	"github.com/civant/agentcore/internal/metrics"
	"github.com/civant/agentcore/replay"
	"github.com/civant/agentcore/router"
	"github.com/civant/agentcore/types"
)

// Config holds tunables for the collaboration service.
type Config struct {
	// DelegationTimeout bounds how long DelegateTask waits for the
	// delegate's response when the options do not override it.
	DelegationTimeout time.Duration `yaml:"delegation_timeout"`

	// HelpWindow bounds how long RequestHelp collects solutions.
	HelpWindow time.Duration `yaml:"help_window"`

	// MaxHelpSolutions resolves a help request early once this many
	// solutions have arrived.
	MaxHelpSolutions int `yaml:"max_help_solutions"`

	// ConfidenceThreshold resolves a help request early once a solution
	// at or above this confidence arrives.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// DefaultConfig returns the collaboration defaults.
func DefaultConfig() Config {
	return Config{
		DelegationTimeout:   30 * time.Second,
		HelpWindow:          10 * time.Second,
		MaxHelpSolutions:    3,
		ConfidenceThreshold: 0.9,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DelegationTimeout <= 0 {
		c.DelegationTimeout = def.DelegationTimeout
	}
	if c.HelpWindow <= 0 {
		c.HelpWindow = def.HelpWindow
	}
	if c.MaxHelpSolutions <= 0 {
		c.MaxHelpSolutions = def.MaxHelpSolutions
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	return c
}

// Service coordinates task delegation and help requests between agents.
type Service struct {
	config   Config
	registry *registry.Registry
	router   *router.Router
	store    *replay.Store
	recorder audit.Recorder
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewService creates the collaboration service. The registry and router are
// required; store, recorder and collector may be nil.
func NewService(config Config, reg *registry.Registry, rt *router.Router, store *replay.Store, recorder audit.Recorder, collector *metrics.Collector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:   config.withDefaults(),
		registry: reg,
		router:   rt,
		store:    store,
		recorder: recorder,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "collab")),
	}
}

// DelegateOptions tune a single delegation.
type DelegateOptions struct {
	// Timeout overrides the configured delegation timeout when > 0.
	Timeout time.Duration

	// Priority overrides the request priority. Defaults to high.
	Priority types.Priority
}

// DelegationTimings breaks down where a delegation spent its time.
type DelegationTimings struct {
	FindAgent time.Duration `json:"find_agent"`
	Complete  time.Duration `json:"complete"`
	Total     time.Duration `json:"total"`
}

// DelegationResult is the outcome of one DelegateTask call.
type DelegationResult struct {
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	DelegateID     string            `json:"delegate_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Result         map[string]any    `json:"result,omitempty"`
	Acknowledged   bool              `json:"acknowledged"`
	Timings        DelegationTimings `json:"timings"`
}

// DelegateTask finds an agent advertising every requested capability and
// hands it the task, waiting for its response on a fresh conversation.
// The requester itself is never selected. When no candidate exists the
// call fails without sending anything.
func (s *Service) DelegateTask(ctx context.Context, requester string, capabilities []string, data map[string]any, opts DelegateOptions) DelegationResult {
	start := time.Now()

	candidates := s.findCandidates(requester, capabilities)
	findDur := time.Since(start)

	if len(candidates) == 0 {
		s.logger.Info("no delegation candidates",
			zap.String("requester", requester),
			zap.Strings("capabilities", capabilities))
		s.metrics.RecordDelegation("no_agents", time.Since(start))
		audit.Fire(ctx, s.recorder, s.logger, audit.Event{
			Type:    audit.EventDelegationOutcome,
			Actor:   requester,
			Details: map[string]any{"outcome": "no_agents", "capabilities": capabilities},
		})
		return DelegationResult{
			Success: false,
			Error:   fmt.Sprintf("No agents found with capabilities: %s", strings.Join(capabilities, ", ")),
			Timings: DelegationTimings{FindAgent: findDur, Total: time.Since(start)},
		}
	}

	delegate := candidates[0]
	convID := uuid.New().String()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.config.DelegationTimeout
	}
	priority := opts.Priority
	if priority == "" {
		priority = types.PriorityHigh
	}

	respCh := make(chan *types.Message, 1)
	subID := s.router.SubscribeOnce(requester, router.Filter{
		Sender:         delegate,
		ConversationID: convID,
		Types:          []types.MessageType{types.MessageTypeResponse},
	}, func(_ context.Context, msg *types.Message) error {
		select {
		case respCh <- msg:
		default:
		}
		return nil
	})

	msg := s.router.CreateMessage(types.MessageTypeRequest, requester, delegate,
		map[string]any{
			"action":       "delegate_task",
			"task":         data,
			"capabilities": capabilities,
		},
		router.WithConversationID(convID),
		router.WithPriority(priority),
		router.WithEventType(types.EventTaskDelegation),
	)
	if err := s.router.Send(ctx, msg); err != nil {
		s.router.Unsubscribe(subID)
		s.metrics.RecordDelegation("send_failed", time.Since(start))
		return DelegationResult{
			Success:        false,
			Error:          err.Error(),
			DelegateID:     delegate,
			ConversationID: convID,
			Timings:        DelegationTimings{FindAgent: findDur, Total: time.Since(start)},
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		completeDur := time.Since(start) - findDur
		s.recordDelegationExperience(requester, delegate, capabilities, true, "")
		s.metrics.RecordDelegation("success", time.Since(start))
		audit.Fire(ctx, s.recorder, s.logger, audit.Event{
			Type:    audit.EventDelegationOutcome,
			Actor:   requester,
			Subject: delegate,
			Details: map[string]any{"outcome": "success", "conversation_id": convID},
		})
		return DelegationResult{
			Success:        true,
			DelegateID:     delegate,
			ConversationID: convID,
			Result:         resp.Content,
			Acknowledged:   resp.Acknowledged,
			Timings: DelegationTimings{
				FindAgent: findDur,
				Complete:  completeDur,
				Total:     time.Since(start),
			},
		}

	case <-timer.C:
		s.router.Unsubscribe(subID)
		s.recordDelegationExperience(requester, delegate, capabilities, false, "timeout")
		s.metrics.RecordDelegation("timeout", time.Since(start))
		audit.Fire(ctx, s.recorder, s.logger, audit.Event{
			Type:    audit.EventDelegationOutcome,
			Actor:   requester,
			Subject: delegate,
			Details: map[string]any{"outcome": "timeout", "conversation_id": convID},
		})
		return DelegationResult{
			Success:        false,
			Error:          fmt.Sprintf("delegation to %s timed out after %s", delegate, timeout),
			DelegateID:     delegate,
			ConversationID: convID,
			Timings:        DelegationTimings{FindAgent: findDur, Total: time.Since(start)},
		}

	case <-ctx.Done():
		s.router.Unsubscribe(subID)
		s.recordDelegationExperience(requester, delegate, capabilities, false, ctx.Err().Error())
		s.metrics.RecordDelegation("canceled", time.Since(start))
		return DelegationResult{
			Success:        false,
			Error:          ctx.Err().Error(),
			DelegateID:     delegate,
			ConversationID: convID,
			Timings:        DelegationTimings{FindAgent: findDur, Total: time.Since(start)},
		}
	}
}

// findCandidates intersects capability lookups and drops the requester.
// Candidate order follows the registry's sorted capability results, so the
// selection is deterministic.
func (s *Service) findCandidates(requester string, capabilities []string) []string {
	if len(capabilities) == 0 {
		return nil
	}
	candidates := s.registry.FindByCapability(capabilities[0])
	for _, capability := range capabilities[1:] {
		if len(candidates) == 0 {
			return nil
		}
		next := s.registry.FindByCapability(capability)
		set := make(map[string]struct{}, len(next))
		for _, id := range next {
			set[id] = struct{}{}
		}
		kept := candidates[:0]
		for _, id := range candidates {
			if _, ok := set[id]; ok {
				kept = append(kept, id)
			}
		}
		candidates = kept
	}
	kept := candidates[:0]
	for _, id := range candidates {
		if id != requester {
			kept = append(kept, id)
		}
	}
	return kept
}

func (s *Service) recordDelegationExperience(requester, delegate string, capabilities []string, success bool, reason string) {
	if s.store == nil {
		return
	}
	priority := 0.85
	if !success {
		priority = 0.7
	}
	md := map[string]any{}
	if reason != "" {
		md["error"] = reason
	}
	s.store.Add(replay.Experience{
		AgentID:  requester,
		Type:     replay.TypeTaskDelegation,
		State:    map[string]any{"capabilities": strings.Join(capabilities, ",")},
		Action:   map[string]any{"delegate": delegate},
		Priority: priority,
		Success:  success,
		Metadata: md,
	})
	s.metrics.RecordExperience(replay.TypeTaskDelegation, success)
}

// Solution is one answer collected for a help request.
type Solution struct {
	AgentID    string         `json:"agent_id"`
	Confidence float64        `json:"confidence"`
	Content    map[string]any `json:"content"`
	ReceivedAt time.Time      `json:"received_at"`
}

// HelpResult is the outcome of one RequestHelp call.
type HelpResult struct {
	RequestID string     `json:"request_id"`
	Solutions []Solution `json:"solutions"`
	Resolved  bool       `json:"resolved"`
	Elapsed   time.Duration
}

// RequestHelp broadcasts an urgent help request and collects solution
// responses until the window closes, enough solutions arrive, or one
// solution clears the confidence threshold. Solutions come back sorted by
// confidence, highest first.
func (s *Service) RequestHelp(ctx context.Context, requester, problemType, description string, data map[string]any) HelpResult {
	start := time.Now()
	requestID := uuid.New().String()

	var (
		mu        sync.Mutex
		solutions []Solution
		done      = make(chan struct{})
		closed    bool
	)
	resolve := func() {
		if !closed {
			closed = true
			close(done)
		}
	}

	subID := s.router.Subscribe(requester, router.Filter{
		Types:  []types.MessageType{types.MessageTypeResponse},
		Action: "solution",
	}, func(_ context.Context, msg *types.Message) error {
		id, _ := msg.Content["help_request_id"].(string)
		if id != requestID {
			return nil
		}
		sol := Solution{
			AgentID:    msg.Sender,
			Confidence: confidenceOf(msg.Content),
			Content:    msg.Content,
			ReceivedAt: time.Now(),
		}
		mu.Lock()
		solutions = append(solutions, sol)
		if len(solutions) >= s.config.MaxHelpSolutions || sol.Confidence >= s.config.ConfidenceThreshold {
			resolve()
		}
		mu.Unlock()
		return nil
	})
	defer s.router.Unsubscribe(subID)

	msg := s.router.CreateMessage(types.MessageTypeQuery, requester, types.BroadcastRecipient,
		map[string]any{
			"action":          "help_request",
			"help_request_id": requestID,
			"problem_type":    problemType,
			"description":     description,
			"data":            data,
		},
		router.WithPriority(types.PriorityUrgent),
		router.WithEventType(types.EventHelpRequest),
	)
	if err := s.router.Send(ctx, msg); err != nil {
		s.logger.Warn("help request broadcast failed", zap.Error(err))
		return HelpResult{RequestID: requestID, Elapsed: time.Since(start)}
	}

	timer := time.NewTimer(s.config.HelpWindow)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}

	mu.Lock()
	resolve()
	collected := make([]Solution, len(solutions))
	copy(collected, solutions)
	mu.Unlock()

	sort.SliceStable(collected, func(i, j int) bool {
		return collected[i].Confidence > collected[j].Confidence
	})

	resolved := len(collected) > 0
	if s.store != nil {
		s.store.Add(replay.Experience{
			AgentID:  requester,
			Type:     replay.TypeHelpRequest,
			State:    map[string]any{"problem_type": problemType},
			Action:   map[string]any{"request_id": requestID},
			Priority: 0.6,
			Success:  resolved,
			Metadata: map[string]any{"solutions": len(collected)},
		})
		s.metrics.RecordExperience(replay.TypeHelpRequest, resolved)
	}
	audit.Fire(ctx, s.recorder, s.logger, audit.Event{
		Type:    audit.EventHelpRequestOutcome,
		Actor:   requester,
		Details: map[string]any{"request_id": requestID, "solutions": len(collected), "resolved": resolved},
	})

	return HelpResult{
		RequestID: requestID,
		Solutions: collected,
		Resolved:  resolved,
		Elapsed:   time.Since(start),
	}
}

func confidenceOf(content map[string]any) float64 {
	switch v := content["confidence"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
