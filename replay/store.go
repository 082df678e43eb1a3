// Package replay implements a bounded, deduplicating, priority-sortable
// cache of past interaction outcomes. It is a learning signal store for
// the collaboration layer, not a training pipeline: entries are opaque
// (state, action, result) tuples mined by heuristic summarizers.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civant/agentcore/types"
)

// Experience is one recorded interaction outcome. State, Action, Result
// and NextState are opaque payloads; Priority in [0,1] drives eviction and
// prioritized sampling.
type Experience struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	Type      string         `json:"type"`
	State     any            `json:"state,omitempty"`
	Action    any            `json:"action,omitempty"`
	Result    any            `json:"result,omitempty"`
	NextState any            `json:"next_state,omitempty"`
	Priority  float64        `json:"priority"`
	Success   bool           `json:"success"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Message   *types.Message `json:"message,omitempty"`

	// Occurrences counts how many times the same (agent, type, state,
	// action) tuple has been recorded; duplicates merge instead of growing
	// the store.
	Occurrences int `json:"occurrences"`
}

// Experience types recorded by the core.
const (
	TypeMessageDelivery = "message_delivery"
	TypeTaskDelegation  = "task_delegation"
	TypeHelpRequest     = "help_request"
	TypeWorkflowStep    = "workflow_step"
)

// Config holds tunables for the store.
type Config struct {
	// MaxSize caps the number of stored entries. 0 means the default.
	MaxSize int `yaml:"max_size"`

	// TTL expires entries older than this. 0 disables the sweep.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired entries are swept when TTL > 0.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:       1000,
		TTL:           0,
		SweepInterval: time.Minute,
	}
}

// SampleStrategy selects how Sample picks entries.
type SampleStrategy string

const (
	SamplePrioritized SampleStrategy = "prioritized"
	SampleRandom      SampleStrategy = "random"
)

// SampleFilter narrows Sample, all fields optional.
type SampleFilter struct {
	AgentID      string
	Type         string
	MinPriority  float64
	FailuresOnly bool
	Strategy     SampleStrategy
}

// Stats summarizes the store for the collaboration layer.
type Stats struct {
	Total          int            `json:"total"`
	ByAgent        map[string]int `json:"by_agent"`
	ByType         map[string]int `json:"by_type"`
	ByPriority     map[string]int `json:"by_priority"`
	AddedLast10Min int            `json:"added_last_10_min"`
}

// Store is the in-memory experience replay buffer. All methods are safe
// for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries []*Experience
	byKey   map[string]*Experience

	maxSize int
	ttl     time.Duration
	now     func() time.Time
	rng     *rand.Rand

	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// New creates a store. When config.TTL > 0 a background sweeper runs until
// Close is called.
func New(config Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultConfig().MaxSize
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		byKey:   make(map[string]*Experience),
		maxSize: config.MaxSize,
		ttl:     config.TTL,
		now:     now,
		rng:     rand.New(rand.NewSource(now().UnixNano())),
		done:    make(chan struct{}),
		logger:  logger.With(zap.String("component", "replay_store")),
	}

	if config.TTL > 0 {
		go s.sweepLoop(config.SweepInterval)
	}
	return s
}

// Close stops the background sweeper, if any.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Add records an experience. A duplicate of an existing (agent, type,
// state, action) tuple merges into it: occurrence count bumped, priority
// refreshed upward-only, timestamp refreshed. When capacity is exceeded
// the lowest-priority entries are evicted.
func (s *Store) Add(exp Experience) string {
	now := s.now()
	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Timestamp.IsZero() {
		exp.Timestamp = now
	}
	exp.Priority = clamp01(exp.Priority)
	if exp.Occurrences <= 0 {
		exp.Occurrences = 1
	}

	key := dedupKey(exp.AgentID, exp.Type, exp.State, exp.Action)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byKey[key]; ok {
		existing.Occurrences++
		if exp.Priority > existing.Priority {
			existing.Priority = exp.Priority
		}
		existing.Timestamp = now
		existing.Result = exp.Result
		existing.NextState = exp.NextState
		existing.Success = exp.Success
		return existing.ID
	}

	stored := exp
	s.entries = append(s.entries, &stored)
	s.byKey[key] = &stored

	s.evictIfNeededLocked()
	return stored.ID
}

// Sample returns up to count experiences matching filter. The prioritized
// strategy (default) returns the highest-priority matches; random returns
// a uniform subset.
func (s *Store) Sample(count int, filter SampleFilter) []Experience {
	if count <= 0 {
		return nil
	}

	// Copy matched entries by value while the read lock is held; a
	// concurrent Add may merge into the same entries at any time.
	s.mu.RLock()
	matched := make([]Experience, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.matches(e) {
			matched = append(matched, *e)
		}
	}
	s.mu.RUnlock()

	switch filter.Strategy {
	case SampleRandom:
		s.mu.Lock()
		s.rng.Shuffle(len(matched), func(i, j int) {
			matched[i], matched[j] = matched[j], matched[i]
		})
		s.mu.Unlock()
	default:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Priority > matched[j].Priority
		})
	}

	if len(matched) > count {
		matched = matched[:count]
	}
	return matched
}

// ByAgent returns all experiences owned by agentID.
func (s *Store) ByAgent(agentID string) []Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Experience
	for _, e := range s.entries {
		if e.AgentID == agentID {
			out = append(out, *e)
		}
	}
	return out
}

// ByPriority returns all experiences with priority >= threshold, highest
// first.
func (s *Store) ByPriority(threshold float64) []Experience {
	s.mu.RLock()
	var out []Experience
	for _, e := range s.entries {
		if e.Priority >= threshold {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Failed returns all negative-outcome experiences, optionally narrowed to
// one agent.
func (s *Store) Failed(agentID string) []Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Experience
	for _, e := range s.entries {
		if e.Success {
			continue
		}
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		out = append(out, *e)
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LearningStatistics summarizes the store contents.
func (s *Store) LearningStatistics() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:      len(s.entries),
		ByAgent:    make(map[string]int),
		ByType:     make(map[string]int),
		ByPriority: make(map[string]int),
	}
	cutoff := s.now().Add(-10 * time.Minute)
	for _, e := range s.entries {
		stats.ByAgent[e.AgentID]++
		stats.ByType[e.Type]++
		stats.ByPriority[priorityBucket(e.Priority)]++
		if e.Timestamp.After(cutoff) {
			stats.AddedLast10Min++
		}
	}
	return stats
}

// Sweep removes entries older than the configured TTL. It is a no-op when
// TTL is disabled. Returns the number of removed entries.
func (s *Store) Sweep(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}
	if err := ctx.Err(); err != nil {
		return 0
	}

	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			delete(s.byKey, dedupKey(e.AgentID, e.Type, e.State, e.Action))
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept

	if removed > 0 {
		s.logger.Debug("swept expired experiences", zap.Int("removed", removed))
	}
	return removed
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// evictIfNeededLocked truncates to capacity keeping the highest-priority
// entries. Eviction is by priority, not by age.
func (s *Store) evictIfNeededLocked() {
	if len(s.entries) <= s.maxSize {
		return
	}

	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].Priority > s.entries[j].Priority
	})
	evicted := s.entries[s.maxSize:]
	for _, e := range evicted {
		delete(s.byKey, dedupKey(e.AgentID, e.Type, e.State, e.Action))
	}
	s.entries = s.entries[:s.maxSize]

	s.logger.Debug("evicted low-priority experiences", zap.Int("evicted", len(evicted)))
}

func (f SampleFilter) matches(e *Experience) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if e.Priority < f.MinPriority {
		return false
	}
	if f.FailuresOnly && e.Success {
		return false
	}
	return true
}

func dedupKey(agentID, typ string, state, action any) string {
	return fmt.Sprintf("%s|%s|%s|%s", agentID, typ, serialize(state), serialize(action))
}

func serialize(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func priorityBucket(p float64) string {
	switch {
	case p >= 0.7:
		return "high"
	case p >= 0.4:
		return "medium"
	default:
		return "low"
	}
}
