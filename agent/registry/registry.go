// Package registry maintains the in-process agent directory and its
// capability index, and derives each agent's chain-of-command tier.
package registry

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/civant/agentcore/audit"
	"github.com/civant/agentcore/types"
)

// Entry is the registry's record for one registered agent.
type Entry struct {
	Agent        types.Agent
	Tier         types.Tier
	Capabilities []string
}

// Registry provides in-memory storage for agents with capability lookup.
// Lookups that find nothing return empty results, never errors.
type Registry struct {
	mu sync.RWMutex

	// agents stores registered agents by ID.
	agents map[string]*Entry

	// capabilityIndex indexes agent IDs by capability name for fast lookup.
	capabilityIndex map[string]map[string]struct{}

	recorder audit.Recorder
	logger   *zap.Logger
}

// New creates an empty registry.
func New(recorder audit.Recorder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:          make(map[string]*Entry),
		capabilityIndex: make(map[string]map[string]struct{}),
		recorder:        recorder,
		logger:          logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent to the registry. Registering an ID that already
// exists replaces the prior entry and logs a warning; the operation itself
// never fails for duplicates.
func (r *Registry) Register(ctx context.Context, a types.Agent) {
	if a == nil || a.ID() == "" {
		r.logger.Warn("ignoring registration of nil or unidentified agent")
		return
	}

	r.mu.Lock()
	id := a.ID()
	if prior, exists := r.agents[id]; exists {
		r.logger.Warn("agent re-registered, replacing prior entry",
			zap.String("agent_id", id),
			zap.Strings("prior_capabilities", prior.Capabilities),
		)
		r.removeFromIndexLocked(id, prior.Capabilities)
	}

	caps := append([]string(nil), a.Capabilities()...)
	entry := &Entry{
		Agent:        a,
		Tier:         types.DeriveTier(id),
		Capabilities: caps,
	}
	r.agents[id] = entry
	for _, c := range caps {
		idx, ok := r.capabilityIndex[c]
		if !ok {
			idx = make(map[string]struct{})
			r.capabilityIndex[c] = idx
		}
		idx[id] = struct{}{}
	}
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", id),
		zap.String("tier", string(entry.Tier)),
		zap.Int("capabilities", len(caps)),
	)

	audit.Fire(ctx, r.recorder, r.logger, audit.Event{
		Type:    audit.EventAgentRegistered,
		Actor:   id,
		Details: map[string]any{"tier": entry.Tier, "capabilities": caps},
	})
}

// Unregister removes an agent. Unknown IDs are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.agents[id]
	if !exists {
		return
	}
	r.removeFromIndexLocked(id, entry.Capabilities)
	delete(r.agents, id)
	r.logger.Info("agent unregistered", zap.String("agent_id", id))
}

// Get returns the agent registered under id, or nil when absent.
func (r *Registry) Get(id string) types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.agents[id]; ok {
		return entry.Agent
	}
	return nil
}

// Tier returns the derived tier of the agent registered under id. For
// unregistered IDs the tier is still derived from the naming convention so
// message senders outside the registry get a consistent answer.
func (r *Registry) Tier(id string) types.Tier {
	r.mu.RLock()
	entry, ok := r.agents[id]
	r.mu.RUnlock()

	if ok {
		return entry.Tier
	}
	return types.DeriveTier(id)
}

// FindByCapability returns the IDs of all agents whose declared set
// contains capability, sorted for deterministic selection.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.capabilityIndex[capability]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindByPattern returns the IDs of all agents with at least one capability
// matching pattern. The pattern is treated as a regular expression; if it
// does not compile it degrades to substring matching.
func (r *Registry) FindByPattern(pattern string) []string {
	match := func(capability string) bool {
		return strings.Contains(capability, pattern)
	}
	if re, err := regexp.Compile(pattern); err == nil {
		match = re.MatchString
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for capability, ids := range r.capabilityIndex {
		if !match(capability) {
			continue
		}
		for id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// List returns all registered agent IDs, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) removeFromIndexLocked(id string, capabilities []string) {
	for _, c := range capabilities {
		if idx, ok := r.capabilityIndex[c]; ok {
			delete(idx, id)
			if len(idx) == 0 {
				delete(r.capabilityIndex, c)
			}
		}
	}
}
