package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddDeduplicates(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	defer s.Close()

	exp := Experience{
		AgentID:  "valuation-specialist",
		Type:     TypeTaskDelegation,
		State:    map[string]any{"parcel": "P-1"},
		Action:   map[string]any{"capability": "valuation"},
		Priority: 0.3,
	}
	id1 := s.Add(exp)

	exp.Priority = 0.8
	id2 := s.Add(exp)

	assert.Equal(t, id1, id2, "duplicate merges into existing entry")
	require.Equal(t, 1, s.Len())

	stored := s.ByAgent("valuation-specialist")
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].Occurrences)
	assert.Equal(t, 0.8, stored[0].Priority, "priority refreshes upward")

	// lower priority does not pull the merged entry back down
	exp.Priority = 0.1
	s.Add(exp)
	stored = s.ByAgent("valuation-specialist")
	assert.Equal(t, 0.8, stored[0].Priority)
	assert.Equal(t, 3, stored[0].Occurrences)
}

func TestStore_EvictsLowestPriorityNotOldest(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxSize = 3
	s := New(cfg, nil)
	defer s.Close()

	// oldest entry has the highest priority
	s.Add(Experience{AgentID: "a", Type: "t", State: 1, Priority: 0.9})
	s.Add(Experience{AgentID: "a", Type: "t", State: 2, Priority: 0.1})
	s.Add(Experience{AgentID: "a", Type: "t", State: 3, Priority: 0.5})
	s.Add(Experience{AgentID: "a", Type: "t", State: 4, Priority: 0.7})

	require.Equal(t, 3, s.Len())

	kept := s.ByPriority(0)
	priorities := make([]float64, 0, len(kept))
	for _, e := range kept {
		priorities = append(priorities, e.Priority)
	}
	assert.Equal(t, []float64{0.9, 0.7, 0.5}, priorities, "lowest priority evicted, oldest survives")
}

func TestStore_SamplePrioritized(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	defer s.Close()

	s.Add(Experience{AgentID: "a", Type: "t", State: 1, Priority: 0.2})
	s.Add(Experience{AgentID: "a", Type: "t", State: 2, Priority: 0.9})
	s.Add(Experience{AgentID: "b", Type: "t", State: 3, Priority: 0.5})

	top := s.Sample(2, SampleFilter{})
	require.Len(t, top, 2)
	assert.Equal(t, 0.9, top[0].Priority)
	assert.Equal(t, 0.5, top[1].Priority)

	onlyA := s.Sample(10, SampleFilter{AgentID: "a"})
	assert.Len(t, onlyA, 2)

	random := s.Sample(10, SampleFilter{Strategy: SampleRandom})
	assert.Len(t, random, 3)

	assert.Nil(t, s.Sample(0, SampleFilter{}))
}

func TestStore_FailedFilter(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	defer s.Close()

	s.Add(Experience{AgentID: "a", Type: "t", State: 1, Success: true})
	s.Add(Experience{AgentID: "a", Type: "t", State: 2, Success: false})
	s.Add(Experience{AgentID: "b", Type: "t", State: 3, Success: false})

	assert.Len(t, s.Failed(""), 2)
	assert.Len(t, s.Failed("a"), 1)
	assert.Len(t, s.Sample(10, SampleFilter{FailuresOnly: true}), 2)
}

func TestStore_LearningStatistics(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	s := New(cfg, nil)
	defer s.Close()

	s.Add(Experience{AgentID: "a", Type: TypeMessageDelivery, State: 1, Priority: 0.9})
	s.Add(Experience{AgentID: "a", Type: TypeTaskDelegation, State: 2, Priority: 0.5})
	s.Add(Experience{AgentID: "b", Type: TypeTaskDelegation, State: 3, Priority: 0.1,
		Timestamp: now.Add(-time.Hour)})

	stats := s.LearningStatistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByAgent["a"])
	assert.Equal(t, 2, stats.ByType[TypeTaskDelegation])
	assert.Equal(t, 1, stats.ByPriority["high"])
	assert.Equal(t, 1, stats.ByPriority["medium"])
	assert.Equal(t, 1, stats.ByPriority["low"])
	assert.Equal(t, 2, stats.AddedLast10Min)
}

func TestStore_SweepRemovesExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	cfg.SweepInterval = time.Hour // keep the background loop quiet
	cfg.Now = func() time.Time { return now }
	s := New(cfg, nil)
	defer s.Close()

	s.Add(Experience{AgentID: "a", Type: "t", State: 1, Timestamp: now.Add(-2 * time.Hour)})
	s.Add(Experience{AgentID: "a", Type: "t", State: 2})

	removed := s.Sweep(context.Background())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())

	// swept keys can be re-added as fresh entries
	s.Add(Experience{AgentID: "a", Type: "t", State: 1})
	assert.Equal(t, 2, s.Len())
}

func TestStore_PriorityClamped(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	defer s.Close()

	s.Add(Experience{AgentID: "a", Type: "t", State: 1, Priority: 7})
	s.Add(Experience{AgentID: "a", Type: "t", State: 2, Priority: -3})

	all := s.ByPriority(0)
	require.Len(t, all, 2)
	assert.Equal(t, 1.0, all[0].Priority)
	assert.Equal(t, 0.0, all[1].Priority)
}

func TestStore_SampleConcurrentWithMerges(t *testing.T) {
	t.Parallel()

	s := New(DefaultConfig(), nil)
	defer s.Close()

	base := Experience{
		AgentID:  "gis-specialist",
		Type:     TypeMessageDelivery,
		State:    map[string]any{"parcel": "P-1"},
		Action:   map[string]any{"deliver": "direct"},
		Priority: 0.4,
	}
	s.Add(base)

	// Writers keep merging into the same dedup key (mutating Occurrences,
	// Priority and Timestamp in place) while readers sample both strategies.
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Add(base)
			}
		}()
	}
	strategies := []SampleStrategy{SamplePrioritized, SampleRandom}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(strategy SampleStrategy) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, e := range s.Sample(10, SampleFilter{Strategy: strategy}) {
					if e.Occurrences < 1 {
						t.Error("sampled a partially merged entry")
						return
					}
				}
			}
		}(strategies[r%2])
	}
	wg.Wait()

	require.Equal(t, 1, s.Len())
}
