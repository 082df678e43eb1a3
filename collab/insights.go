package collab

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civant/agentcore/replay"
)

// Suggestion is one improvement hint mined from an agent's failures.
type Suggestion struct {
	Reason         string `json:"reason"`
	Count          int    `json:"count"`
	Priority       string `json:"priority"`
	Recommendation string `json:"recommendation"`
}

// ImprovementSuggestions groups an agent's failed experiences by failure
// reason and ranks the groups by how often they recur.
func (s *Service) ImprovementSuggestions(agentID string) []Suggestion {
	if s.store == nil {
		return nil
	}
	failed := s.store.Failed(agentID)
	if len(failed) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, exp := range failed {
		counts[failureReason(exp)] += exp.Occurrences
	}
	return buildSuggestions(counts)
}

func buildSuggestions(counts map[string]int) []Suggestion {
	suggestions := make([]Suggestion, 0, len(counts))
	for reason, count := range counts {
		suggestions = append(suggestions, Suggestion{
			Reason:         reason,
			Count:          count,
			Priority:       suggestionPriority(count),
			Recommendation: fmt.Sprintf("Recurring failure %q observed %d time(s); review the agent's handling of this case", reason, count),
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Count != suggestions[j].Count {
			return suggestions[i].Count > suggestions[j].Count
		}
		return suggestions[i].Reason < suggestions[j].Reason
	})
	return suggestions
}

func failureReason(exp replay.Experience) string {
	if t, ok := exp.Metadata["error_type"].(string); ok && t != "" {
		return t
	}
	if msg, ok := exp.Metadata["error"].(string); ok && msg != "" {
		if len(msg) > 48 {
			msg = msg[:48]
		}
		return msg
	}
	return exp.Type
}

func suggestionPriority(count int) string {
	switch {
	case count >= 5:
		return "high"
	case count >= 2:
		return "medium"
	default:
		return "low"
	}
}

// TrainingReport summarizes one TrainNetwork pass.
type TrainingReport struct {
	AgentsAnalyzed       int                     `json:"agents_analyzed"`
	ExperiencesProcessed int                     `json:"experiences_processed"`
	SuggestionsByAgent   map[string][]Suggestion `json:"suggestions_by_agent,omitempty"`
	HighPrioritySampled  int                     `json:"high_priority_sampled"`
}

// TrainNetwork mines the replay store for recurring failures across all
// agents, processing each agent's experiences concurrently in batches of
// batchSize. The report maps every agent with failures to its ranked
// suggestions.
func (s *Service) TrainNetwork(ctx context.Context, batchSize int) (TrainingReport, error) {
	if s.store == nil {
		return TrainingReport{}, nil
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	stats := s.store.LearningStatistics()
	agents := make([]string, 0, len(stats.ByAgent))
	for id := range stats.ByAgent {
		agents = append(agents, id)
	}
	sort.Strings(agents)

	var (
		mu     sync.Mutex
		report = TrainingReport{SuggestionsByAgent: make(map[string][]Suggestion)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, agentID := range agents {
		agentID := agentID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			exps := s.store.ByAgent(agentID)

			// Mine failure reasons one batch at a time; cancellation is
			// honored between batches.
			counts := make(map[string]int)
			processed := 0
			for start := 0; start < len(exps); start += batchSize {
				if err := gctx.Err(); err != nil {
					return err
				}
				end := start + batchSize
				if end > len(exps) {
					end = len(exps)
				}
				for _, exp := range exps[start:end] {
					processed++
					if exp.Success {
						continue
					}
					counts[failureReason(exp)] += exp.Occurrences
				}
			}
			suggestions := buildSuggestions(counts)

			mu.Lock()
			report.AgentsAnalyzed++
			report.ExperiencesProcessed += processed
			if len(suggestions) > 0 {
				report.SuggestionsByAgent[agentID] = suggestions
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TrainingReport{}, err
	}

	report.HighPrioritySampled = len(s.store.ByPriority(0.7))

	s.logger.Info("training pass complete",
		zap.Int("agents", report.AgentsAnalyzed),
		zap.Int("experiences", report.ExperiencesProcessed))
	return report, nil
}
