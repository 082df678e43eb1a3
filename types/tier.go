package types

import "strings"

// Tier represents an agent's authority level in the chain of command.
// The five tiers govern who may message whom; see router.Router for the
// validity and visibility rules built on top of them.
type Tier string

const (
	TierSystem              Tier = "system"
	TierStrategicLeadership Tier = "strategic-leadership"
	TierTacticalLeadership  Tier = "tactical-leadership"
	TierComponentLeadership Tier = "component-leadership"
	TierSpecialist          Tier = "specialist"
)

// DeriveTier 根据 Agent ID 的命名约定推导其所属层级。
// 规则是固定的，按顺序匹配，未命中任何规则的 ID 归为 Specialist。
func DeriveTier(agentID string) Tier {
	switch {
	case agentID == "architect-prime":
		return TierStrategicLeadership
	case agentID == "integration-coordinator":
		return TierTacticalLeadership
	case strings.Contains(agentID, "lead"):
		return TierComponentLeadership
	case strings.Contains(agentID, "core"), strings.Contains(agentID, "master-control"):
		return TierSystem
	default:
		return TierSpecialist
	}
}

// TierRank returns the ordinal rank of a tier, higher means more authority.
// Unknown tiers rank below Specialist.
func TierRank(t Tier) int {
	switch t {
	case TierSystem:
		return 5
	case TierStrategicLeadership:
		return 4
	case TierTacticalLeadership:
		return 3
	case TierComponentLeadership:
		return 2
	case TierSpecialist:
		return 1
	default:
		return 0
	}
}
