package types

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AgentRole identifies the function an agent performs within the system.
// The set of roles is closed; adding a role is a schema change.
type AgentRole string

const (
	// RoleCoordinator coordinates the overall task and delegates to specialists.
	// Exactly one coordinator exists per system and it cannot be removed.
	RoleCoordinator AgentRole = "coordinator"

	// RoleAnalyst analyzes data and provides insights.
	RoleAnalyst AgentRole = "analyst"

	// RoleExecutor executes actions in the environment.
	RoleExecutor AgentRole = "executor"

	// RoleCritic evaluates plans and results.
	RoleCritic AgentRole = "critic"

	// RoleResearcher gathers information from external sources.
	RoleResearcher AgentRole = "researcher"

	// RolePlanner creates plans for complex tasks.
	RolePlanner AgentRole = "planner"

	// RoleSpecialist is specialized in a specific domain.
	RoleSpecialist AgentRole = "specialist"

	// RoleAssistant assists other agents with their tasks.
	RoleAssistant AgentRole = "assistant"
)

// Roles lists every valid agent role.
func Roles() []AgentRole {
	return []AgentRole{
		RoleCoordinator,
		RoleAnalyst,
		RoleExecutor,
		RoleCritic,
		RoleResearcher,
		RolePlanner,
		RoleSpecialist,
		RoleAssistant,
	}
}

// Valid reports whether the role is a member of the closed role set.
func (r AgentRole) Valid() bool {
	switch r {
	case RoleCoordinator, RoleAnalyst, RoleExecutor, RoleCritic,
		RoleResearcher, RolePlanner, RoleSpecialist, RoleAssistant:
		return true
	default:
		return false
	}
}

// AgentCapability is a tagged skill an agent offers and a task requires.
// The set of capabilities is closed; adding one is a schema change.
type AgentCapability string

const (
	CapScriptAnalysis   AgentCapability = "script_analysis"
	CapSecurityAnalysis AgentCapability = "security_analysis"
	CapCodeGeneration   AgentCapability = "code_generation"
	CapDocumentation    AgentCapability = "documentation"
	CapCategorization   AgentCapability = "categorization"
	CapOptimization     AgentCapability = "optimization"
	CapToolUse          AgentCapability = "tool_use"
	CapPlanning         AgentCapability = "planning"
	CapReasoning        AgentCapability = "reasoning"
	CapLearning         AgentCapability = "learning"
	CapCommunication    AgentCapability = "communication"
	CapMemoryManagement AgentCapability = "memory_management"
)

// Capabilities lists every valid agent capability.
func Capabilities() []AgentCapability {
	return []AgentCapability{
		CapScriptAnalysis,
		CapSecurityAnalysis,
		CapCodeGeneration,
		CapDocumentation,
		CapCategorization,
		CapOptimization,
		CapToolUse,
		CapPlanning,
		CapReasoning,
		CapLearning,
		CapCommunication,
		CapMemoryManagement,
	}
}

// Valid reports whether the capability is a member of the closed set.
func (c AgentCapability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// CapabilitySet is an unordered set of capabilities. Assignment decisions are
// pure set operations over it: superset tests for eligibility and
// intersection counts for best-fit ranking.
type CapabilitySet map[AgentCapability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...AgentCapability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether the set contains c.
func (s CapabilitySet) Has(c AgentCapability) bool {
	_, ok := s[c]
	return ok
}

// ContainsAll reports whether the set is a superset of other.
func (s CapabilitySet) ContainsAll(other CapabilitySet) bool {
	for c := range other {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

// IntersectionSize counts the capabilities present in both sets.
func (s CapabilitySet) IntersectionSize(other CapabilitySet) int {
	n := 0
	for c := range other {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the set.
func (s CapabilitySet) Clone() CapabilitySet {
	out := make(CapabilitySet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Slice returns the capabilities in lexical order for deterministic output.
func (s CapabilitySet) Slice() []AgentCapability {
	out := make([]AgentCapability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted string array.
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes a string array into the set.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var caps []AgentCapability
	if err := json.Unmarshal(data, &caps); err != nil {
		return fmt.Errorf("capability set: %w", err)
	}
	*s = NewCapabilitySet(caps...)
	return nil
}
