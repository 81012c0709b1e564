package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/scriptvault/agentcore/memory"
	"github.com/scriptvault/agentcore/statestore"
	"github.com/scriptvault/agentcore/types"
)

// State is the serialized form of the orchestrator: the full agent and
// task populations plus the message log. Agent memory systems are not part
// of it; restored agents start with fresh memory.
type State struct {
	Agents   map[string]*Agent `json:"agents"`
	Tasks    map[string]*Task  `json:"tasks"`
	Messages []*Message        `json:"messages"`
}

// Snapshot captures the current state. The returned state is an
// independent copy, so callers may serialize it without holding up (or
// racing with) further operations.
func (s *MultiAgentSystem) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		Agents:   make(map[string]*Agent, len(s.agents)),
		Tasks:    make(map[string]*Task, len(s.tasks)),
		Messages: make([]*Message, 0, len(s.messages)),
	}
	for id, agent := range s.agents {
		state.Agents[id] = agent.clone()
	}
	for id, task := range s.tasks {
		state.Tasks[id] = task.clone()
	}
	for _, message := range s.messages {
		state.Messages = append(state.Messages, message.clone())
	}
	return state
}

// Restore replaces the orchestrator's population with the snapshot.
// Every restored agent gets a fresh memory system; the coordinator is
// re-attached to the shared system memory. Assignment order is rebuilt
// from agent creation times.
func (s *MultiAgentSystem) Restore(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = make(map[string]*Agent, len(state.Agents))
	s.agentOrder = make([]string, 0, len(state.Agents))
	for id, agent := range state.Agents {
		if agent.Role == types.RoleCoordinator {
			agent.memory = s.systemMemory
		} else {
			agent.memory = memory.NewEnhancedMemorySystem(s.memoryConfig, s.logger)
		}
		if agent.Capabilities == nil {
			agent.Capabilities = types.NewCapabilitySet()
		}
		if agent.TaskHistory == nil {
			agent.TaskHistory = make([]string, 0)
		}
		s.agents[id] = agent
		s.agentOrder = append(s.agentOrder, id)
	}
	sort.SliceStable(s.agentOrder, func(i, j int) bool {
		a, b := s.agents[s.agentOrder[i]], s.agents[s.agentOrder[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	s.tasks = make(map[string]*Task, len(state.Tasks))
	for id, task := range state.Tasks {
		if task.RequiredCapabilities == nil {
			task.RequiredCapabilities = types.NewCapabilitySet()
		}
		s.tasks[id] = task
	}

	s.messages = append([]*Message(nil), state.Messages...)

	agentsRegistered.Set(float64(len(s.agents)))
	s.updateBlockedGauge()
}

// SaveState writes the orchestrator state to a JSON file, returning false
// on any error.
func (s *MultiAgentSystem) SaveState(ctx context.Context, path string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.SaveState")
	defer span.End()

	state := s.Snapshot()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal system state", zap.Error(err))
		return false
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("failed to create state directory", zap.Error(err))
		return false
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("failed to write system state", zap.Error(err))
		return false
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Error("failed to replace system state file", zap.Error(err))
		return false
	}
	s.logger.Info("saved system state", zap.String("path", path))
	return true
}

// LoadState restores the orchestrator state from a JSON file, returning
// false on any error.
func (s *MultiAgentSystem) LoadState(ctx context.Context, path string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.LoadState")
	defer span.End()

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to read system state", zap.String("path", path), zap.Error(err))
		return false
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Error("failed to parse system state", zap.String("path", path), zap.Error(err))
		return false
	}
	s.Restore(state)
	s.logger.Info("loaded system state", zap.String("path", path))
	return true
}

// SaveTo persists the orchestrator state through a state store backend.
func (s *MultiAgentSystem) SaveTo(ctx context.Context, store statestore.Store, key string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.SaveTo")
	defer span.End()

	state := s.Snapshot()
	if err := store.Save(ctx, key, state); err != nil {
		s.logger.Error("failed to save system state to store",
			zap.String("key", key), zap.Error(err))
		return false
	}
	s.logger.Info("saved system state to store", zap.String("key", key))
	return true
}

// LoadFrom restores the orchestrator state from a state store backend.
func (s *MultiAgentSystem) LoadFrom(ctx context.Context, store statestore.Store, key string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.LoadFrom")
	defer span.End()

	var state State
	if err := store.Load(ctx, key, &state); err != nil {
		s.logger.Error("failed to load system state from store",
			zap.String("key", key), zap.Error(err))
		return false
	}
	s.Restore(state)
	s.logger.Info("loaded system state from store", zap.String("key", key))
	return true
}

// SystemStats summarizes the orchestrator population.
type SystemStats struct {
	Agents        int                     `json:"agents"`
	Tasks         int                     `json:"tasks"`
	Messages      int                     `json:"messages"`
	TasksByStatus map[TaskStatus]int      `json:"tasks_by_status"`
	TasksByAgent  map[string]int          `json:"tasks_by_agent"`
	AgentsByRole  map[types.AgentRole]int `json:"agents_by_role"`
}

// Stats returns counts of agents, tasks, and messages broken down by
// status, assignee, and role.
func (s *MultiAgentSystem) Stats() SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SystemStats{
		Agents:        len(s.agents),
		Tasks:         len(s.tasks),
		Messages:      len(s.messages),
		TasksByStatus: make(map[TaskStatus]int),
		TasksByAgent:  make(map[string]int),
		AgentsByRole:  make(map[types.AgentRole]int),
	}
	for _, task := range s.tasks {
		stats.TasksByStatus[task.Status]++
		if task.AssignedAgentID != "" {
			stats.TasksByAgent[task.AssignedAgentID]++
		}
	}
	for _, agent := range s.agents {
		stats.AgentsByRole[agent.Role]++
	}
	return stats
}
