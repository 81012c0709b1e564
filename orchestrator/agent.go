package orchestrator

import (
	"time"

	"github.com/scriptvault/agentcore/memory"
	"github.com/scriptvault/agentcore/types"
)

// Agent is a role-specialized worker. An agent holds at most one active
// task; it is available for assignment exactly when CurrentTaskID is empty.
// The agent's memory system is runtime state and is not serialized with the
// orchestrator snapshot; restored agents start with fresh memories.
type Agent struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Role          types.AgentRole     `json:"role"`
	Capabilities  types.CapabilitySet `json:"capabilities"`
	CurrentTaskID string              `json:"current_task_id,omitempty"`
	TaskHistory   []string            `json:"task_history"`
	CreatedAt     time.Time           `json:"created_at"`
	LastActiveAt  time.Time           `json:"last_active_at"`

	memory *memory.EnhancedMemorySystem
}

// clone copies the agent without its memory system.
func (a *Agent) clone() *Agent {
	out := *a
	out.Capabilities = a.Capabilities.Clone()
	out.TaskHistory = append([]string(nil), a.TaskHistory...)
	out.memory = nil
	return &out
}

// CanHandle reports whether the agent's capability set covers every
// capability the task requires.
func (a *Agent) CanHandle(task *Task) bool {
	return a.Capabilities.ContainsAll(task.RequiredCapabilities)
}

// Available reports whether the agent can take a new task.
func (a *Agent) Available() bool {
	return a.CurrentTaskID == ""
}

// Memory returns the agent's own memory system.
func (a *Agent) Memory() *memory.EnhancedMemorySystem {
	return a.memory
}

// finishTask releases the agent from its active task, recording it in the
// history regardless of outcome.
func (a *Agent) finishTask(taskID string, now time.Time) {
	a.TaskHistory = append(a.TaskHistory, taskID)
	a.CurrentTaskID = ""
	a.LastActiveAt = now
}
