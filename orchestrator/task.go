package orchestrator

import (
	"time"

	"github.com/scriptvault/agentcore/types"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to be assigned.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusAssigned indicates an agent has been selected for the task.
	TaskStatusAssigned TaskStatus = "assigned"

	// TaskStatusInProgress indicates the external executor started the task.
	TaskStatusInProgress TaskStatus = "in_progress"

	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusBlocked indicates the task is gated on incomplete dependencies.
	TaskStatusBlocked TaskStatus = "blocked"

	// TaskStatusCancelled indicates the task was cancelled before finishing.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true for states a task never leaves.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task is a unit of work routed to agents by capability match and priority.
// Links to other tasks and agents are plain ids, never live references, so
// snapshots and removals cannot dangle.
type Task struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Description          string              `json:"description"`
	RequiredCapabilities types.CapabilitySet `json:"required_capabilities"`
	Priority             int                 `json:"priority"`
	ParentTaskID         string              `json:"parent_task_id,omitempty"`

	// Deadline is advisory metadata only; nothing expires tasks internally.
	Deadline *time.Time `json:"deadline,omitempty"`

	Context         map[string]any `json:"context,omitempty"`
	Status          TaskStatus     `json:"status"`
	AssignedAgentID string         `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`

	// Result and Error are mutually exclusive terminal payloads.
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	// Subtasks are child task ids; Dependencies must all reach completed
	// before this task may be assigned.
	Subtasks     []string `json:"subtasks"`
	Dependencies []string `json:"dependencies"`
}

// clone returns an independent copy of the task. Content values held in
// Context and Result are shared; the orchestrator never mutates them.
func (t *Task) clone() *Task {
	out := *t
	out.RequiredCapabilities = t.RequiredCapabilities.Clone()
	out.Subtasks = append([]string(nil), t.Subtasks...)
	out.Dependencies = append([]string(nil), t.Dependencies...)
	if t.Context != nil {
		out.Context = make(map[string]any, len(t.Context))
		for k, v := range t.Context {
			out.Context[k] = v
		}
	}
	if t.Deadline != nil {
		d := *t.Deadline
		out.Deadline = &d
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return &out
}

// Start moves an assigned task to in-progress. The orchestrator never calls
// this; it belongs to whatever external executor drives the agent's work.
func (t *Task) Start() {
	t.Status = TaskStatusInProgress
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) assign(agentID string) {
	t.AssignedAgentID = agentID
	t.Status = TaskStatusAssigned
}

func (t *Task) complete(result any, now time.Time) {
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.Result = result
}

func (t *Task) fail(errMsg string, now time.Time) {
	t.Status = TaskStatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
}

func (t *Task) block() {
	t.Status = TaskStatusBlocked
}

func (t *Task) cancel(now time.Time) {
	t.Status = TaskStatusCancelled
	t.CompletedAt = &now
}

// AddSubtask records a child task id, once.
func (t *Task) AddSubtask(taskID string) {
	for _, id := range t.Subtasks {
		if id == taskID {
			return
		}
	}
	t.Subtasks = append(t.Subtasks, taskID)
}

// AddDependency records a prerequisite task id, once.
func (t *Task) AddDependency(taskID string) {
	for _, id := range t.Dependencies {
		if id == taskID {
			return
		}
	}
	t.Dependencies = append(t.Dependencies, taskID)
}
