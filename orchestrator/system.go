package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scriptvault/agentcore/memory"
	"github.com/scriptvault/agentcore/types"
)

const tracerName = "github.com/scriptvault/agentcore/orchestrator"

// Config configures a MultiAgentSystem.
type Config struct {
	// AgentMemory configures the per-agent memory systems (and the system
	// memory shared with the coordinator).
	AgentMemory memory.SystemConfig

	// CascadeFailure, when set, propagates a task failure to every task
	// that transitively depends on it. Off by default: the conservative
	// behaviour leaves dependents of a failed task blocked forever.
	CascadeFailure bool

	// Now is used for testing. Defaults to time.Now.
	Now func() time.Time
}

// TaskSpec describes a task to create.
type TaskSpec struct {
	Name                 string
	Description          string
	RequiredCapabilities types.CapabilitySet
	Priority             int
	ParentTaskID         string
	Deadline             *time.Time
	Context              map[string]any
	Dependencies         []string
}

// MultiAgentSystem owns the full population of agents, tasks, and messages
// and drives the task lifecycle. One mutex serializes every public
// operation; persistence I/O happens outside it.
type MultiAgentSystem struct {
	mu         sync.Mutex
	agents     map[string]*Agent
	agentOrder []string // insertion order, stabilizes assignment ties
	tasks      map[string]*Task
	messages   []*Message

	systemMemory   *memory.EnhancedMemorySystem
	memoryConfig   memory.SystemConfig
	cascadeFailure bool

	now    func() time.Time
	logger *zap.Logger
	tracer trace.Tracer
}

// NewMultiAgentSystem creates an orchestrator with its coordinator agent
// already registered. The coordinator shares the system memory and carries
// the planning, reasoning, communication, and memory management
// capabilities.
func NewMultiAgentSystem(config Config, logger *zap.Logger) *MultiAgentSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	s := &MultiAgentSystem{
		agents:         make(map[string]*Agent),
		tasks:          make(map[string]*Task),
		messages:       make([]*Message, 0),
		systemMemory:   memory.NewEnhancedMemorySystem(config.AgentMemory, logger),
		memoryConfig:   config.AgentMemory,
		cascadeFailure: config.CascadeFailure,
		now:            now,
		logger:         logger.With(zap.String("component", "multi_agent_system")),
		tracer:         otel.Tracer(tracerName),
	}

	coordinator := s.newAgent("Coordinator", types.RoleCoordinator, types.NewCapabilitySet(
		types.CapPlanning,
		types.CapReasoning,
		types.CapCommunication,
		types.CapMemoryManagement,
	))
	coordinator.memory = s.systemMemory
	s.register(coordinator)
	return s
}

// SystemMemory returns the memory system shared with the coordinator.
func (s *MultiAgentSystem) SystemMemory() *memory.EnhancedMemorySystem {
	return s.systemMemory
}

func (s *MultiAgentSystem) newAgent(name string, role types.AgentRole, capabilities types.CapabilitySet) *Agent {
	now := s.now()
	if capabilities == nil {
		capabilities = types.NewCapabilitySet()
	}
	return &Agent{
		ID:           uuid.NewString(),
		Name:         name,
		Role:         role,
		Capabilities: capabilities,
		TaskHistory:  make([]string, 0),
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// register adds an agent; callers hold the lock or own the instance.
func (s *MultiAgentSystem) register(agent *Agent) {
	s.agents[agent.ID] = agent
	s.agentOrder = append(s.agentOrder, agent.ID)
	agentsRegistered.Set(float64(len(s.agents)))
}

// AddAgent creates and registers a worker agent with its own memory system.
// It always succeeds and returns the new agent id.
func (s *MultiAgentSystem) AddAgent(ctx context.Context, name string, role types.AgentRole, capabilities types.CapabilitySet) string {
	_, span := s.tracer.Start(ctx, "orchestrator.AddAgent",
		trace.WithAttributes(attribute.String("agent.role", string(role))))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	agent := s.newAgent(name, role, capabilities)
	agent.memory = memory.NewEnhancedMemorySystem(s.memoryConfig, s.logger)
	s.register(agent)

	s.logger.Info("added agent",
		zap.String("agent_id", agent.ID),
		zap.String("name", name),
		zap.String("role", string(role)))

	// A new worker may satisfy a task nobody could handle before.
	s.retryPending()
	return agent.ID
}

// RemoveAgent unregisters an agent. Removing the coordinator is refused so
// exactly one coordinator exists at all times. An active task held by the
// removed agent is cancelled.
func (s *MultiAgentSystem) RemoveAgent(ctx context.Context, agentID string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.RemoveAgent",
		trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[agentID]
	if !ok {
		s.logger.Warn("agent not found", zap.String("agent_id", agentID))
		return false
	}
	if agent.Role == types.RoleCoordinator {
		s.logger.Warn("cannot remove the coordinator agent", zap.String("agent_id", agentID))
		return false
	}

	if agent.CurrentTaskID != "" {
		if task, ok := s.tasks[agent.CurrentTaskID]; ok && !task.Status.IsTerminal() {
			task.cancel(s.now())
			tasksCancelledTotal.Inc()
			s.logger.Info("cancelled task of removed agent",
				zap.String("task_id", task.ID), zap.String("agent_id", agentID))
		}
	}

	delete(s.agents, agentID)
	for i, id := range s.agentOrder {
		if id == agentID {
			s.agentOrder = append(s.agentOrder[:i], s.agentOrder[i+1:]...)
			break
		}
	}
	agentsRegistered.Set(float64(len(s.agents)))
	s.logger.Info("removed agent", zap.String("agent_id", agentID))
	return true
}

// CreateTask registers a new pending task, links it to its parent if any,
// and immediately attempts assignment. The task id is returned whether or
// not an agent could be found.
func (s *MultiAgentSystem) CreateTask(ctx context.Context, spec TaskSpec) string {
	_, span := s.tracer.Start(ctx, "orchestrator.CreateTask",
		trace.WithAttributes(attribute.String("task.name", spec.Name)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	capabilities := spec.RequiredCapabilities
	if capabilities == nil {
		capabilities = types.NewCapabilitySet()
	}
	task := &Task{
		ID:                   uuid.NewString(),
		Name:                 spec.Name,
		Description:          spec.Description,
		RequiredCapabilities: capabilities,
		Priority:             spec.Priority,
		ParentTaskID:         spec.ParentTaskID,
		Deadline:             spec.Deadline,
		Context:              spec.Context,
		Status:               TaskStatusPending,
		CreatedAt:            s.now(),
		Subtasks:             make([]string, 0),
		Dependencies:         append([]string(nil), spec.Dependencies...),
	}
	s.tasks[task.ID] = task
	tasksCreatedTotal.Inc()

	if spec.ParentTaskID != "" {
		if parent, ok := s.tasks[spec.ParentTaskID]; ok {
			parent.AddSubtask(task.ID)
		}
	}

	s.logger.Info("created task",
		zap.String("task_id", task.ID),
		zap.String("name", task.Name),
		zap.Int("priority", task.Priority))

	s.assignTask(task.ID)
	s.updateBlockedGauge()
	return task.ID
}

// assignTask attempts to hand the task to the best-fit available agent.
// Callers hold the lock.
//
// A task is assignable only when it has no agent yet and every dependency
// has completed; otherwise it is marked blocked and deferred. Among
// available agents whose capabilities cover the requirement, the one with
// the largest overlap with the required set wins; ties go to the earliest
// registered agent. With no eligible agent the task stays pending.
func (s *MultiAgentSystem) assignTask(taskID string) bool {
	task, ok := s.tasks[taskID]
	if !ok {
		s.logger.Warn("task not found", zap.String("task_id", taskID))
		return false
	}
	if task.AssignedAgentID != "" {
		s.logger.Warn("task already assigned",
			zap.String("task_id", taskID),
			zap.String("agent_id", task.AssignedAgentID))
		return false
	}

	for _, depID := range task.Dependencies {
		if dep, ok := s.tasks[depID]; ok && dep.Status != TaskStatusCompleted {
			s.logger.Info("task blocked by dependency",
				zap.String("task_id", taskID),
				zap.String("dependency_id", depID))
			task.block()
			return false
		}
	}

	var best *Agent
	bestOverlap := -1
	for _, agentID := range s.agentOrder {
		agent := s.agents[agentID]
		if !agent.Available() || !agent.CanHandle(task) {
			continue
		}
		overlap := agent.Capabilities.IntersectionSize(task.RequiredCapabilities)
		if overlap > bestOverlap {
			best = agent
			bestOverlap = overlap
		}
	}
	if best == nil {
		s.logger.Info("no available agent can handle task", zap.String("task_id", taskID))
		return false
	}

	task.assign(best.ID)
	best.CurrentTaskID = task.ID
	tasksAssignedTotal.Inc()
	s.logger.Info("assigned task",
		zap.String("task_id", task.ID),
		zap.String("agent_id", best.ID),
		zap.String("agent_name", best.Name))
	return true
}

// StartTask moves an assigned task to in-progress on behalf of the external
// executor driving the agent's work.
func (s *MultiAgentSystem) StartTask(ctx context.Context, taskID string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.StartTask",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		s.logger.Warn("task not found", zap.String("task_id", taskID))
		return false
	}
	if task.Status != TaskStatusAssigned {
		s.logger.Warn("task is not assigned",
			zap.String("task_id", taskID),
			zap.String("status", string(task.Status)))
		return false
	}
	task.Status = TaskStatusInProgress
	now := s.now()
	task.StartedAt = &now
	return true
}

// CompleteTask finishes a task successfully, frees its agent, and
// re-evaluates every blocked task in the same call: any task whose
// dependencies are now all completed moves back to pending and is
// re-attempted for assignment. Pending tasks no agent could take before
// are also retried, since the freed agent may now cover one.
func (s *MultiAgentSystem) CompleteTask(ctx context.Context, taskID string, result any) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.CompleteTask",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, agent, ok := s.assignedTask(taskID)
	if !ok {
		return false
	}

	now := s.now()
	task.complete(result, now)
	agent.finishTask(task.ID, now)
	tasksCompletedTotal.Inc()
	s.logger.Info("completed task", zap.String("task_id", taskID))

	s.checkBlockedTasks()
	s.retryPending()
	return true
}

// FailTask finishes a task with an error and frees its agent. Dependents
// are not unblocked: a failed prerequisite leaves them blocked, unless
// cascade failure is enabled, in which case they fail too.
func (s *MultiAgentSystem) FailTask(ctx context.Context, taskID, errMsg string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.FailTask",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, agent, ok := s.assignedTask(taskID)
	if !ok {
		return false
	}

	now := s.now()
	task.fail(errMsg, now)
	agent.finishTask(task.ID, now)
	tasksFailedTotal.Inc()
	s.logger.Info("failed task", zap.String("task_id", taskID), zap.String("error", errMsg))

	if s.cascadeFailure {
		s.cascadeFail(taskID)
	}
	// The freed agent may cover a task nobody could take before.
	s.retryPending()
	return true
}

// assignedTask resolves a task and its assigned agent. Callers hold the lock.
func (s *MultiAgentSystem) assignedTask(taskID string) (*Task, *Agent, bool) {
	task, ok := s.tasks[taskID]
	if !ok {
		s.logger.Warn("task not found", zap.String("task_id", taskID))
		return nil, nil, false
	}
	if task.Status.IsTerminal() {
		s.logger.Warn("task already terminal",
			zap.String("task_id", taskID),
			zap.String("status", string(task.Status)))
		return nil, nil, false
	}
	if task.AssignedAgentID == "" {
		s.logger.Warn("task is not assigned to an agent", zap.String("task_id", taskID))
		return nil, nil, false
	}
	agent, ok := s.agents[task.AssignedAgentID]
	if !ok {
		s.logger.Warn("assigned agent not found",
			zap.String("task_id", taskID),
			zap.String("agent_id", task.AssignedAgentID))
		return nil, nil, false
	}
	return task, agent, true
}

// CancelTask cancels a non-terminal task, freeing its agent if one holds it.
func (s *MultiAgentSystem) CancelTask(ctx context.Context, taskID string) bool {
	_, span := s.tracer.Start(ctx, "orchestrator.CancelTask",
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		s.logger.Warn("task not found", zap.String("task_id", taskID))
		return false
	}
	if task.Status.IsTerminal() {
		s.logger.Warn("task already terminal",
			zap.String("task_id", taskID),
			zap.String("status", string(task.Status)))
		return false
	}

	now := s.now()
	task.cancel(now)
	if agent, ok := s.agents[task.AssignedAgentID]; ok && agent.CurrentTaskID == taskID {
		agent.finishTask(taskID, now)
		s.retryPending()
	}
	tasksCancelledTotal.Inc()
	s.updateBlockedGauge()
	s.logger.Info("cancelled task", zap.String("task_id", taskID))
	return true
}

// checkBlockedTasks moves every blocked task whose dependencies are all
// completed back to pending and retries assignment. Callers hold the lock.
func (s *MultiAgentSystem) checkBlockedTasks() {
	for _, task := range s.tasks {
		if task.Status != TaskStatusBlocked {
			continue
		}
		satisfied := true
		for _, depID := range task.Dependencies {
			if dep, ok := s.tasks[depID]; ok && dep.Status != TaskStatusCompleted {
				satisfied = false
				break
			}
		}
		if !satisfied {
			continue
		}
		task.Status = TaskStatusPending
		s.logger.Info("unblocked task", zap.String("task_id", task.ID))
		s.assignTask(task.ID)
	}
}

// retryPending re-attempts assignment of unassigned pending tasks, highest
// priority first. Callers hold the lock.
func (s *MultiAgentSystem) retryPending() {
	pending := make([]*Task, 0)
	for _, task := range s.tasks {
		if task.Status == TaskStatusPending && task.AssignedAgentID == "" {
			pending = append(pending, task)
		}
	}
	sortTasksByPriority(pending)
	for _, task := range pending {
		s.assignTask(task.ID)
	}
	s.updateBlockedGauge()
}

// RecheckAssignments retries assignment of all pending tasks, for hosts
// that want an explicit re-check after external changes.
func (s *MultiAgentSystem) RecheckAssignments(ctx context.Context) {
	_, span := s.tracer.Start(ctx, "orchestrator.RecheckAssignments")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryPending()
}

// cascadeFail marks every transitive dependent of taskID failed. Callers
// hold the lock and have the cascade flag enabled.
func (s *MultiAgentSystem) cascadeFail(taskID string) {
	queue := []string{taskID}
	seen := map[string]bool{taskID: true}
	now := s.now()

	for len(queue) > 0 {
		failedID := queue[0]
		queue = queue[1:]
		for _, task := range s.tasks {
			if task.Status.IsTerminal() || seen[task.ID] {
				continue
			}
			dependsOnFailed := false
			for _, depID := range task.Dependencies {
				if depID == failedID {
					dependsOnFailed = true
					break
				}
			}
			if !dependsOnFailed {
				continue
			}
			task.fail("dependency "+failedID+" failed", now)
			tasksFailedTotal.Inc()
			if agent, ok := s.agents[task.AssignedAgentID]; ok && agent.CurrentTaskID == task.ID {
				agent.finishTask(task.ID, now)
			}
			seen[task.ID] = true
			queue = append(queue, task.ID)
			s.logger.Info("cascade-failed dependent task",
				zap.String("task_id", task.ID),
				zap.String("failed_dependency", failedID))
		}
	}
}

func (s *MultiAgentSystem) updateBlockedGauge() {
	blocked := 0
	for _, task := range s.tasks {
		if task.Status == TaskStatusBlocked {
			blocked++
		}
	}
	tasksBlocked.Set(float64(blocked))
}

// SendMessage appends a message to the global log. Both endpoints must be
// registered agents; otherwise the call logs a warning and returns "".
func (s *MultiAgentSystem) SendMessage(ctx context.Context, senderID, receiverID string, content any, messageType, relatedTaskID string, metadata map[string]any) string {
	_, span := s.tracer.Start(ctx, "orchestrator.SendMessage")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[senderID]; !ok {
		s.logger.Warn("sender not found", zap.String("agent_id", senderID))
		return ""
	}
	if _, ok := s.agents[receiverID]; !ok {
		s.logger.Warn("receiver not found", zap.String("agent_id", receiverID))
		return ""
	}
	if messageType == "" {
		messageType = DefaultMessageType
	}

	message := &Message{
		ID:            uuid.NewString(),
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Content:       content,
		MessageType:   messageType,
		RelatedTaskID: relatedTaskID,
		Metadata:      metadata,
		Timestamp:     s.now(),
	}
	s.messages = append(s.messages, message)
	messagesSentTotal.Inc()
	s.logger.Info("sent message",
		zap.String("message_id", message.ID),
		zap.String("sender_id", senderID),
		zap.String("receiver_id", receiverID))
	return message.ID
}

// GetMessages returns messages addressed to the agent, newest first,
// optionally filtered to unread ones. limit <= 0 returns all. An unknown
// agent yields an empty slice.
func (s *MultiAgentSystem) GetMessages(agentID string, unreadOnly bool, limit int) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		s.logger.Warn("agent not found", zap.String("agent_id", agentID))
		return []*Message{}
	}

	// The log is append-only, so walking it backwards yields newest first.
	result := make([]*Message, 0)
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.ReceiverID != agentID {
			continue
		}
		if unreadOnly && m.Read {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

// MarkMessageRead flips the read flag of a message.
func (s *MultiAgentSystem) MarkMessageRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.messages {
		if m.ID == messageID {
			m.markRead()
			return true
		}
	}
	return false
}

// Agent returns the agent with the given id.
func (s *MultiAgentSystem) Agent(agentID string) (*Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	return agent, ok
}

// Task returns the task with the given id.
func (s *MultiAgentSystem) Task(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	return task, ok
}

// AgentByRole returns the earliest-registered agent holding the role.
func (s *MultiAgentSystem) AgentByRole(role types.AgentRole) (*Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentByRole(role)
}

func (s *MultiAgentSystem) agentByRole(role types.AgentRole) (*Agent, bool) {
	for _, agentID := range s.agentOrder {
		if agent := s.agents[agentID]; agent.Role == role {
			return agent, true
		}
	}
	return nil, false
}

// Coordinator returns the coordinator agent.
func (s *MultiAgentSystem) Coordinator() (*Agent, bool) {
	return s.AgentByRole(types.RoleCoordinator)
}

// ProcessUserRequest is the single entry point for the host per user turn:
// the request becomes a high-priority root task requiring planning,
// reasoning, and communication. Returns the task id, or "" without a
// coordinator.
func (s *MultiAgentSystem) ProcessUserRequest(ctx context.Context, request string) string {
	s.mu.Lock()
	_, ok := s.agentByRole(types.RoleCoordinator)
	s.mu.Unlock()
	if !ok {
		s.logger.Error("no coordinator agent found")
		return ""
	}

	return s.CreateTask(ctx, TaskSpec{
		Name:        "User Request",
		Description: request,
		RequiredCapabilities: types.NewCapabilitySet(
			types.CapPlanning,
			types.CapReasoning,
			types.CapCommunication,
		),
		Priority: 10,
		Context:  map[string]any{"request": request},
	})
}

// sortTasksByPriority orders highest priority first, FIFO within a level.
func sortTasksByPriority(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
