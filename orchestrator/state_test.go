package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scriptvault/agentcore/statestore"
	"github.com/scriptvault/agentcore/types"
)

func TestMultiAgentSystem_SnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSystem(&now)
	ctx := context.Background()

	workerID := s.AddAgent(ctx, "Worker", types.RoleExecutor, types.NewCapabilitySet(types.CapToolUse))
	taskID := s.CreateTask(ctx, TaskSpec{
		Name:                 "work",
		RequiredCapabilities: types.NewCapabilitySet(types.CapToolUse),
	})
	messageID := s.SendMessage(ctx, workerID, workerID, "note to self", "", "", nil)

	state := s.Snapshot()

	require.True(t, s.StartTask(ctx, taskID))
	require.True(t, s.CompleteTask(ctx, taskID, "done"))
	require.True(t, s.MarkMessageRead(messageID))

	require.Equal(t, TaskStatusAssigned, state.Tasks[taskID].Status)
	require.Nil(t, state.Tasks[taskID].CompletedAt)
	require.Equal(t, taskID, state.Agents[workerID].CurrentTaskID)
	require.False(t, state.Messages[0].Read)
}

func TestMultiAgentSystem_StateFileRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSystem(&now)
	ctx := context.Background()

	now = now.Add(time.Second)
	workerID := s.AddAgent(ctx, "Worker", types.RoleExecutor, types.NewCapabilitySet(types.CapToolUse))
	taskID := s.CreateTask(ctx, TaskSpec{
		Name:                 "work",
		RequiredCapabilities: types.NewCapabilitySet(types.CapToolUse),
		Priority:             5,
	})
	a, _ := s.Coordinator()
	messageID := s.SendMessage(ctx, a.ID, workerID, "hello", "", taskID, nil)

	path := filepath.Join(t.TempDir(), "system.json")
	require.True(t, s.SaveState(ctx, path))

	restored := newTestSystem(&now)
	require.True(t, restored.LoadState(ctx, path))

	task, ok := restored.Task(taskID)
	require.True(t, ok)
	require.Equal(t, TaskStatusAssigned, task.Status)
	require.Equal(t, workerID, task.AssignedAgentID)
	require.Equal(t, 5, task.Priority)
	require.True(t, task.RequiredCapabilities.Has(types.CapToolUse))

	worker, ok := restored.Agent(workerID)
	require.True(t, ok)
	require.Equal(t, "Worker", worker.Name)
	require.Equal(t, taskID, worker.CurrentTaskID)
	require.NotNil(t, worker.Memory(), "restored agents get fresh memory systems")

	coordinator, ok := restored.Coordinator()
	require.True(t, ok)
	require.Same(t, restored.SystemMemory(), coordinator.Memory())

	messages := restored.GetMessages(workerID, false, 0)
	require.Len(t, messages, 1)
	require.Equal(t, messageID, messages[0].ID)

	// Assignment order survives: the earlier-created coordinator still wins
	// capability ties.
	require.Equal(t, []string{coordinator.ID, workerID}, restored.agentOrder)
}

func TestMultiAgentSystem_LoadStateMissingFile(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSystem(&now)
	require.False(t, s.LoadState(context.Background(), filepath.Join(t.TempDir(), "absent.json")))
}

func TestMultiAgentSystem_StoreRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestSystem(&now)
	ctx := context.Background()

	store, err := statestore.NewFileStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	now = now.Add(time.Second)
	s.AddAgent(ctx, "Worker", types.RoleExecutor, types.NewCapabilitySet(types.CapToolUse))

	require.True(t, s.SaveTo(ctx, store, "system"))

	restored := newTestSystem(&now)
	require.True(t, restored.LoadFrom(ctx, store, "system"))
	require.Equal(t, 2, restored.Stats().Agents)

	require.False(t, restored.LoadFrom(ctx, store, "missing"))
}
