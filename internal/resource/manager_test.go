package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/internal/executor"
	"modeld/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(executor.NewStub(), 2, nil)
	require.NoError(t, err)
	return m
}

func TestCreateContextHandlerStartsParkedAndFresh(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	require.False(t, h.Active)
	require.NotNil(t, h.Config)
	require.NotNil(t, h.State)
	require.True(t, h.IsFresh())
}

func TestAcquireExecutorWithContextHandlerActivatesFreshHandler(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)

	locked, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	defer locked.Unlock()

	require.True(t, h.Active)
	require.Nil(t, h.Config)
	require.Nil(t, h.State)
	require.Equal(t, h, m.active)
}

func TestAcquireExecutorWithContextHandlerSameHandlerIsNoop(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	l1, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	l1.Unlock()

	l2, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	defer l2.Unlock()
	require.Equal(t, h, m.active)
}

func TestCloneContextHandlerAliasesSharedContext(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)

	clone, err := m.CloneContextHandler(h)
	require.NoError(t, err)
	require.Equal(t, h.Shared.ID, clone.Shared.ID)
	require.Equal(t, int32(2), h.Shared.RefCount())
}

func TestCloneContextHandlerReadsLiveStateWhenActive(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	locked, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2, 3}))
	locked.Unlock()

	clone, err := m.CloneContextHandler(h)
	require.NoError(t, err)
	require.Equal(t, 3, clone.State.CurrentStep)
}

func TestCloneContextHandlerFailsWithoutOwnedStateWhenInactive(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	h.State = nil // simulate a corrupted invariant: inactive but no owned state

	_, err = m.CloneContextHandler(h)
	require.Error(t, err)
}

func TestContextSwitchBetweenSiblingsPreservesIndependentSteps(t *testing.T) {
	m := newTestManager(t)
	h1, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)

	l1, err := m.AcquireExecutorWithContextHandler(h1)
	require.NoError(t, err)
	require.NoError(t, l1.Prefill(context.Background(), []int32{1, 2, 3}))
	l1.Unlock()

	h2, err := m.CloneContextHandler(h1)
	require.NoError(t, err)

	l2, err := m.AcquireExecutorWithContextHandler(h2)
	require.NoError(t, err)
	require.Equal(t, 3, l2.mgr.backend.GetRuntimeState().CurrentStep)
	l2.Unlock()

	l1Again, err := m.AcquireExecutorWithContextHandler(h1)
	require.NoError(t, err)
	defer l1Again.Unlock()
	require.Equal(t, 3, l1Again.mgr.backend.GetRuntimeState().CurrentStep)
}

func TestContextSwitchToDifferentContextClampsStep(t *testing.T) {
	m := newTestManager(t)
	h1, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	l1, err := m.AcquireExecutorWithContextHandler(h1)
	require.NoError(t, err)
	require.NoError(t, l1.Prefill(context.Background(), []int32{1, 2, 3, 4, 5}))
	l1.Unlock()

	h2, err := m.CreateContextHandler("s2", types.SessionConfig{})
	require.NoError(t, err)
	l2, err := m.AcquireExecutorWithContextHandler(h2)
	require.NoError(t, err)
	defer l2.Unlock()
	require.Equal(t, 0, l2.mgr.backend.GetRuntimeState().CurrentStep)
}
