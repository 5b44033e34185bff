package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/pkg/types"
)

func TestPrefillElidesAlreadyMatchedPrefix(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	locked, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	defer locked.Unlock()

	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2, 3}))
	require.Equal(t, []int32{1, 2, 3}, h.Shared.Tokens.Tokens())

	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2, 3, 4, 5}))
	require.Equal(t, []int32{1, 2, 3, 4, 5}, h.Shared.Tokens.Tokens())
}

func TestPrefillNoResidualIsPureStepAdvance(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	locked, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	defer locked.Unlock()

	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2, 3}))
	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2}))
	require.Equal(t, []int32{1, 2, 3}, h.Shared.Tokens.Tokens())
}

func TestPrefillDivergingNonLongestSiblingDetaches(t *testing.T) {
	m := newTestManager(t)
	h1, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)

	l1, err := m.AcquireExecutorWithContextHandler(h1)
	require.NoError(t, err)
	require.NoError(t, l1.Prefill(context.Background(), []int32{1, 2, 3}))
	l1.Unlock()

	h2, err := m.CloneContextHandler(h1)
	require.NoError(t, err)
	originalSharedID := h1.Shared.ID

	l1b, err := m.AcquireExecutor()
	require.NoError(t, err)
	require.NoError(t, l1b.Prefill(context.Background(), []int32{4, 5}))
	l1b.Unlock()
	require.Equal(t, 5, h1.Shared.Tokens.TokenCount())

	l2, err := m.AcquireExecutorWithContextHandler(h2)
	require.NoError(t, err)
	defer l2.Unlock()

	require.NoError(t, l2.Prefill(context.Background(), []int32{99}))

	require.NotEqual(t, originalSharedID, h2.Shared.ID, "divergent non-longest sibling must detach to a new context")
	require.Equal(t, []int32{1, 2, 3, 99}, h2.Shared.Tokens.Tokens())
	require.Equal(t, []int32{1, 2, 3, 4, 5}, h1.Shared.Tokens.Tokens(), "detach must not mutate the longest sibling's shared history")
}

func TestDecodeAppendsGeneratedTokenThroughAppendGenerated(t *testing.T) {
	m := newTestManager(t)
	h, err := m.CreateContextHandler("s1", types.SessionConfig{})
	require.NoError(t, err)
	locked, err := m.AcquireExecutorWithContextHandler(h)
	require.NoError(t, err)
	defer locked.Unlock()

	require.NoError(t, locked.Prefill(context.Background(), []int32{1, 2, 3}))
	logits, err := locked.Decode(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, logits)

	locked.AppendGenerated(42)
	require.Equal(t, []int32{1, 2, 3, 42}, h.Shared.Tokens.Tokens())
}
