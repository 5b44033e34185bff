package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedProcessedContextAliasSharesStorage(t *testing.T) {
	kv := NewMemKV()
	kv.AppendRow([]byte("a"))
	c := New(kv)
	c.Tokens.Append(1)

	alias := c.Alias()
	require.Same(t, c.KV, alias.KV)
	require.Equal(t, int32(2), c.RefCount())
}

func TestSharedProcessedContextCloneIsIndependent(t *testing.T) {
	kv := NewMemKV()
	kv.AppendRow([]byte("a"))
	c := New(kv)
	c.Tokens.Append(1, 2)

	clone, err := c.Clone(NewMemKV())
	require.NoError(t, err)
	require.NotSame(t, c.KV, clone.KV)
	require.Equal(t, c.Tokens.TokenCount(), clone.Tokens.TokenCount())

	clone.Tokens.Append(3)
	require.NotEqual(t, c.Tokens.TokenCount(), clone.Tokens.TokenCount())
}

func TestDetachReturnsFreshEmptyContext(t *testing.T) {
	kv := NewMemKV()
	c := Detach(kv)
	require.Equal(t, 0, c.Tokens.TokenCount())
	require.Equal(t, int32(1), c.RefCount())
}

func TestContextHandlerIsFresh(t *testing.T) {
	h := NewContextHandler("s1", NewMemKV(), &RuntimeConfig{})
	require.True(t, h.IsFresh())

	h.Shared.Tokens.Append(1)
	require.False(t, h.IsFresh())
}
