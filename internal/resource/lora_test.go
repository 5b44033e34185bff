package resource

import (
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/internal/executor"
	"modeld/pkg/types"
)

func TestLoraIDIsStableByPath(t *testing.T) {
	m := newTestManager(t)
	h1, err := m.CreateContextHandler("s1", types.SessionConfig{LoraPath: "/models/a.lora"})
	require.NoError(t, err)
	h2, err := m.CreateContextHandler("s2", types.SessionConfig{LoraPath: "/models/a.lora"})
	require.NoError(t, err)
	require.Equal(t, h1.Config.LoraID, h2.Config.LoraID)
}

func TestLoraSlotTableEvictsLRUUnreferenced(t *testing.T) {
	m := newTestManager(t) // maxLoraSlots: 2
	_, err := m.CreateContextHandler("s1", types.SessionConfig{LoraPath: "/models/a.lora"})
	require.NoError(t, err)
	_, err = m.CreateContextHandler("s2", types.SessionConfig{LoraPath: "/models/b.lora"})
	require.NoError(t, err)

	// Both slots are full and both have a live reference (refs=1 each from
	// CreateContextHandler); nothing is safe to evict.
	_, err = m.CreateContextHandler("s3", types.SessionConfig{LoraPath: "/models/c.lora"})
	require.Error(t, err)

	m.ReleaseLora(m.loraByPath["/models/a.lora"].id)
	h3, err := m.CreateContextHandler("s3", types.SessionConfig{LoraPath: "/models/c.lora"})
	require.NoError(t, err)
	require.NotContains(t, m.loraByPath, "/models/a.lora")
	require.Contains(t, m.loraByPath, "/models/c.lora")
	require.Equal(t, m.loraByPath["/models/c.lora"].id, h3.Config.LoraID)
}

func TestReleaseContextHandlerReleasesLoraRef(t *testing.T) {
	m := newTestManager(t) // maxLoraSlots: 2
	h1, err := m.CreateContextHandler("s1", types.SessionConfig{LoraPath: "/models/a.lora"})
	require.NoError(t, err)
	_, err = m.CreateContextHandler("s2", types.SessionConfig{LoraPath: "/models/b.lora"})
	require.NoError(t, err)

	// Tearing s1 down (rather than calling ReleaseLora directly) must drop
	// its LoRA reference too, or the slot table fills permanently once every
	// session that ever touched an adapter is gone.
	m.ReleaseContextHandler(h1)
	require.Equal(t, 0, m.loraByPath["/models/a.lora"].refs)

	h3, err := m.CreateContextHandler("s3", types.SessionConfig{LoraPath: "/models/c.lora"})
	require.NoError(t, err)
	require.NotContains(t, m.loraByPath, "/models/a.lora")
	require.Equal(t, m.loraByPath["/models/c.lora"].id, h3.Config.LoraID)
}

func TestAssignLoraIDWithUnboundedSlots(t *testing.T) {
	m, err := New(executor.NewStub(), 0, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := m.CreateContextHandler("s", types.SessionConfig{LoraPath: "/models/x.lora"})
		require.NoError(t, err)
	}
	require.Len(t, m.loraByPath, 1)
}
