package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"modeld/internal/session"
	"modeld/pkg/types"
)

func validSettings(t *testing.T) types.EngineSettings {
	t.Helper()
	return types.EngineSettings{
		Model:         types.ModelAssets{ModelPath: "/tmp/does-not-need-to-exist-for-the-stub.gguf"},
		MainExecutor:  types.MainExecutorSettings{Backend: types.BackendCPU, MaxNumTokens: 512},
		SamplerParams: &types.SamplerParams{Type: types.SamplerGreedy, K: 1, Temperature: 0},
	}
}

func TestCreateRejectsInvalidSettings(t *testing.T) {
	_, err := Create(types.EngineSettings{})
	require.Error(t, err)
}

func TestCreateSessionDefaultsSamplerFromEngineSettings(t *testing.T) {
	settings := validSettings(t)
	settings.SamplerParams = &types.SamplerParams{Type: types.SamplerGreedy, K: 1, Temperature: 0}

	eng, err := Create(settings)
	require.NoError(t, err)
	defer eng.Close()

	sess, err := eng.CreateSession(types.SessionConfig{MaxOutputTokens: 8})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID())

	got, ok := eng.GetSession(sess.ID())
	require.True(t, ok)
	require.Same(t, sess, got)
}

func TestCreateSessionRejectsInvalidConfig(t *testing.T) {
	eng, err := Create(validSettings(t))
	require.NoError(t, err)
	defer eng.Close()

	_, err = eng.CreateSession(types.SessionConfig{MaxOutputTokens: -1})
	require.Error(t, err)
}

func TestDeleteSessionDropsReference(t *testing.T) {
	eng, err := Create(validSettings(t))
	require.NoError(t, err)
	defer eng.Close()

	sess, err := eng.CreateSession(types.SessionConfig{MaxOutputTokens: 4})
	require.NoError(t, err)

	eng.DeleteSession(sess.ID())
	_, ok := eng.GetSession(sess.ID())
	require.False(t, ok)
}

func TestDeleteSessionFreesLoraSlotForReuse(t *testing.T) {
	eng, err := Create(validSettings(t), WithMaxLoraSlots(1))
	require.NoError(t, err)
	defer eng.Close()

	sess, err := eng.CreateSession(types.SessionConfig{MaxOutputTokens: 4, LoraPath: "/models/a.lora"})
	require.NoError(t, err)

	// With a single slot and one live reference, a second distinct adapter
	// has nothing evictable and must fail.
	_, err = eng.CreateSession(types.SessionConfig{MaxOutputTokens: 4, LoraPath: "/models/b.lora"})
	require.Error(t, err)

	eng.DeleteSession(sess.ID())

	_, err = eng.CreateSession(types.SessionConfig{MaxOutputTokens: 4, LoraPath: "/models/b.lora"})
	require.NoError(t, err, "deleting the session holding the only reference should free the slot for eviction")
}

func TestEndToEndPrefillDecodeThroughEngineSession(t *testing.T) {
	eng, err := Create(validSettings(t))
	require.NoError(t, err)
	defer eng.Close()

	sess, err := eng.CreateSession(types.SessionConfig{
		Sampler:         types.SamplerParams{Type: types.SamplerGreedy, K: 1, Temperature: 0},
		MaxOutputTokens: 4,
	})
	require.NoError(t, err)

	_, err = sess.RunPrefill([]int32{1, 2, 3})
	require.NoError(t, err)

	resp, err := sess.RunDecode(false, nil, session.DecodeOptions{MaxOutTokens: 4})
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, resp.State)
}
