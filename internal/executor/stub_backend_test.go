//go:build !llama

package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubBackendPrefillAdvancesStep(t *testing.T) {
	b := NewStub()
	err := b.Prefill(context.Background(), Inputs{Tokens: []int32{1, 2, 3}})
	require.NoError(t, err)
	require.Equal(t, 3, b.GetRuntimeState().CurrentStep)
}

func TestStubBackendDecodeAdvancesStepAndFlagsRanDecode(t *testing.T) {
	b := NewStub()
	_, err := b.Decode(context.Background())
	require.NoError(t, err)
	st := b.GetRuntimeState()
	require.Equal(t, 1, st.CurrentStep)
	require.True(t, st.RanDecode)
}

func TestStubBackendLoadLoRAIsStableByPath(t *testing.T) {
	b := NewStub()
	id1, err := b.LoadLoRA("/models/a.lora")
	require.NoError(t, err)
	id2, err := b.LoadLoRA("/models/a.lora")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	id3, err := b.LoadLoRA("/models/b.lora")
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)
}

func TestStubBackendResetClearsState(t *testing.T) {
	b := NewStub()
	_, _ = b.Decode(context.Background())
	require.NoError(t, b.Reset())
	require.Equal(t, 0, b.GetRuntimeState().CurrentStep)
}
