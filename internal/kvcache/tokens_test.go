package kvcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveMatchingTokensElidesSharedPrefix(t *testing.T) {
	p := NewProcessedTokens()
	p.Append(1, 2, 3)
	step := 0

	residual := p.RemoveMatchingTokens([]int32{1, 2, 3, 4, 5}, &step)
	require.Equal(t, []int32{4, 5}, residual)
	require.Equal(t, 3, step)
}

func TestRemoveMatchingTokensStopsAtFirstDivergence(t *testing.T) {
	p := NewProcessedTokens()
	p.Append(1, 2, 3)
	step := 0

	residual := p.RemoveMatchingTokens([]int32{1, 9, 3}, &step)
	require.Equal(t, []int32{9, 3}, residual)
	require.Equal(t, 1, step)
}

func TestRemoveMatchingTokensNoResidualIsNoop(t *testing.T) {
	p := NewProcessedTokens()
	p.Append(1, 2, 3)
	step := 0

	residual := p.RemoveMatchingTokens([]int32{1, 2, 3}, &step)
	require.Empty(t, residual)
	require.Equal(t, 3, step)
}

func TestProcessedTokensTruncateAndClone(t *testing.T) {
	p := NewProcessedTokens()
	p.Append(1, 2, 3, 4)
	clone := p.Clone()
	p.Truncate(2)

	require.Equal(t, 2, p.TokenCount())
	require.Equal(t, 4, clone.TokenCount(), "clone must be unaffected by truncating the original")
}

func TestRuntimeStateClampStep(t *testing.T) {
	s := &RuntimeState{CurrentStep: 10}
	s.ClampStep(4)
	require.Equal(t, 4, s.CurrentStep)

	s.CurrentStep = -3
	s.ClampStep(4)
	require.Equal(t, 0, s.CurrentStep)
}
