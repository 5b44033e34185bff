package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateRejectsInvalidArgs(t *testing.T) {
	_, err := Create(40, 0.9, -1, 1, 1, false)
	require.Error(t, err)

	_, err = Create(40, 0.9, 1.0, 0, 1, false)
	require.Error(t, err)
}

func TestSampleZeroTemperatureIsArgmax(t *testing.T) {
	s, err := Create(0, 0, 0, 2, 1, false)
	require.NoError(t, err)

	logits := Logits{FP32: [][]float32{
		{1, 2, 9, 3},
		{5, 1, 1, 1},
	}}
	ids := make([]int32, 2)
	scores := make([]float64, 2)
	require.NoError(t, s.SampleToIdAndScoreBuffer(logits, ids, scores))
	require.Equal(t, []int32{2, 0}, ids)
	require.Equal(t, []float64{0, 0}, scores)
}

func TestSampleExtremeLogitsConvergeToArgmaxDistribution(t *testing.T) {
	s, err := Create(1, 0.5, 1, 2, 42, false)
	require.NoError(t, err)

	const min = -1e30
	const max = 1e30
	logits := Logits{FP32: [][]float32{
		{min, min, max, min},
		{min, max, min, min},
	}}
	ids := make([]int32, 2)
	scores := make([]float64, 2)
	require.NoError(t, s.SampleToIdAndScoreBuffer(logits, ids, scores))
	require.Equal(t, []int32{2, 1}, ids)
	require.InDelta(t, 0, scores[0], 1e-9)
	require.InDelta(t, 0, scores[1], 1e-9)
}

func TestPerplexityTracksAcrossCalls(t *testing.T) {
	s, err := Create(0, 0, 1, 1, 7, true)
	require.NoError(t, err)

	const min = -1e30
	const max = 1e30
	logits := Logits{FP32: [][]float32{{min, min, max, min}}}
	ids := make([]int32, 1)

	require.NoError(t, s.SampleToIdAndScoreBuffer(logits, ids, nil))
	require.NoError(t, s.SampleToIdAndScoreBuffer(logits, ids, nil))

	require.InDelta(t, 0, s.Perplexity(), 1e-9)
}

func TestPerplexityIsZeroWhenNotTracked(t *testing.T) {
	s, err := Create(0, 0, 1, 1, 7, false)
	require.NoError(t, err)
	require.Equal(t, 0.0, s.Perplexity())
}

func TestTopKNarrowsBeforeNucleus(t *testing.T) {
	idx := topKIndices([]float32{0.1, 0.5, 0.05, 0.35}, 2)
	require.Equal(t, []int{1, 3}, idx)
}

func TestNucleusFilterStopsAtCumulativeMass(t *testing.T) {
	probs := []float32{0.5, 0.3, 0.1, 0.1}
	candidates := []int{0, 1, 2, 3}
	got := nucleusFilter(probs, candidates, 0.7)
	require.Equal(t, []int{0, 1}, got)
}

func TestFP16RoundTripsCommonValues(t *testing.T) {
	// 0x3C00 is 1.0, 0xC000 is -2.0 in IEEE-754 binary16.
	require.InDelta(t, 1.0, fp16ToFp32(0x3C00), 1e-6)
	require.InDelta(t, -2.0, fp16ToFp32(0xC000), 1e-6)
	require.InDelta(t, 0.0, fp16ToFp32(0x0000), 1e-6)
}

func TestSampleFromFP16Logits(t *testing.T) {
	s, err := Create(0, 0, 0, 1, 1, false)
	require.NoError(t, err)
	// 0x3C00 = 1.0 at index 2, everything else 0x0000 = 0.0.
	logits := Logits{FP16: [][]uint16{{0x0000, 0x0000, 0x3C00, 0x0000}}}
	ids := make([]int32, 1)
	require.NoError(t, s.SampleToIdAndScoreBuffer(logits, ids, nil))
	require.Equal(t, int32(2), ids[0])
}

func TestSampleRejectsMismatchedBufferLengths(t *testing.T) {
	s, err := Create(0, 0, 1, 1, 1, false)
	require.NoError(t, err)
	logits := Logits{FP32: [][]float32{{1, 2, 3}}}
	err = s.SampleToIdAndScoreBuffer(logits, make([]int32, 2), nil)
	require.Error(t, err)
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := softmax([]float32{1, 2, 3, 4}, 1)
	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	require.InDelta(t, 1.0, sum, 1e-6)
	require.False(t, math.IsNaN(sum))
}
