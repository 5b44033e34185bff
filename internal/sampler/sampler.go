// Package sampler implements top-k/top-p (nucleus) sampling with an
// optional temperature scale and running perplexity accumulation (spec
// §4.6). It is deliberately built on math/math-rand rather than a
// third-party library: no repo in the retrieval pack carries a sampling
// or numerics dependency, and the algorithm itself is a few dozen lines
// of arithmetic better kept dependency-free than wrapped around a library
// chosen only to avoid writing it.
package sampler

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"modeld/internal/status"
)

// Sampler draws one token per batch row from a vocabulary-sized logits
// vector, narrowing candidates to the top K by probability and then to
// the smallest nucleus whose cumulative probability reaches P, before
// drawing from what remains. Temperature 0 means deterministic argmax.
type Sampler struct {
	mu          sync.Mutex
	k           int
	p           float64
	temperature float64
	batchSize   int
	rng         *rand.Rand

	trackPerplexity bool
	negLogProbSum   float64
	count           int
}

// Create validates and builds a Sampler. k<=0 disables top-k narrowing
// (all candidates considered); p<=0 or p>=1 disables nucleus narrowing.
func Create(k int, p, temperature float64, batchSize int, seed int64, perplexity bool) (*Sampler, error) {
	if temperature < 0 {
		return nil, status.New(status.InvalidArgument, "sampler: temperature must be >= 0, got %v", temperature)
	}
	if batchSize <= 0 {
		return nil, status.New(status.InvalidArgument, "sampler: batch_size must be > 0, got %d", batchSize)
	}
	return &Sampler{
		k:               k,
		p:               p,
		temperature:     temperature,
		batchSize:       batchSize,
		rng:             rand.New(rand.NewSource(seed)),
		trackPerplexity: perplexity,
	}, nil
}

// Logits is one batch of vocabulary-sized rows. Exactly one of FP32 or
// FP16 should be populated; FP16 rows are decoded to float32 before any
// arithmetic, per spec §4.6's "accept fp32 or fp16 logits" note.
type Logits struct {
	FP32 [][]float32
	FP16 [][]uint16
}

func (l Logits) rows() [][]float32 {
	if l.FP32 != nil {
		return l.FP32
	}
	out := make([][]float32, len(l.FP16))
	for i, row := range l.FP16 {
		out[i] = decodeFP16Row(row)
	}
	return out
}

// SampleToIdAndScoreBuffer samples one token ID per batch row into
// idsOut and, when scoresOut is non-nil, the sampled token's log
// probability under the full (pre-narrowing) distribution. idsOut and
// scoresOut (when provided) must have length equal to len(logits).
func (s *Sampler) SampleToIdAndScoreBuffer(logits Logits, idsOut []int32, scoresOut []float64) error {
	rows := logits.rows()
	if len(idsOut) != len(rows) {
		return status.New(status.InvalidArgument, "sampler: idsOut length %d does not match batch size %d", len(idsOut), len(rows))
	}
	if scoresOut != nil && len(scoresOut) != len(rows) {
		return status.New(status.InvalidArgument, "sampler: scoresOut length %d does not match batch size %d", len(scoresOut), len(rows))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for row, logitRow := range rows {
		if len(logitRow) == 0 {
			return status.New(status.InvalidArgument, "sampler: empty logits row %d", row)
		}
		id, logProb := s.sampleRow(logitRow)
		idsOut[row] = id
		if scoresOut != nil {
			scoresOut[row] = logProb
		}
		if s.trackPerplexity {
			s.negLogProbSum += -logProb
			s.count++
		}
	}
	return nil
}

func (s *Sampler) sampleRow(logitRow []float32) (int32, float64) {
	if s.temperature == 0 {
		argmax := argmaxIndex(logitRow)
		return int32(argmax), 0
	}

	probs := softmax(logitRow, s.temperature)

	candidates := topKIndices(probs, s.k)
	candidates = nucleusFilter(probs, candidates, s.p)

	selected := candidates[s.weightedChoice(probs, candidates)]
	return int32(selected), math.Log(float64(probs[selected]))
}

// weightedChoice draws one index from candidates, weighted by probs.
func (s *Sampler) weightedChoice(probs []float32, candidates []int) int {
	var mass float64
	for _, c := range candidates {
		mass += float64(probs[c])
	}
	if mass <= 0 {
		return 0
	}
	target := s.rng.Float64() * mass
	var cum float64
	for i, c := range candidates {
		cum += float64(probs[c])
		if cum >= target {
			return i
		}
	}
	return len(candidates) - 1
}

// Perplexity returns the raw accumulated sum of negative log-probabilities
// across every SampleToIdAndScoreBuffer call so far, with no averaging and
// no exponentiation. It returns 0 if perplexity tracking was not requested
// or nothing has been sampled yet.
func (s *Sampler) Perplexity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.trackPerplexity || s.count == 0 {
		return 0
	}
	return s.negLogProbSum
}

// Reset clears accumulated perplexity statistics without touching the
// sampler's configuration or RNG stream.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.negLogProbSum = 0
	s.count = 0
}

func softmax(logits []float32, temperature float64) []float32 {
	out := make([]float32, len(logits))
	max32 := logits[0]
	for _, v := range logits {
		if v > max32 {
			max32 = v
		}
	}
	var sum float64
	for i, v := range logits {
		scaled := (float64(v) - float64(max32)) / temperature
		e := math.Exp(scaled)
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func argmaxIndex(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}

// topKIndices returns up to k candidate indices ordered by descending
// probability. k<=0 means "no narrowing": every index is a candidate.
func topKIndices(probs []float32, k int) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if k > 0 && k < len(idx) {
		idx = idx[:k]
	}
	return idx
}

// nucleusFilter trims an already probability-sorted candidate list down
// to the smallest prefix whose cumulative probability mass reaches p.
// p<=0 or p>=1 disables nucleus narrowing.
func nucleusFilter(probs []float32, candidates []int, p float64) []int {
	if p <= 0 || p >= 1 {
		return candidates
	}
	var cum float64
	for i, c := range candidates {
		cum += float64(probs[c])
		if cum >= p {
			return candidates[:i+1]
		}
	}
	return candidates
}

// decodeFP16Row converts a row of IEEE-754 binary16 half-precision
// values to float32, the minimal bridge needed so callers holding
// fp16 logits buffers never have to hand-roll the conversion themselves.
func decodeFP16Row(row []uint16) []float32 {
	out := make([]float32, len(row))
	for i, h := range row {
		out[i] = fp16ToFp32(h)
	}
	return out
}

func fp16ToFp32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var bits uint32
	switch {
	case exp == 0 && frac == 0:
		bits = sign << 31
	case exp == 0x1f:
		bits = (sign << 31) | (0xff << 23) | (frac << 13)
	case exp == 0:
		// subnormal half -> normalize into float32's wider exponent range
		e := -1
		for frac&0x400 == 0 {
			frac <<= 1
			e++
		}
		frac &= 0x3ff
		bits = (sign << 31) | uint32(127-15-e)<<23 | (frac << 13)
	default:
		bits = (sign << 31) | ((exp - 15 + 127) << 23) | (frac << 13)
	}
	return math.Float32frombits(bits)
}
