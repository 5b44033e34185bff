// Package bench instruments Engine initialization and per-turn
// prefill/decode timing into the BenchmarkInfo surface embedders read
// (spec §6 "Benchmark info layout") and into Prometheus histograms for
// process-wide observability.
//
// Grounded on the teacher's zerolog-based structured logging idiom for
// what gets recorded, on internal/scheduler.Metrics's per-instance
// (rather than package-level init()+MustRegister) construction shape, and
// on the pack's Tutu-Engine-tutuengine internal/infra/metrics package for
// using Histograms for latency (the teacher's own
// internal/httpapi/metrics.go only needed counters/gauges).
package bench

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modeld/pkg/types"
)

// Metrics holds the Prometheus instruments for init/turn timings. Like
// internal/scheduler's Metrics, it is constructed per-instance rather than
// via package-level promauto vars, so more than one Engine (as in tests)
// never double-registers against the default registry.
type Metrics struct {
	initPhase        *prometheus.HistogramVec
	prefillTurn      prometheus.Histogram
	decodeTurn       prometheus.Histogram
	timeToFirstToken prometheus.Histogram
}

// NewMetrics constructs Metrics registered against reg (nil skips
// registration; the instruments still work, they export nothing).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		initPhase: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sessioncore",
			Subsystem: "bench",
			Name:      "init_phase_seconds",
			Help:      "Duration of each Engine initialization phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		prefillTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessioncore",
			Subsystem: "bench",
			Name:      "prefill_turn_seconds",
			Help:      "Duration of each prefill turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		decodeTurn: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessioncore",
			Subsystem: "bench",
			Name:      "decode_turn_seconds",
			Help:      "Duration of each decode turn.",
			Buckets:   prometheus.DefBuckets,
		}),
		timeToFirstToken: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sessioncore",
			Subsystem: "bench",
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from decode submission to the first emitted token.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.initPhase, m.prefillTurn, m.decodeTurn, m.timeToFirstToken)
	}
	return m
}

// Recorder accumulates timings into one types.BenchmarkInfo and mirrors
// them into Metrics. One Recorder per Engine/benchmark run; safe for
// concurrent use since a session's decode/prefill turns can be recorded
// from the scheduler's single worker thread while an embedder concurrently
// reads GetBenchmarkInfo.
type Recorder struct {
	metrics *Metrics

	mu             sync.Mutex
	info           types.BenchmarkInfo
	firstTokenOnce sync.Once
}

// NewRecorder constructs a Recorder. metrics may be nil (no Prometheus
// export, BenchmarkInfo bookkeeping still works).
func NewRecorder(metrics *Metrics) *Recorder {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Recorder{metrics: metrics}
}

// RecordInitPhase times fn and appends a BenchmarkInitPhase entry under
// name (spec §6 "init phases with nanosecond durations").
func (r *Recorder) RecordInitPhase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	r.mu.Lock()
	r.info.InitPhases = append(r.info.InitPhases, types.BenchmarkInitPhase{Name: name, Duration: elapsed})
	r.mu.Unlock()
	r.metrics.initPhase.WithLabelValues(name).Observe(elapsed.Seconds())
	return err
}

// RecordPrefillTurn appends a per-turn prefill record (spec §6 "per-turn
// prefill/decode turn records {num_tokens, elapsed}").
func (r *Recorder) RecordPrefillTurn(numTokens int, elapsed time.Duration) {
	r.mu.Lock()
	r.info.PrefillTurns = append(r.info.PrefillTurns, types.BenchmarkTurn{NumTokens: numTokens, Elapsed: elapsed})
	r.mu.Unlock()
	r.metrics.prefillTurn.Observe(elapsed.Seconds())
}

// RecordDecodeTurn appends a per-turn decode record and, on the first call
// for this Recorder's lifetime, also sets TimeToFirstToken.
func (r *Recorder) RecordDecodeTurn(numTokens int, elapsed time.Duration) {
	r.mu.Lock()
	r.info.DecodeTurns = append(r.info.DecodeTurns, types.BenchmarkTurn{NumTokens: numTokens, Elapsed: elapsed})
	r.mu.Unlock()
	r.metrics.decodeTurn.Observe(elapsed.Seconds())
	r.firstTokenOnce.Do(func() {
		r.mu.Lock()
		r.info.TimeToFirstToken = elapsed
		r.mu.Unlock()
		r.metrics.timeToFirstToken.Observe(elapsed.Seconds())
	})
}

// Snapshot returns a copy of the accumulated BenchmarkInfo.
func (r *Recorder) Snapshot() types.BenchmarkInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.info
	out.InitPhases = append([]types.BenchmarkInitPhase(nil), r.info.InitPhases...)
	out.PrefillTurns = append([]types.BenchmarkTurn(nil), r.info.PrefillTurns...)
	out.DecodeTurns = append([]types.BenchmarkTurn(nil), r.info.DecodeTurns...)
	return out
}
