package bench

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRecordInitPhaseAppendsAndPropagatesError(t *testing.T) {
	r := NewRecorder(NewMetrics(prometheus.NewRegistry()))
	boom := errors.New("load failed")

	err := r.RecordInitPhase("load_model", func() error {
		time.Sleep(time.Millisecond)
		return boom
	})
	require.ErrorIs(t, err, boom)

	snap := r.Snapshot()
	require.Len(t, snap.InitPhases, 1)
	require.Equal(t, "load_model", snap.InitPhases[0].Name)
	require.Greater(t, snap.InitPhases[0].Duration, time.Duration(0))
}

func TestRecordDecodeTurnSetsTimeToFirstTokenOnce(t *testing.T) {
	r := NewRecorder(nil)
	r.RecordDecodeTurn(1, 5*time.Millisecond)
	r.RecordDecodeTurn(1, 50*time.Millisecond)

	snap := r.Snapshot()
	require.Len(t, snap.DecodeTurns, 2)
	require.Equal(t, 5*time.Millisecond, snap.TimeToFirstToken, "time to first token must latch on the first decode turn only")
}

func TestRecordPrefillTurnAccumulates(t *testing.T) {
	r := NewRecorder(nil)
	r.RecordPrefillTurn(10, time.Millisecond)
	r.RecordPrefillTurn(20, 2*time.Millisecond)

	snap := r.Snapshot()
	require.Len(t, snap.PrefillTurns, 2)
	require.Equal(t, 10, snap.PrefillTurns[0].NumTokens)
	require.Equal(t, 20, snap.PrefillTurns[1].NumTokens)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRecorder(nil)
	r.RecordPrefillTurn(1, time.Millisecond)

	snap := r.Snapshot()
	snap.PrefillTurns[0].NumTokens = 999

	again := r.Snapshot()
	require.Equal(t, 1, again.PrefillTurns[0].NumTokens)
}
