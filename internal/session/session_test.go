package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"modeld/internal/executor"
	"modeld/internal/resource"
	"modeld/internal/scheduler"
	"modeld/internal/status"
	"modeld/pkg/types"
)

type fakeDetokenizer struct{}

func (fakeDetokenizer) Piece(id int32) []byte { return []byte{byte('a' + (id % 26))} }

func newTestSession(t *testing.T) (*scheduler.Scheduler, *Session) {
	t.Helper()
	mgr, err := resource.New(executor.NewStub(), 4, nil)
	require.NoError(t, err)
	sched := scheduler.New(mgr, scheduler.WithDetokenizer(fakeDetokenizer{}))
	t.Cleanup(sched.Stop)

	sid, err := sched.RegisterNewSession(types.SessionConfig{Sampler: types.SamplerParams{Temperature: 0}}, nil)
	require.NoError(t, err)

	return sched, New(sched, sid)
}

func TestRunPrefillThenDecodeAdvancesStateAndFrontier(t *testing.T) {
	_, sess := newTestSession(t)
	require.Equal(t, Fresh, sess.State())

	_, err := sess.RunPrefill([]int32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, Prefilled, sess.State())
	require.Len(t, sess.LastTaskIDs(), 1)
	prefillFrontier := sess.LastTaskIDs()[0]

	resp, err := sess.RunDecode(false, nil, DecodeOptions{MaxOutTokens: 4})
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, resp.State)
	require.Equal(t, Decoded, sess.State())
	require.Len(t, sess.LastTaskIDs(), 1)
	require.NotEqual(t, prefillFrontier, sess.LastTaskIDs()[0])
	require.NotEmpty(t, resp.Texts[0])
}

func TestRunDecodeNormalizesScoreByTokenCount(t *testing.T) {
	sched, sess := newTestSession(t)
	_, err := sess.RunPrefill([]int32{1})
	require.NoError(t, err)

	// Drive an independently-primed session directly through the
	// scheduler to capture the raw (unnormalized) cumulative score
	// RunDecode's wrapper is supposed to divide down.
	sid2, err := sched.RegisterNewSession(types.SessionConfig{Sampler: types.SamplerParams{Temperature: 0}}, nil)
	require.NoError(t, err)
	prefillCtrl := sched.AddPrefillTask(sid2, sched.GetNewTaskId(), []int32{1}, nil, nil, func(types.Responses) {})
	_, err = prefillCtrl.WaitUntilDone(time.Second)
	require.NoError(t, err)

	var rawFinal types.Responses
	var tokenCount int
	decodeCtrl := sched.AddDecodeTask(sid2, sched.GetNewTaskId(), nil, nil, nil, func(r types.Responses) {
		if r.State == types.TaskProcessing {
			tokenCount++
		}
		rawFinal = r
	}, 5, nil)
	_, err = decodeCtrl.WaitUntilDone(time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, tokenCount)

	resp, err := sess.RunDecode(false, nil, DecodeOptions{MaxOutTokens: 5})
	require.NoError(t, err)
	require.Len(t, resp.Scores, 1)
	require.InDelta(t, rawFinal.Scores[0]/float64(tokenCount), resp.Scores[0], 1e-9)
}

func TestFrontierClearsAndErrorPropagatesOnFailure(t *testing.T) {
	_, sess := newTestSession(t)
	_, err := sess.RunPrefill([]int32{1})
	require.NoError(t, err)
	require.NotEmpty(t, sess.LastTaskIDs())

	_, err = sess.RunTextScoring(nil, false)
	require.Error(t, err)
	require.True(t, status.IsInvalidArgument(err))
	require.Empty(t, sess.LastTaskIDs(), "frontier must clear after a terminal failure")
}

func TestCancelProcessCancelsInFlightDecode(t *testing.T) {
	sched, sess := newTestSession(t)
	_, err := sess.RunPrefill([]int32{1})
	require.NoError(t, err)

	// Freeze the single worker goroutine inside an unrelated task's
	// callback so the decode task submitted below is guaranteed to still
	// be sitting in the ready queue when CancelProcess runs.
	blockCh := make(chan struct{})
	sched.AddPrefillTask(sess.ID(), sched.GetNewTaskId(), []int32{2}, nil, nil, func(types.Responses) {
		<-blockCh
	})

	var got types.Responses
	ctrl := sess.RunDecodeAsync(func(r types.Responses) { got = r }, false, nil, DecodeOptions{MaxOutTokens: 5})
	sess.CancelProcess()
	close(blockCh)

	state, err := ctrl.WaitUntilDone(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, types.TaskCancelled, state)
	require.Equal(t, types.TaskCancelled, got.State)
	require.Error(t, got.Err)
	require.True(t, status.IsCancelled(got.Err))
	require.Contains(t, got.Err.Error(), "cancel_reason_code=DECODE_TASK_CANCELLED_STATE")
	require.Contains(t, got.Err.Error(), "origin_component=SCHEDULER")
	require.Empty(t, sess.LastTaskIDs())
}

func TestGenerateContentComposesPrefillAndDecode(t *testing.T) {
	_, sess := newTestSession(t)
	resp, err := sess.GenerateContent([]int32{1, 2}, false, nil, DecodeOptions{MaxOutTokens: 3})
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, resp.State)
	require.NotEmpty(t, resp.Texts[0])
	require.Equal(t, Decoded, sess.State())
}

func TestGenerateContentForwardsPrefillFailureWithoutDecoding(t *testing.T) {
	mgr, err := resource.New(executor.NewStub(), 4, nil)
	require.NoError(t, err)
	sched := scheduler.New(mgr)
	t.Cleanup(sched.Stop)

	// A session ID the scheduler never registered forces the Prefill task
	// to fail with NotFound (execute's session-lookup check) instead of
	// reaching the decode phase at all.
	broken := New(sched, "does-not-exist")

	resp, err := broken.GenerateContent([]int32{1}, false, nil, DecodeOptions{MaxOutTokens: 1})
	require.Error(t, err)
	require.True(t, status.IsNotFound(err))
	require.Equal(t, types.TaskFailed, resp.State)
}

func TestCloneInheritsStateAndFrontier(t *testing.T) {
	_, sess := newTestSession(t)
	_, err := sess.RunPrefill([]int32{1, 2})
	require.NoError(t, err)

	clone, resp, err := sess.Clone("cloned-session")
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, resp.State)
	require.Equal(t, sess.State(), clone.State())
	require.Equal(t, sess.LastTaskIDs(), clone.LastTaskIDs())
}

type fakeApplier struct {
	tokens []int32
	suffix []int32
}

func (f fakeApplier) ApplyPrompt(types.Message) ([]int32, error) { return f.tokens, nil }
func (f fakeApplier) TemplateSuffix() []int32                    { return f.suffix }

func TestSendMessageAppliesTemplateThenGenerates(t *testing.T) {
	_, sess := newTestSession(t)
	applier := fakeApplier{tokens: []int32{3, 4}, suffix: []int32{5}}
	resp, err := sess.SendMessage(applier, types.Message{Role: types.RoleUser, Text: "hi"}, true, DecodeOptions{MaxOutTokens: 2})
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, resp.State)
}
