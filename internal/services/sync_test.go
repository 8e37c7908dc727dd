package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mla-quiz/medref/internal/config"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_SubmissionQueuedAndReplayed(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, hub, _ := newTestWorker(t, net, nil)
	sub := hub.Subscribe()

	net.setDown(true)
	body := `{"quizName":"Cardiology","answers":[1,2,3]}`
	resp, _ := w.Handle(ctx, submit("/api/quiz/Cardiology/submit", body))
	assert.Equal(t, http.StatusOK, resp.Status)
	offline := decodeOffline(t, resp)
	assert.True(t, offline.Success)
	assert.True(t, offline.Offline)
	assert.NotEmpty(t, offline.Message)

	stored := receive(t, sub)
	assert.Equal(t, models.MessageSubmissionStored, stored.Type)

	pending, err := w.Queue().List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stored.SubmissionID, pending[0].ID)
	assert.Equal(t, "/api/quiz/Cardiology/submit", pending[0].URL)
	assert.Equal(t, http.MethodPost, pending[0].Method)
	assert.Equal(t, "application/json", pending[0].Headers["Content-Type"])
	assert.JSONEq(t, body, string(pending[0].Body))

	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/Cardiology/submit", http.StatusOK, `{"success":true}`)

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "Cardiology", results[0].QuizName)
	assert.JSONEq(t, body, string(net.bodies["POST /api/quiz/Cardiology/submit"]))

	complete := receive(t, sub)
	assert.Equal(t, models.MessageSyncComplete, complete.Type)
	assert.Equal(t, results, complete.Results)

	ids, err := w.Queue().IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A second run has nothing left to touch
	results, err = w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, net.callCount("POST /api/quiz/Cardiology/submit"))
	assert.Equal(t, models.MessageSyncComplete, receive(t, sub).Type)
}

func TestWorker_SyncUnknownTag(t *testing.T) {
	w, _, _ := newTestWorker(t, newFakeNetwork(), nil)

	_, err := w.Sync(context.Background(), "something-else")
	assert.ErrorIs(t, err, ErrUnknownSyncTag)
}

func TestWorker_SubmissionQuizNameFromSnakeCaseOrPath(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, nil)

	net.setDown(true)
	w.Handle(ctx, submit("/api/quiz/submit", `{"quiz_name":"Renal"}`))
	w.Handle(ctx, submit("/api/quiz/Neuro%20Basics/submit", `{"answers":[]}`))

	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/submit", http.StatusOK, `{}`)
	net.route(http.MethodPost, "/api/quiz/Neuro%20Basics/submit", http.StatusOK, `{}`)

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Renal", results[0].QuizName)
	assert.Equal(t, "Neuro Basics", results[1].QuizName)
}

func TestWorker_SubmissionCleanup(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		remaining int
	}{
		{name: "supersede removes matching quiz only", mode: config.CleanupSupersede, remaining: 1},
		{name: "off keeps every queued entry", mode: config.CleanupOff, remaining: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			net := newFakeNetwork()
			w, _, _ := newTestWorker(t, net, func(o *Options) { o.CleanupMode = tt.mode })

			net.setDown(true)
			w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology","attempt":1}`))
			w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology","attempt":2}`))
			w.Handle(ctx, submit("/api/quiz/Renal/submit", `{"quizName":"Renal"}`))

			net.setDown(false)
			net.route(http.MethodPost, "/api/quiz/Cardiology/submit", http.StatusOK, `{"success":true,"score":3}`)
			resp, _ := w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology","attempt":3}`))
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, `{"success":true,"score":3}`, string(resp.Body))

			pending, err := w.Queue().List(ctx)
			require.NoError(t, err)
			assert.Len(t, pending, tt.remaining)
			if tt.mode == config.CleanupSupersede {
				assert.Equal(t, "Renal", pending[0].QuizName())
			}
		})
	}
}

func TestWorker_FailedSubmissionDoesNotCleanUp(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, nil)

	net.setDown(true)
	w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology"}`))

	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/Cardiology/submit", http.StatusBadRequest, `{"success":false}`)
	resp, _ := w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology"}`))
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	ids, err := w.Queue().IDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestWorker_ReplayBackoffAndDeadLetter(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, func(o *Options) { o.MaxAttempts = 2 })

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	net.setDown(true)
	w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology"}`))
	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/Cardiology/submit", http.StatusInternalServerError, `{"error":"boom"}`)

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "500")

	pending, err := w.Queue().List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.True(t, pending[0].NextAttemptAt.Equal(now.Add(30*time.Second)))
	assert.False(t, pending[0].DeadLetter)

	// Not yet due
	results, err = w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, net.callCount("POST /api/quiz/Cardiology/submit"))

	now = now.Add(31 * time.Second)
	results, err = w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)

	pending, err = w.Queue().List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.True(t, pending[0].DeadLetter)

	now = now.Add(24 * time.Hour)
	results, err = w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	assert.Empty(t, results)

	status, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.OfflineSubmissions)
	assert.Equal(t, 1, status.DeadSubmissions)
}

func TestWorker_ReplayMalformedEntry(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, nil)

	require.NoError(t, w.buckets.Submissions.Put(ctx, "1700000000000-deadbeef", &models.CachedResponse{
		Status: http.StatusOK,
		Body:   []byte("{not json"),
	}))

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1700000000000-deadbeef", results[0].ID)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].Error)

	ids, err := w.Queue().IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1700000000000-deadbeef"}, ids)
}

func TestWorker_ReplayOfflineKeepsEntry(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, nil)

	net.setDown(true)
	w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology"}`))

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)

	ids, err := w.Queue().IDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestWorker_Backoff(t *testing.T) {
	w := &Worker{opts: Options{BaseDelay: 30 * time.Second, MaxDelay: 5 * time.Minute}}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{5, 5 * time.Minute},
		{40, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.backoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestNewSubmissionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a := NewSubmissionID(now)
	b := NewSubmissionID(now)

	assert.Regexp(t, `^1700000000123-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestWorker_ManualSyncAfterReconnectBroadcastsOnce(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, hub, _ := newTestWorker(t, net, func(o *Options) { o.SyncOnConnect = true })
	sub := hub.Subscribe()

	net.setDown(true)
	w.Handle(ctx, submit("/api/quiz/Cardiology/submit", `{"quizName":"Cardiology"}`))
	assert.Equal(t, models.MessageSubmissionStored, receive(t, sub).Type)
	assert.False(t, w.IsOnline())

	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/Cardiology/submit", http.StatusOK, `{"success":true}`)

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, w.IsOnline())

	complete := receive(t, sub)
	assert.Equal(t, models.MessageSyncComplete, complete.Type)
	assert.Len(t, complete.Results, 1)
	assertQuiet(t, sub, 300*time.Millisecond)
}

func TestWorker_NonJSONSubmissionReplayedVerbatim(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	w, _, _ := newTestWorker(t, net, nil)

	body := "quiz_name=Renal&answers=1%2C2"
	req := submit("/api/quiz/Renal/submit", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	net.setDown(true)
	w.Handle(ctx, req)

	pending, err := w.Queue().List(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.BodyEncodingBase64, pending[0].BodyEncoding)
	payload, err := pending[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, body, string(payload))

	net.setDown(false)
	net.route(http.MethodPost, "/api/quiz/Renal/submit", http.StatusOK, `{"success":true}`)

	results, err := w.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "Renal", results[0].QuizName)
	assert.Equal(t, body, string(net.bodies["POST /api/quiz/Renal/submit"]))
}
