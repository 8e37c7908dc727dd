package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mla-quiz/medref/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "missing token"})
			return
		}
		switch r.URL.Path {
		case "/_sw/sync":
			assert.Equal(t, "quiz-submission", r.URL.Query().Get("tag"))
			json.NewEncoder(w).Encode(SyncResponse{Results: []models.SyncResult{{ID: "1-a", Success: true, QuizName: "Cardiology"}}})
		case "/_sw/status":
			json.NewEncoder(w).Encode(models.OfflineStatus{OfflineSubmissions: 2, CachedQuizzes: 5, IsOnline: true})
		case "/_sw/submissions":
			json.NewEncoder(w).Encode(SubmissionsResponse{Submissions: []models.PendingSubmission{{ID: "1-a", URL: "/api/quiz/Cardiology/submit"}}})
		case "/_sw/message":
			var msg models.ControlMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			assert.Equal(t, models.ControlSkipWaiting, msg.Type)
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := NewControlClient(server.URL, "tok")

	synced, err := client.Sync(ctx, "quiz-submission")
	require.NoError(t, err)
	require.Len(t, synced.Results, 1)
	assert.Equal(t, "Cardiology", synced.Results[0].QuizName)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.OfflineSubmissions)
	assert.Equal(t, 5, status.CachedQuizzes)

	subs, err := client.Submissions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs.Submissions, 1)

	var reply map[string]bool
	require.NoError(t, client.Send(ctx, models.ControlMessage{Type: models.ControlSkipWaiting}, &reply))
	assert.True(t, reply["ok"])

	_, err = NewControlClient(server.URL, "").Status(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token")
}
