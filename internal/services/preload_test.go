package services

import (
	"context"
	"net/http"
	"testing"

	"github.com/mla-quiz/medref/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_PreloadQuizzes(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	net.route(http.MethodGet, "/api/quizzes", http.StatusOK,
		`{"success":true,"quizzes":[{"name":"Cardiology"},{"name":"Renal Medicine"},{"name":"Neurology"}]}`)
	net.route(http.MethodGet, "/api/quiz/Cardiology", http.StatusOK, `{"success":true,"quiz":{"name":"Cardiology"}}`)
	net.route(http.MethodGet, "/api/quiz/Renal%20Medicine", http.StatusOK, `{"success":true,"quiz":{"name":"Renal Medicine"}}`)
	w, hub, _ := newTestWorker(t, net, nil)
	sub := hub.Subscribe()

	result, err := w.PreloadQuizzes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Cached)
	assert.Equal(t, 3, result.Total)

	msg := receive(t, sub)
	assert.Equal(t, models.MessagePreloadComplete, msg.Type)
	assert.Equal(t, 2, msg.Cached)
	assert.Equal(t, 3, msg.Total)

	net.setDown(true)
	resp, _ := w.Handle(ctx, get("/api/quiz/Renal%20Medicine"))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, string(resp.Body), "Renal Medicine")

	status, err := w.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.CachedQuizzes)
	assert.False(t, status.IsOnline)
}

func TestWorker_PreloadQuizzesOffline(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	net.setDown(true)
	w, hub, _ := newTestWorker(t, net, nil)
	sub := hub.Subscribe()

	_, err := w.HandleControl(ctx, models.ControlMessage{Type: models.ControlPreloadQuizzes})
	require.Error(t, err)

	msg := receive(t, sub)
	assert.Equal(t, models.MessagePreloadFailed, msg.Type)
	assert.Contains(t, msg.Error, "offline")
}
