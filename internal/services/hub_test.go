package services

import (
	"testing"

	"github.com/mla-quiz/medref/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(4, zaptest.NewLogger(t))
	defer hub.Close()

	a := hub.Subscribe()
	b := hub.Subscribe()
	assert.Equal(t, 2, hub.Clients())

	hub.Broadcast(models.Message{Type: models.MessageSubmissionStored, SubmissionID: "1-abc"})

	assert.Equal(t, "1-abc", receive(t, a).SubmissionID)
	assert.Equal(t, "1-abc", receive(t, b).SubmissionID)

	hub.Unsubscribe(a)
	assert.Equal(t, 1, hub.Clients())
	_, open := <-a.C
	assert.False(t, open)
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := NewHub(1, zaptest.NewLogger(t))
	defer hub.Close()

	slow := hub.Subscribe()
	hub.Broadcast(models.Message{Type: models.MessageSyncComplete})
	hub.Broadcast(models.Message{Type: models.MessageSyncComplete})

	assert.Equal(t, 0, hub.Clients())
	<-slow.C
	_, open := <-slow.C
	assert.False(t, open)
}

func TestHub_CloseDisconnectsEveryone(t *testing.T) {
	hub := NewHub(1, zaptest.NewLogger(t))
	sub := hub.Subscribe()
	hub.Close()

	_, open := <-sub.C
	assert.False(t, open)

	late := hub.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.Clients())
}
