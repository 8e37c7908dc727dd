package services

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mla-quiz/medref/internal/models"
)

const (
	msgOffline          = "You are offline. Please check your connection."
	msgQuizNotCached    = "This quiz is not available offline. Connect to the internet to load it."
	msgSubmissionQueued = "Quiz submission stored offline. It will be synced when you reconnect."
	msgQueueUnavailable = "You are offline and the submission could not be stored for later."
)

func jsonResponse(status int, body any) *models.CachedResponse {
	data, _ := json.Marshal(body)
	return &models.CachedResponse{
		Status:   status,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     data,
		StoredAt: time.Now(),
	}
}

// offlineUnavailable is the 503 returned for reads that neither network nor cache can serve
func offlineUnavailable(msg string) *models.CachedResponse {
	return jsonResponse(http.StatusServiceUnavailable, models.OfflineBody{
		Success: false,
		Offline: true,
		Error:   msg,
	})
}

// offlineAccepted is the 200 returned for a submission queued for replay
func offlineAccepted() *models.CachedResponse {
	return jsonResponse(http.StatusOK, models.OfflineBody{
		Success: true,
		Offline: true,
		Message: msgSubmissionQueued,
	})
}

// offlinePage is served to navigations when neither network nor any cache can answer
func offlinePage() *models.CachedResponse {
	return &models.CachedResponse{
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:     []byte(offlineHTML),
		StoredAt: time.Now(),
	}
}

const offlineHTML = `<!DOCTYPE html>
<html>
<head>
    <title>MLA Quiz - Offline</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; text-align: center; padding: 50px 20px; background: #f2f2f7; }
        .offline-message { background: white; padding: 40px 20px; border-radius: 16px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); max-width: 400px; margin: 0 auto; }
        h1 { color: #1c1c1e; margin-bottom: 16px; }
        p { color: #8e8e93; line-height: 1.5; }
        button { background: #007AFF; color: white; border: none; border-radius: 8px; padding: 12px 24px; font-size: 16px; margin-top: 20px; cursor: pointer; }
    </style>
</head>
<body>
    <div class="offline-message">
        <h1>You're Offline</h1>
        <p>Please check your internet connection and try again.</p>
        <button onclick="location.reload()">Try Again</button>
    </div>
</body>
</html>`
