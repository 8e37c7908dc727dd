package models

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CachedResponse is the payload of a cache entry
type CachedResponse struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// PendingSubmission is a quiz submission that failed for lack of network and awaits replay
type PendingSubmission struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	Body          json.RawMessage   `json:"body"`
	BodyEncoding  string            `json:"body_encoding,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Attempts      int               `json:"attempts"`
	NextAttemptAt time.Time         `json:"next_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	DeadLetter    bool              `json:"dead_letter"`
}

// BodyEncodingBase64 marks a body that was not JSON and is kept as a base64 JSON string
const BodyEncodingBase64 = "base64"

// Payload returns the bytes the page originally sent
func (p *PendingSubmission) Payload() ([]byte, error) {
	if p.BodyEncoding == BodyEncodingBase64 {
		var encoded string
		if err := json.Unmarshal(p.Body, &encoded); err != nil {
			return nil, fmt.Errorf("failed to read encoded body: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode body: %w", err)
		}
		return raw, nil
	}
	if len(p.Body) == 0 || bytes.Equal(p.Body, []byte("null")) {
		return nil, nil
	}
	return p.Body, nil
}

// QuizName returns the quiz name carried in the submission body, if any
func (p *PendingSubmission) QuizName() string {
	return QuizNameFromBody(p.Body)
}

// QuizNameFromBody reads the quiz name field of a submission body.
// Both the camelCase field the PWA sends and the snake_case field the server reads are accepted.
func QuizNameFromBody(body []byte) string {
	var fields struct {
		QuizName      string `json:"quizName"`
		QuizNameSnake string `json:"quiz_name"`
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	if fields.QuizName != "" {
		return fields.QuizName
	}
	return fields.QuizNameSnake
}

// SyncResult is the outcome of replaying one pending submission
type SyncResult struct {
	ID       string `json:"id"`
	Success  bool   `json:"success"`
	QuizName string `json:"quizName,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OfflineStatus is the reply to a GET_OFFLINE_STATUS control message
type OfflineStatus struct {
	OfflineSubmissions int  `json:"offlineSubmissions"`
	DeadSubmissions    int  `json:"deadSubmissions"`
	CachedQuizzes      int  `json:"cachedQuizzes"`
	IsOnline           bool `json:"isOnline"`
}

// OfflineBody is the JSON body of every synthesized response
type OfflineBody struct {
	Success bool   `json:"success"`
	Offline bool   `json:"offline"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
