package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/router"
	"github.com/mla-quiz/medref/internal/storage"
)

// SubmissionQueue persists pending submissions in the offline-submissions bucket, one entry per id
type SubmissionQueue struct {
	bucket storage.Bucket
}

// NewSubmissionQueue wraps a bucket handle
func NewSubmissionQueue(bucket storage.Bucket) *SubmissionQueue {
	return &SubmissionQueue{bucket: bucket}
}

// NewSubmissionID returns <unix-millis>-<random suffix>
func NewSubmissionID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Save inserts or overwrites a submission
func (q *SubmissionQueue) Save(ctx context.Context, sub *models.PendingSubmission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}
	return q.bucket.Put(ctx, sub.ID, &models.CachedResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   data,
	})
}

// Load reads a submission back. storage.ErrNotFound means it is gone;
// any other error means the stored entry could not be decoded.
func (q *SubmissionQueue) Load(ctx context.Context, id string) (*models.PendingSubmission, error) {
	entry, err := q.bucket.Match(ctx, id)
	if err != nil {
		return nil, err
	}
	var sub models.PendingSubmission
	if err := json.Unmarshal(entry.Body, &sub); err != nil {
		return nil, fmt.Errorf("malformed submission %s: %w", id, err)
	}
	if sub.ID == "" {
		sub.ID = id
	}
	return &sub, nil
}

// Remove deletes a submission
func (q *SubmissionQueue) Remove(ctx context.Context, id string) (bool, error) {
	return q.bucket.Delete(ctx, id)
}

// IDs lists stored submission ids oldest first
func (q *SubmissionQueue) IDs(ctx context.Context) ([]string, error) {
	return q.bucket.Keys(ctx)
}

// List returns every decodable submission
func (q *SubmissionQueue) List(ctx context.Context) ([]models.PendingSubmission, error) {
	ids, err := q.IDs(ctx)
	if err != nil {
		return nil, err
	}
	subs := make([]models.PendingSubmission, 0, len(ids))
	for _, id := range ids {
		sub, err := q.Load(ctx, id)
		if err != nil {
			continue
		}
		subs = append(subs, *sub)
	}
	return subs, nil
}

// RemoveByQuizName deletes every pending submission for the named quiz and returns their ids.
// Each key is read then deleted without a lock; a concurrent writer can interleave.
func (q *SubmissionQueue) RemoveByQuizName(ctx context.Context, quizName string) ([]string, error) {
	if quizName == "" {
		return nil, nil
	}
	ids, err := q.IDs(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, id := range ids {
		sub, err := q.Load(ctx, id)
		if err != nil {
			continue
		}
		if submissionQuizName(sub.URL, sub.Body) != quizName {
			continue
		}
		ok, err := q.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// submissionQuizName prefers the body field and falls back to the path segment
func submissionQuizName(url string, body []byte) string {
	if name := models.QuizNameFromBody(body); name != "" {
		return name
	}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return router.QuizName(url)
}

// snapshotHeaders keeps the first value of every end-to-end header
func snapshotHeaders(h http.Header) map[string]string {
	snap := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		snap[name] = values[0]
	}
	for _, hop := range hopHeaders {
		delete(snap, hop)
	}
	return snap
}
