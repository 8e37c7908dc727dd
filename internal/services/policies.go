package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mla-quiz/medref/internal/config"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/storage"
	"go.uber.org/zap"
)

var shellKey = (&Request{Method: http.MethodGet, URL: "/"}).Key()

// handleStatic is cache-first
func (w *Worker) handleStatic(ctx context.Context, bucket storage.Bucket, req *Request) *models.CachedResponse {
	if cached := w.match(ctx, bucket, req.Key()); cached != nil {
		return cached
	}

	resp, err := w.fetch(ctx, req)
	if err != nil {
		w.logger.Debug("static fetch failed", zap.String("url", req.URL), zap.Error(err))
		if req.Navigate {
			if shell := w.match(ctx, bucket, shellKey); shell != nil {
				return shell
			}
		}
		return offlineUnavailable(msgOffline)
	}

	if resp.Status == http.StatusOK {
		w.put(ctx, bucket, req.Key(), resp)
	}
	return resp
}

// handleQuizData is network-first with a persistent fallback
func (w *Worker) handleQuizData(ctx context.Context, bucket storage.Bucket, req *Request) *models.CachedResponse {
	resp, err := w.fetch(ctx, req)
	if err == nil {
		if resp.Status == http.StatusOK {
			w.put(ctx, bucket, req.Key(), resp)
		}
		return resp
	}

	w.logger.Debug("quiz fetch failed, trying cache", zap.String("url", req.URL), zap.Error(err))
	if cached := w.match(ctx, bucket, req.Key()); cached != nil {
		return cached
	}
	return offlineUnavailable(msgQuizNotCached)
}

// handleAPI is network-first into the runtime bucket
func (w *Worker) handleAPI(ctx context.Context, bucket storage.Bucket, req *Request) *models.CachedResponse {
	resp, err := w.fetch(ctx, req)
	if err == nil {
		if req.Method == http.MethodGet && resp.Status == http.StatusOK {
			w.put(ctx, bucket, req.Key(), resp)
		}
		return resp
	}

	if cached := w.match(ctx, bucket, req.Key()); cached != nil {
		return cached
	}
	return offlineUnavailable(msgOffline)
}

// handleShell looks in the static then runtime buckets before going to the network.
// Navigations that nothing can answer get the cached root document or the inline offline page.
func (w *Worker) handleShell(ctx context.Context, req *Request) *models.CachedResponse {
	for _, bucket := range []storage.Bucket{w.buckets.Static, w.buckets.Runtime} {
		if cached := w.match(ctx, bucket, req.Key()); cached != nil {
			return cached
		}
	}

	resp, err := w.fetch(ctx, req)
	if err == nil {
		if req.Method == http.MethodGet && resp.Status == http.StatusOK {
			w.put(ctx, w.buckets.Runtime, req.Key(), resp)
		}
		return resp
	}

	if !req.Navigate {
		return offlineUnavailable(msgOffline)
	}
	if shell := w.match(ctx, w.buckets.Static, shellKey); shell != nil {
		return shell
	}
	return offlinePage()
}

// handleSubmission forwards a quiz submission, queueing it for replay when the network is gone
func (w *Worker) handleSubmission(ctx context.Context, queue *SubmissionQueue, req *Request) *models.CachedResponse {
	resp, err := w.fetch(ctx, req)
	if err != nil {
		return w.queueSubmission(ctx, queue, req, err)
	}

	if resp.Status == http.StatusOK && w.opts.CleanupMode != config.CleanupOff {
		quizName := submissionQuizName(req.URL, req.Body)
		removed, err := queue.RemoveByQuizName(ctx, quizName)
		if err != nil {
			w.logger.Warn("failed to clean up pending submissions", zap.String("quiz", quizName), zap.Error(err))
		}
		if len(removed) > 0 {
			w.logger.Info("superseded pending submissions",
				zap.String("quiz", quizName),
				zap.Strings("ids", removed),
			)
		}
	}
	return resp
}

func (w *Worker) queueSubmission(ctx context.Context, queue *SubmissionQueue, req *Request, cause error) *models.CachedResponse {
	body, encoding := submissionBody(req.Body)
	sub := &models.PendingSubmission{
		ID:           NewSubmissionID(w.now()),
		URL:          req.URL,
		Method:       req.Method,
		Headers:      snapshotHeaders(req.Header),
		Body:         body,
		BodyEncoding: encoding,
		CreatedAt:    w.now(),
	}

	if err := queue.Save(ctx, sub); err != nil {
		if !errors.Is(err, storage.ErrUnavailable) {
			w.logger.Error("failed to store offline submission", zap.String("id", sub.ID), zap.Error(err))
		} else {
			w.logger.Warn("offline submission dropped, no cache storage", zap.String("url", req.URL))
		}
		return offlineUnavailable(msgQueueUnavailable)
	}

	w.logger.Info("stored offline submission",
		zap.String("id", sub.ID),
		zap.String("url", sub.URL),
		zap.NamedError("cause", cause),
	)
	w.hub.Broadcast(models.Message{Type: models.MessageSubmissionStored, SubmissionID: sub.ID})
	return offlineAccepted()
}

// submissionBody keeps a JSON body as is. Anything else is stored base64 encoded so replay sends the same bytes.
func submissionBody(body []byte) (json.RawMessage, string) {
	if len(body) == 0 {
		return json.RawMessage("null"), ""
	}
	if json.Valid(body) {
		return json.RawMessage(body), ""
	}
	encoded, _ := json.Marshal(base64.StdEncoding.EncodeToString(body))
	return encoded, models.BodyEncodingBase64
}
