package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/storage"
	"go.uber.org/zap"
)

// ErrUnknownSyncTag is returned when a sync signal carries a tag the worker does not replay
var ErrUnknownSyncTag = errors.New("unknown sync tag")

// Sync replays every due pending submission and broadcasts one OFFLINE_SYNC_COMPLETE with the results.
// Runs are serialized; a failed replay never stops the batch.
func (w *Worker) Sync(ctx context.Context, tag string) ([]models.SyncResult, error) {
	if tag != w.opts.SyncTag {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSyncTag, tag)
	}

	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	ids, err := w.queue.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending submissions: %w", err)
	}

	results := make([]models.SyncResult, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if result, ok := w.replay(ctx, id); ok {
			results = append(results, result)
		}
	}

	w.logger.Info("sync complete", zap.Int("pending", len(ids)), zap.Int("attempted", len(results)))
	w.hub.Broadcast(models.Message{Type: models.MessageSyncComplete, Results: results})
	return results, nil
}

// replay attempts one entry. ok is false when the entry was skipped.
func (w *Worker) replay(ctx context.Context, id string) (models.SyncResult, bool) {
	sub, err := w.queue.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return models.SyncResult{}, false
	}
	if err != nil {
		w.logger.Warn("failed to read pending submission", zap.String("id", id), zap.Error(err))
		return models.SyncResult{ID: id, Error: err.Error()}, true
	}

	if sub.DeadLetter || w.now().Before(sub.NextAttemptAt) {
		return models.SyncResult{}, false
	}

	req := &Request{
		Method: sub.Method,
		URL:    sub.URL,
		Header: make(http.Header, len(sub.Headers)),
	}
	for name, value := range sub.Headers {
		req.Header.Set(name, value)
	}
	if req.Body, err = sub.Payload(); err != nil {
		w.logger.Warn("failed to read pending submission body", zap.String("id", id), zap.Error(err))
		return models.SyncResult{ID: id, Error: err.Error()}, true
	}

	// Replays record reachability without firing a reconnect sync: this run already is one
	resp, err := w.net.Fetch(ctx, req)
	switch {
	case err == nil:
		w.markReachable(true)
	case errors.Is(err, ErrOffline):
		w.markReachable(false)
	}
	if err == nil && (resp.Status < 200 || resp.Status > 299) {
		err = fmt.Errorf("upstream returned status %d", resp.Status)
	}
	if err != nil {
		return w.recordFailure(ctx, sub, err), true
	}

	if _, err := w.queue.Remove(ctx, sub.ID); err != nil {
		w.logger.Warn("failed to remove replayed submission", zap.String("id", sub.ID), zap.Error(err))
	}
	quizName := submissionQuizName(sub.URL, sub.Body)
	w.logger.Info("replayed submission", zap.String("id", sub.ID), zap.String("quiz", quizName))
	return models.SyncResult{ID: sub.ID, Success: true, QuizName: quizName}, true
}

func (w *Worker) recordFailure(ctx context.Context, sub *models.PendingSubmission, cause error) models.SyncResult {
	sub.Attempts++
	sub.LastError = cause.Error()
	sub.NextAttemptAt = w.now().Add(w.backoff(sub.Attempts))
	if w.opts.MaxAttempts > 0 && sub.Attempts >= w.opts.MaxAttempts {
		sub.DeadLetter = true
	}

	if err := w.queue.Save(ctx, sub); err != nil {
		w.logger.Warn("failed to update pending submission", zap.String("id", sub.ID), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("id", sub.ID),
		zap.Int("attempts", sub.Attempts),
		zap.Error(cause),
	}
	if sub.DeadLetter {
		w.logger.Warn("submission moved to dead letter", fields...)
	} else {
		w.logger.Info("replay failed", append(fields, zap.Time("next_attempt_at", sub.NextAttemptAt))...)
	}
	return models.SyncResult{ID: sub.ID, Error: cause.Error()}
}

// backoff returns BaseDelay doubled for every failed attempt after the first, capped at MaxDelay
func (w *Worker) backoff(attempts int) time.Duration {
	delay := w.opts.BaseDelay
	if delay <= 0 || attempts <= 0 {
		return 0
	}
	for i := 1; i < attempts; i++ {
		delay *= 2
		if w.opts.MaxDelay > 0 && delay >= w.opts.MaxDelay {
			return w.opts.MaxDelay
		}
	}
	if w.opts.MaxDelay > 0 && delay > w.opts.MaxDelay {
		return w.opts.MaxDelay
	}
	return delay
}
