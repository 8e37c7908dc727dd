package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/mla-quiz/medref/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const quizListPath = "/api/quizzes"

// PreloadResult counts the quizzes stored by a preload run
type PreloadResult struct {
	Cached int `json:"cached"`
	Total  int `json:"total"`
}

type quizList struct {
	Success bool `json:"success"`
	Quizzes []struct {
		Name string `json:"name"`
	} `json:"quizzes"`
}

// PreloadQuizzes fetches the quiz list and stores every quiz in the quiz-data bucket.
// The outcome is broadcast as QUIZ_PRELOAD_COMPLETE or QUIZ_PRELOAD_FAILED.
func (w *Worker) PreloadQuizzes(ctx context.Context) (*PreloadResult, error) {
	result, err := w.preload(ctx)
	if err != nil {
		w.logger.Warn("quiz preload failed", zap.Error(err))
		w.hub.Broadcast(models.Message{Type: models.MessagePreloadFailed, Error: err.Error()})
		return nil, err
	}

	w.logger.Info("quiz preload complete", zap.Int("cached", result.Cached), zap.Int("total", result.Total))
	w.hub.Broadcast(models.Message{Type: models.MessagePreloadComplete, Cached: result.Cached, Total: result.Total})
	return result, nil
}

func (w *Worker) preload(ctx context.Context) (*PreloadResult, error) {
	listReq := &Request{Method: http.MethodGet, URL: quizListPath, Header: http.Header{}}
	resp, err := w.fetch(ctx, listReq)
	if err != nil {
		return nil, fmt.Errorf("cannot preload quizzes while offline: %w", err)
	}
	if resp.Status != http.StatusOK {
		return nil, fmt.Errorf("failed to list quizzes: status %d", resp.Status)
	}

	var list quizList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode quiz list: %w", err)
	}

	var cached atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.PreloadWorkers)

	for _, quiz := range list.Quizzes {
		if quiz.Name == "" {
			continue
		}
		name := quiz.Name
		g.Go(func() error {
			req := &Request{
				Method: http.MethodGet,
				URL:    "/api/quiz/" + url.PathEscape(name),
				Header: http.Header{},
			}
			resp, err := w.fetch(gctx, req)
			if err != nil {
				w.logger.Warn("failed to preload quiz", zap.String("quiz", name), zap.Error(err))
				return nil
			}
			if resp.Status != http.StatusOK {
				w.logger.Warn("failed to preload quiz", zap.String("quiz", name), zap.Int("status", resp.Status))
				return nil
			}
			if err := w.buckets.QuizData.Put(gctx, req.Key(), resp); err != nil {
				w.logger.Warn("cache write failed", zap.String("quiz", name), zap.Error(err))
				return nil
			}
			cached.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &PreloadResult{Cached: int(cached.Load()), Total: len(list.Quizzes)}, nil
}
