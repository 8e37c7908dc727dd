package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mla-quiz/medref/internal/config"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/router"
	"github.com/mla-quiz/medref/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownMessage is returned for control messages the worker does not understand
var ErrUnknownMessage = errors.New("unknown control message")

// State is the worker lifecycle state
type State int32

const (
	StateInstalling State = iota
	StateInstalled
	StateActivating
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	default:
		return "installing"
	}
}

// Options configures a Worker
type Options struct {
	Prefix      string
	Version     string
	Manifest    []string
	SkipWaiting bool

	Static   storage.Limits
	Runtime  storage.Limits
	QuizData storage.Limits

	SyncTag        string
	CleanupMode    string
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	SyncOnConnect  bool
	PreloadWorkers int
}

// OptionsFromConfig maps the gateway configuration onto worker options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Prefix:      cfg.Cache.Prefix,
		Version:     cfg.Cache.Version,
		Manifest:    cfg.Cache.Manifest,
		SkipWaiting: cfg.Cache.SkipWaiting,
		Static: storage.Limits{
			MaxEntries: cfg.Cache.Static.MaxEntries,
			TTL:        cfg.Cache.Static.TTL(),
		},
		Runtime: storage.Limits{
			MaxEntries: cfg.Cache.Runtime.MaxEntries,
			TTL:        cfg.Cache.Runtime.TTL(),
		},
		QuizData: storage.Limits{
			MaxEntries: cfg.Cache.QuizData.MaxEntries,
			TTL:        cfg.Cache.QuizData.TTL(),
		},
		SyncTag:        cfg.Sync.Tag,
		CleanupMode:    cfg.Sync.CleanupMode,
		MaxAttempts:    cfg.Sync.MaxAttempts,
		BaseDelay:      time.Duration(cfg.Sync.BaseDelaySeconds) * time.Second,
		MaxDelay:       time.Duration(cfg.Sync.MaxDelaySeconds) * time.Second,
		SyncOnConnect:  cfg.Sync.OnReconnect,
		PreloadWorkers: cfg.Sync.PreloadWorkers,
	}
}

// BucketNames returns the versioned names of the four buckets
func (o Options) BucketNames() (static, runtime, quizData, submissions string) {
	name := func(kind string) string { return fmt.Sprintf("%s-%s-%s", o.Prefix, kind, o.Version) }
	return name("static"), name("runtime"), name("quiz-data"), name("offline-submissions")
}

// Buckets are the handles every policy works against
type Buckets struct {
	Static      storage.Bucket
	Runtime     storage.Bucket
	QuizData    storage.Bucket
	Submissions storage.Bucket
}

// OpenBuckets opens the current version's buckets
func OpenBuckets(ctx context.Context, store storage.Store, opts Options) (Buckets, error) {
	staticName, runtimeName, quizName, subsName := opts.BucketNames()

	var b Buckets
	var err error
	if b.Static, err = store.Open(ctx, staticName, opts.Static); err != nil {
		return b, err
	}
	if b.Runtime, err = store.Open(ctx, runtimeName, opts.Runtime); err != nil {
		return b, err
	}
	if b.QuizData, err = store.Open(ctx, quizName, opts.QuizData); err != nil {
		return b, err
	}
	// Pending writes are never evicted
	if b.Submissions, err = store.Open(ctx, subsName, storage.Limits{}); err != nil {
		return b, err
	}
	return b, nil
}

// Worker intercepts page requests and applies the offline policies
type Worker struct {
	store      storage.Store
	buckets    Buckets
	queue      *SubmissionQueue
	net        Network
	hub        Broadcaster
	classifier *router.Classifier
	opts       Options
	logger     *zap.Logger

	state  atomic.Int32
	online atomic.Bool
	syncMu sync.Mutex
	now    func() time.Time

	// background work started by the worker itself; Close cancels and waits for it
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgMu     sync.Mutex
	bgClosed bool
	bgWG     sync.WaitGroup
}

// NewWorker opens the buckets and returns a worker in the installing state
func NewWorker(ctx context.Context, store storage.Store, net Network, hub Broadcaster, opts Options, logger *zap.Logger) (*Worker, error) {
	buckets, err := OpenBuckets(ctx, store, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open buckets: %w", err)
	}
	if opts.PreloadWorkers <= 0 {
		opts.PreloadWorkers = 4
	}

	w := &Worker{
		store:      store,
		buckets:    buckets,
		queue:      NewSubmissionQueue(buckets.Submissions),
		net:        net,
		hub:        hub,
		classifier: router.NewClassifier(opts.Manifest),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
	w.bgCtx, w.bgCancel = context.WithCancel(context.Background())
	w.online.Store(true)
	return w, nil
}

// Close cancels background syncs and waits for them to return.
// The worker must not be used once its store is closed.
func (w *Worker) Close() {
	w.bgMu.Lock()
	w.bgClosed = true
	w.bgMu.Unlock()

	w.bgCancel()
	w.bgWG.Wait()
}

// goBackground runs fn on the worker's background context unless Close was called
func (w *Worker) goBackground(fn func(ctx context.Context)) bool {
	w.bgMu.Lock()
	defer w.bgMu.Unlock()
	if w.bgClosed {
		return false
	}
	w.bgWG.Add(1)
	go func() {
		defer w.bgWG.Done()
		fn(w.bgCtx)
	}()
	return true
}

// State returns the lifecycle state
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Queue exposes the pending submission queue
func (w *Worker) Queue() *SubmissionQueue {
	return w.queue
}

// Install precaches the manifest. Individual asset failures are logged and tolerated.
func (w *Worker) Install(ctx context.Context) error {
	w.state.Store(int32(StateInstalling))

	if err := w.precache(ctx); err != nil {
		return err
	}
	w.state.Store(int32(StateInstalled))
	w.logger.Info("worker installed", zap.Int("assets", len(w.opts.Manifest)))

	if w.opts.SkipWaiting {
		return w.Activate(ctx)
	}
	return nil
}

func (w *Worker) precache(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.PreloadWorkers)

	for _, path := range w.opts.Manifest {
		path := path
		g.Go(func() error {
			req := &Request{Method: http.MethodGet, URL: path, Header: http.Header{}}
			resp, err := w.fetch(gctx, req)
			if err != nil {
				w.logger.Warn("failed to precache asset", zap.String("path", path), zap.Error(err))
				return nil
			}
			if resp.Status != http.StatusOK {
				w.logger.Warn("failed to precache asset", zap.String("path", path), zap.Int("status", resp.Status))
				return nil
			}
			w.put(gctx, w.buckets.Static, req.Key(), resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Activate drops every bucket that does not belong to the current version
func (w *Worker) Activate(ctx context.Context) error {
	w.state.Store(int32(StateActivating))

	current := map[string]bool{}
	for _, b := range []storage.Bucket{w.buckets.Static, w.buckets.Runtime, w.buckets.QuizData, w.buckets.Submissions} {
		current[b.Name()] = true
	}

	names, err := w.store.Names(ctx)
	if err != nil {
		w.logger.Warn("failed to list buckets", zap.Error(err))
	}
	for _, name := range names {
		if current[name] {
			continue
		}
		w.logger.Info("deleting old bucket", zap.String("bucket", name))
		if err := w.store.Drop(ctx, name); err != nil {
			w.logger.Warn("failed to delete old bucket", zap.String("bucket", name), zap.Error(err))
		}
	}

	w.state.Store(int32(StateActivated))
	w.logger.Info("worker activated")
	return nil
}

// SkipWaiting activates an installed worker that is waiting
func (w *Worker) SkipWaiting(ctx context.Context) error {
	if w.State() == StateInstalled {
		return w.Activate(ctx)
	}
	return nil
}

// Handle serves one intercepted request. It never fails: every error becomes a response.
func (w *Worker) Handle(ctx context.Context, req *Request) (*models.CachedResponse, router.RouteKind) {
	kind := w.classifier.Classify(req.Method, req.Path())

	var resp *models.CachedResponse
	switch kind {
	case router.RouteStatic:
		resp = w.handleStatic(ctx, w.buckets.Static, req)
	case router.RouteSubmission:
		resp = w.handleSubmission(ctx, w.queue, req)
	case router.RouteQuizData:
		resp = w.handleQuizData(ctx, w.buckets.QuizData, req)
	case router.RouteAPI:
		resp = w.handleAPI(ctx, w.buckets.Runtime, req)
	default:
		resp = w.handleShell(ctx, req)
	}
	return resp, kind
}

// HandleControl processes a page to worker message and returns the reply payload
func (w *Worker) HandleControl(ctx context.Context, msg models.ControlMessage) (any, error) {
	switch msg.Type {
	case models.ControlSkipWaiting:
		return ackOrErr(w.SkipWaiting(ctx))
	case models.ControlCacheUpdate:
		if err := w.precache(ctx); err != nil {
			return nil, err
		}
		w.logger.Info("cache updated")
		return ack, nil
	case models.ControlPreloadQuizzes:
		return w.PreloadQuizzes(ctx)
	case models.ControlGetOfflineStatus:
		return w.Status(ctx)
	case models.ControlSyncSubmissions:
		tag := msg.Tag
		if tag == "" {
			tag = w.opts.SyncTag
		}
		return w.Sync(ctx, tag)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

var ack = map[string]bool{"ok": true}

func ackOrErr(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// Status reports queue and cache sizes plus the last known connectivity
func (w *Worker) Status(ctx context.Context) (*models.OfflineStatus, error) {
	status := &models.OfflineStatus{IsOnline: w.IsOnline()}

	subs, err := w.queue.List(ctx)
	if err != nil {
		w.logger.Warn("failed to list submissions", zap.Error(err))
	}
	for _, sub := range subs {
		if sub.DeadLetter {
			status.DeadSubmissions++
		} else {
			status.OfflineSubmissions++
		}
	}

	if status.CachedQuizzes, err = w.buckets.QuizData.Count(ctx); err != nil {
		w.logger.Warn("failed to count cached quizzes", zap.Error(err))
	}
	return status, nil
}

// IsOnline returns the last observed upstream reachability
func (w *Worker) IsOnline() bool {
	return w.online.Load()
}

// SetOnline records upstream reachability. An offline to online transition
// fires a background sync when SyncOnConnect is set.
func (w *Worker) SetOnline(online bool) {
	if !w.markReachable(online) {
		return
	}
	w.logger.Info("upstream reachable again")
	if w.opts.SyncOnConnect {
		w.goBackground(func(ctx context.Context) {
			if _, err := w.Sync(ctx, w.opts.SyncTag); err != nil {
				w.logger.Warn("reconnect sync failed", zap.Error(err))
			}
		})
	}
}

// markReachable stores reachability and reports an offline to online transition
func (w *Worker) markReachable(online bool) bool {
	was := w.online.Swap(online)
	return online && !was
}

// fetch goes to the network and records reachability
func (w *Worker) fetch(ctx context.Context, req *Request) (*models.CachedResponse, error) {
	resp, err := w.net.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, ErrOffline) {
			w.SetOnline(false)
		}
		return nil, err
	}
	w.SetOnline(true)
	return resp, nil
}

// put writes to a bucket; failures are logged and never reach the caller
func (w *Worker) put(ctx context.Context, bucket storage.Bucket, key string, resp *models.CachedResponse) {
	if err := bucket.Put(ctx, key, resp); err != nil {
		w.logger.Warn("cache write failed", zap.String("bucket", bucket.Name()), zap.String("key", key), zap.Error(err))
	}
}

// match reads from a bucket, treating storage failures as a miss
func (w *Worker) match(ctx context.Context, bucket storage.Bucket, key string) *models.CachedResponse {
	resp, err := bucket.Match(ctx, key)
	if err == nil {
		return resp
	}
	if !errors.Is(err, storage.ErrNotFound) {
		w.logger.Warn("cache read failed", zap.String("bucket", bucket.Name()), zap.String("key", key), zap.Error(err))
	}
	return nil
}
