// Package scheduler keeps the displayed clock face image in step with wall-clock buckets.
//
// A Scheduler resolves the image for the current bucket and prefetches the next one, then swaps
// the prefetched image in when the boundary timer fires so the face never shows a loading state
// for an image that was already known. All state changes happen on a single loop goroutine;
// lookups run concurrently and report back to it.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/core"
	"github.com/jo-hoe/bunnyclock/internal/metrics"
	"k8s.io/utils/clock"
)

var ErrAlreadyRunning = errors.New("scheduler is already running")

// ImageResolver looks up the live image for a bucket. CoreService satisfies it.
type ImageResolver interface {
	ResolveLiveImage(ctx context.Context, hour, minute int) (*database.TimeImage, error)
}

// Snapshot is the image currently on the face and the bucket it is shown for.
type Snapshot struct {
	Bucket time.Time       `json:"bucket"`
	Image  core.Resolution `json:"image"`
}

type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithLocation sets the timezone whose wall-clock hour and minute select the image.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

type resolved struct {
	bucket time.Time
	image  *database.TimeImage
	err    error
}

type prefetchSlot struct {
	bucket time.Time
	image  *database.TimeImage
}

type Scheduler struct {
	clock    clock.Clock
	location *time.Location
	resolver ImageResolver
	metrics  *metrics.Metrics

	mu           sync.RWMutex
	current      time.Time
	displayed    core.Resolution
	displayedFor time.Time
	prefetch     *prefetchSlot
	listeners    []func(Snapshot)

	runMu   sync.Mutex
	cancel  context.CancelFunc
	results chan resolved
	wg      sync.WaitGroup
}

func New(resolver ImageResolver, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:     clock.RealClock{},
		location:  time.Local,
		resolver:  resolver,
		displayed: core.Loading(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every change of the displayed image.
// Callbacks run on the scheduler loop (and once from Start) and must not block.
func (s *Scheduler) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Bucket: s.current, Image: s.displayed}
}

// Start mounts the scheduler: it arms the boundary timer and resolves the current and next
// buckets. It returns ErrAlreadyRunning instead of arming a second set of timers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}

	now := s.clock.Now().In(s.location)
	current := core.BucketStart(now)

	s.mu.Lock()
	s.current = current
	s.displayed = core.Loading()
	s.displayedFor = time.Time{}
	s.prefetch = nil
	s.mu.Unlock()

	// Armed before the loop starts so the first boundary can never be missed.
	timer := s.clock.NewTimer(core.UntilNextBucket(now))
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.results = make(chan resolved, 4)

	slog.Info("scheduler started", "bucket", current.Format("15:04"), "next_boundary_in", core.UntilNextBucket(now))

	s.wg.Add(1)
	go s.run(runCtx, timer, s.results)
	s.notify()
	s.fetch(runCtx, current, s.results)
	s.fetch(runCtx, core.NextBucket(current), s.results)
	return nil
}

// Stop releases both timers and waits for the loop and all in-flight lookups to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.cancel = nil
	s.results = nil
	slog.Info("scheduler stopped")
}

// run owns the boundary timer. Every fire re-reads the wall clock and re-arms the timer for
// the next boundary, so a pause longer than a bucket cannot leave the face behind.
func (s *Scheduler) run(ctx context.Context, timer clock.Timer, results chan resolved) {
	defer s.wg.Done()
	defer func() { timer.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			next := s.advance(ctx, results)
			timer = s.clock.NewTimer(next)
		case r := <-results:
			s.apply(r)
		}
	}
}

// advance moves to the bucket containing the current wall time, and at least one bucket
// forward, then returns how long until that bucket ends. The prefetched image is swapped in
// when it belongs to the new bucket; otherwise the held image stays on the face until a fresh
// lookup lands.
func (s *Scheduler) advance(ctx context.Context, results chan resolved) time.Duration {
	now := s.clock.Now().In(s.location)

	s.mu.Lock()
	previous := s.current
	current := previous.Add(core.BucketWidth)
	if wall := core.BucketStart(now); wall.After(current) {
		current = wall
	}
	s.current = current
	swapped := false
	if s.prefetch != nil && s.prefetch.bucket.Equal(current) {
		s.displayed = core.ResolutionOf(s.prefetch.image)
		s.displayedFor = current
		swapped = true
	}
	s.prefetch = nil
	s.mu.Unlock()

	if skipped := int(current.Sub(previous)/core.BucketWidth) - 1; skipped > 0 {
		slog.Warn("scheduler: boundary fired late, resyncing to wall clock",
			"from", previous.Format("15:04"), "to", current.Format("15:04"), "skipped_buckets", skipped)
	}

	if swapped {
		s.metrics.ObserveSwap(metrics.SwapPrefetched)
		slog.Debug("scheduler: swapped in prefetched image", "bucket", current.Format("15:04"))
		s.notify()
	} else {
		slog.Debug("scheduler: no prefetched image, resolving", "bucket", current.Format("15:04"))
		s.fetch(ctx, current, results)
	}
	s.fetch(ctx, core.NextBucket(current), results)

	return core.NextBucket(current).Sub(now)
}

// apply routes a finished lookup by its bucket. Results for buckets that are neither current
// nor next are stale and dropped; failed lookups leave the face as it is.
func (s *Scheduler) apply(r resolved) {
	if r.err != nil {
		slog.Warn("scheduler: image lookup failed", "bucket", r.bucket.Format("15:04"), "error", r.err)
		return
	}

	s.mu.Lock()
	changed := false
	switch {
	case r.bucket.Equal(s.current):
		if !s.displayedFor.Equal(s.current) {
			s.displayed = core.ResolutionOf(r.image)
			s.displayedFor = s.current
			changed = true
		}
	case r.bucket.Equal(s.current.Add(core.BucketWidth)):
		s.prefetch = &prefetchSlot{bucket: r.bucket, image: r.image}
	default:
		s.metrics.ObserveStaleResult()
		slog.Debug("scheduler: discarding stale lookup", "bucket", r.bucket.Format("15:04"), "current", s.current.Format("15:04"))
	}
	s.mu.Unlock()

	if changed {
		s.metrics.ObserveSwap(metrics.SwapFresh)
		s.notify()
	}
}

func (s *Scheduler) fetch(ctx context.Context, bucket time.Time, results chan<- resolved) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		image, err := s.resolver.ResolveLiveImage(ctx, bucket.Hour(), bucket.Minute())
		select {
		case results <- resolved{bucket: bucket, image: image, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Scheduler) notify() {
	s.mu.RLock()
	snapshot := Snapshot{Bucket: s.current, Image: s.displayed}
	listeners := append([]func(Snapshot){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}
