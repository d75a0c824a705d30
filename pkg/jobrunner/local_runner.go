package jobrunner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/hashicorp/go-uuid"
	"github.com/materials-commons/mcsync/pkg/clog"
	"golang.org/x/sync/semaphore"
)

const observerBufferSize = 16

type jobEntry struct {
	id     string
	spec   JobSpec
	tags   []string
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by LocalRunner.mu
	status    JobStatus
	observers map[chan JobStatus]struct{}
}

type LocalRunnerOptionFN func(*LocalRunner)

// LocalRunner runs jobs in goroutines of this process, at most concurrency
// at a time. Job state lives in memory only.
type LocalRunner struct {
	mu          sync.Mutex
	jobs        map[string]*jobEntry
	workers     map[string]Worker
	listeners   []Listener
	sem         *semaphore.Weighted
	concurrency int64
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
	log         *log.Entry
}

func NewLocalRunner(optFNs ...LocalRunnerOptionFN) *LocalRunner {
	r := &LocalRunner{
		jobs:        make(map[string]*jobEntry),
		workers:     make(map[string]Worker),
		concurrency: 4,
		maxAttempts: 5,
		backoff:     10 * time.Second,
		maxBackoff:  5 * time.Minute,
		log:         clog.UsingCtx(clog.RunnerCtx),
	}

	for _, optFN := range optFNs {
		optFN(r)
	}

	r.sem = semaphore.NewWeighted(r.concurrency)
	r.ctx, r.cancel = context.WithCancel(context.Background())

	return r
}

func WithConcurrency(n int) LocalRunnerOptionFN {
	return func(r *LocalRunner) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// WithMaxAttempts sets how many times a job is run before a retryable
// failure becomes final.
func WithMaxAttempts(n int) LocalRunnerOptionFN {
	return func(r *LocalRunner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay before the first retry. Each further retry
// doubles it, up to maxBackoff.
func WithBackoff(backoff, maxBackoff time.Duration) LocalRunnerOptionFN {
	return func(r *LocalRunner) {
		r.backoff = backoff
		if maxBackoff >= backoff {
			r.maxBackoff = maxBackoff
		}
	}
}

func WithWorker(kind string, w Worker) LocalRunnerOptionFN {
	return func(r *LocalRunner) {
		r.workers[kind] = w
	}
}

func WithListener(l Listener) LocalRunnerOptionFN {
	return func(r *LocalRunner) {
		r.listeners = append(r.listeners, l)
	}
}

func (r *LocalRunner) RegisterWorker(kind string, w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[kind] = w
}

func (r *LocalRunner) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *LocalRunner) Submit(spec JobSpec, tags ...string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("unable to create job id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", ErrRunnerClosed
	}

	worker, ok := r.workers[spec.Kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}

	ctx, cancel := context.WithCancel(r.ctx)
	e := &jobEntry{
		id:        id,
		spec:      spec,
		tags:      normalizeTags(tags),
		cancel:    cancel,
		done:      make(chan struct{}),
		observers: make(map[chan JobStatus]struct{}),
	}

	e.status = JobStatus{
		ID:          id,
		Tags:        e.tags,
		Spec:        spec,
		State:       JobStateEnqueued,
		SubmittedAt: time.Now(),
	}

	r.jobs[id] = e
	r.wg.Add(1)
	go r.run(ctx, e, worker)

	r.log.Debugf("Submitted job %s (%s) tags %v", id, spec.Kind, e.tags)

	return id, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !seen[tag] {
			seen[tag] = true
			normalized = append(normalized, tag)
		}
	}

	sort.Strings(normalized)
	return normalized
}

func (r *LocalRunner) run(ctx context.Context, e *jobEntry, worker Worker) {
	defer r.wg.Done()
	defer e.cancel()

	job := &Job{entry: e, runner: r}

	for {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.finish(e, JobStateCancelled, context.Canceled)
			return
		}

		if ctx.Err() != nil {
			r.sem.Release(1)
			r.finish(e, JobStateCancelled, context.Canceled)
			return
		}

		status := r.update(e, func(s *JobStatus) {
			s.State = JobStateRunning
			s.RunAttemptCount++
		})
		r.notify(func(l Listener) { l.JobStarted(status) })

		err := worker.Run(ctx, job)
		r.sem.Release(1)

		switch {
		case ctx.Err() != nil:
			r.finish(e, JobStateCancelled, context.Canceled)
			return

		case err == nil:
			r.finish(e, JobStateSucceeded, nil)
			return

		case IsRetryable(err) && status.RunAttemptCount < r.maxAttempts:
			status = r.update(e, func(s *JobStatus) {
				s.State = JobStateEnqueued
				s.Error = err.Error()
			})
			r.log.Infof("Job %s attempt %d failed, retrying: %s", e.id, status.RunAttemptCount, err)
			r.notify(func(l Listener) { l.JobRetrying(status, err) })

			select {
			case <-ctx.Done():
				r.finish(e, JobStateCancelled, context.Canceled)
				return
			case <-time.After(r.backoffFor(status.RunAttemptCount)):
			}

		default:
			r.finish(e, JobStateFailed, err)
			return
		}
	}
}

func (r *LocalRunner) backoffFor(attempt int) time.Duration {
	d := r.backoff
	for i := 1; i < attempt && d < r.maxBackoff; i++ {
		d *= 2
	}

	if d > r.maxBackoff {
		d = r.maxBackoff
	}

	return d
}

// finish records the final state. Listeners are not told about jobs stopped
// by Close, so their owners can resume them on the next start.
func (r *LocalRunner) finish(e *jobEntry, state JobState, err error) {
	r.mu.Lock()
	e.status.State = state
	e.status.FinishedAt = time.Now()
	if err != nil {
		e.status.Error = err.Error()
	} else {
		e.status.Error = ""
	}
	status := r.copyStatus(e)
	r.publish(e, status)
	closing := r.closed
	close(e.done)
	r.mu.Unlock()

	if closing && state == JobStateCancelled {
		r.log.Debugf("Job %s stopped by shutdown", e.id)
		return
	}

	if err != nil && state == JobStateFailed {
		r.log.Warnf("Job %s failed after %d attempts: %s", e.id, status.RunAttemptCount, err)
	}

	r.notify(func(l Listener) { l.JobFinished(status, err) })
}

func (r *LocalRunner) notify(f func(l Listener)) {
	r.mu.Lock()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	for _, l := range listeners {
		f(l)
	}
}

func (r *LocalRunner) update(e *jobEntry, f func(s *JobStatus)) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	f(&e.status)
	status := r.copyStatus(e)
	r.publish(e, status)

	return status
}

func (r *LocalRunner) snapshot(e *jobEntry) JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyStatus(e)
}

func (r *LocalRunner) copyStatus(e *jobEntry) JobStatus {
	status := e.status
	status.Tags = append([]string(nil), e.tags...)
	return status
}

// publish must be called with r.mu held. A slow observer loses intermediate
// updates, never the latest one.
func (r *LocalRunner) publish(e *jobEntry, status JobStatus) {
	for ch := range e.observers {
		select {
		case ch <- status:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- status
		}
	}
}

func (r *LocalRunner) QueryByTags(tags ...string) []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []JobStatus
	for _, e := range r.jobs {
		status := r.copyStatus(e)
		if status.HasTags(tags...) {
			matches = append(matches, status)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SubmittedAt.Before(matches[j].SubmittedAt)
	})

	return matches
}

func (r *LocalRunner) Get(id string) (JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrNoSuchJob, id)
	}

	return r.copyStatus(e), nil
}

func (r *LocalRunner) Cancel(id string) error {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchJob, id)
	}

	e.cancel()
	return nil
}

func (r *LocalRunner) CancelByTags(tags ...string) int {
	count := 0
	for _, status := range r.QueryByTags(tags...) {
		if status.IsFinished() {
			continue
		}

		if err := r.Cancel(status.ID); err == nil {
			count++
		}
	}

	return count
}

func (r *LocalRunner) Observe(ctx context.Context, id string) (<-chan JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchJob, id)
	}

	ch := make(chan JobStatus, observerBufferSize)
	ch <- r.copyStatus(e)
	e.observers[ch] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-e.done:
		}

		r.mu.Lock()
		delete(e.observers, ch)
		r.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *LocalRunner) Wait(ctx context.Context, id string) (JobStatus, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	r.mu.Unlock()

	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrNoSuchJob, id)
	}

	select {
	case <-e.done:
		return r.snapshot(e), nil
	case <-ctx.Done():
		return r.snapshot(e), ctx.Err()
	}
}

// PruneFinished forgets jobs that finished more than olderThan ago and
// returns how many were dropped.
func (r *LocalRunner) PruneFinished(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	count := 0
	for id, e := range r.jobs {
		if e.status.IsFinished() && !e.status.FinishedAt.After(cutoff) {
			delete(r.jobs, id)
			count++
		}
	}

	return count
}

// Close stops accepting jobs, cancels the running ones and waits for them.
func (r *LocalRunner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()

	return nil
}

var _ Runner = (*LocalRunner)(nil)
