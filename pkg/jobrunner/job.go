// Package jobrunner executes submitted jobs in the background. Jobs carry a
// set of tags that callers use to find them again, are retried when a worker
// reports a retryable failure, and can be cancelled and observed while they
// run.
package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

var (
	ErrRunnerClosed = errors.New("job runner is closed")
	ErrNoSuchJob    = errors.New("no such job")
	ErrUnknownKind  = errors.New("no worker registered for job kind")
)

// JobSpec describes the work. Kind selects the worker.
type JobSpec struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

func (s JobSpec) Param(key string) string {
	return s.Params[key]
}

type JobState int

const (
	JobStateEnqueued JobState = iota
	JobStateRunning
	JobStateSucceeded
	JobStateFailed
	JobStateCancelled
)

var jobStateNames = map[JobState]string{
	JobStateEnqueued:  "enqueued",
	JobStateRunning:   "running",
	JobStateSucceeded: "succeeded",
	JobStateFailed:    "failed",
	JobStateCancelled: "cancelled",
}

func (s JobState) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}

	return "unknown"
}

func (s JobState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s JobState) IsFinished() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateCancelled
}

// JobStatus is a snapshot of a job.
type JobStatus struct {
	ID              string    `json:"id"`
	Tags            []string  `json:"tags"`
	Spec            JobSpec   `json:"spec"`
	State           JobState  `json:"state"`
	RunAttemptCount int       `json:"run_attempt_count"`
	Progress        int       `json:"progress"`
	Error           string    `json:"error,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
}

func (s JobStatus) IsFinished() bool {
	return s.State.IsFinished()
}

func (s JobStatus) HasTags(tags ...string) bool {
	for _, tag := range tags {
		i := sort.SearchStrings(s.Tags, tag)
		if i == len(s.Tags) || s.Tags[i] != tag {
			return false
		}
	}

	return true
}

// Runner is what the rest of the system needs from a job runner.
type Runner interface {
	Submit(spec JobSpec, tags ...string) (string, error)

	// QueryByTags returns every known job carrying all of tags, finished or not.
	QueryByTags(tags ...string) []JobStatus

	Get(id string) (JobStatus, error)

	// Cancel asks a job to stop. It returns before the job has stopped.
	Cancel(id string) error

	CancelByTags(tags ...string) int

	// Observe streams status changes of a job until it finishes or ctx is done.
	Observe(ctx context.Context, id string) (<-chan JobStatus, error)
}

// Worker does the work for one kind of job. A returned error wrapped with
// Retryable makes the runner try again later.
type Worker interface {
	Run(ctx context.Context, job *Job) error
}

type WorkerFunc func(ctx context.Context, job *Job) error

func (f WorkerFunc) Run(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// Listener is told about job lifecycle changes. Calls for a single job are
// made in order from the goroutine running that job.
type Listener interface {
	JobStarted(status JobStatus)
	JobRetrying(status JobStatus, err error)
	JobFinished(status JobStatus, err error)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as worth another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}

	return &retryableError{err: err}
}

func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Job is the handle a worker gets for the job it runs.
type Job struct {
	entry  *jobEntry
	runner *LocalRunner
}

func (j *Job) ID() string {
	return j.entry.id
}

func (j *Job) Spec() JobSpec {
	return j.entry.spec
}

func (j *Job) Tags() []string {
	return j.entry.tags
}

func (j *Job) Attempt() int {
	return j.runner.snapshot(j.entry).RunAttemptCount
}

// SetProgress records a completion percentage for observers.
func (j *Job) SetProgress(percent int) {
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	j.runner.update(j.entry, func(s *JobStatus) { s.Progress = percent })
}
