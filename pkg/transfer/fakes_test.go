package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
)

// fakeRunner records jobs without running them. Cancel finishes a job at once.
type fakeRunner struct {
	mu        sync.Mutex
	jobs      []*jobrunner.JobStatus
	next      int
	submitErr error

	// onSubmit runs at the start of every Submit, outside the runner lock.
	onSubmit func()
}

func (r *fakeRunner) Submit(spec jobrunner.JobSpec, tags ...string) (string, error) {
	if r.onSubmit != nil {
		r.onSubmit()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.submitErr != nil {
		return "", r.submitErr
	}

	r.next++
	status := &jobrunner.JobStatus{
		ID:          fmt.Sprintf("job-%d", r.next),
		Tags:        sortedCopy(tags),
		Spec:        spec,
		State:       jobrunner.JobStateEnqueued,
		SubmittedAt: time.Now().Add(time.Duration(r.next) * time.Millisecond),
	}
	r.jobs = append(r.jobs, status)

	return status.ID, nil
}

func sortedCopy(tags []string) []string {
	c := append([]string(nil), tags...)
	for i := range c {
		for j := i + 1; j < len(c); j++ {
			if c[j] < c[i] {
				c[i], c[j] = c[j], c[i]
			}
		}
	}
	return c
}

func (r *fakeRunner) QueryByTags(tags ...string) []jobrunner.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matches []jobrunner.JobStatus
	for _, job := range r.jobs {
		if job.HasTags(tags...) {
			matches = append(matches, *job)
		}
	}

	return matches
}

func (r *fakeRunner) Get(id string) (jobrunner.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job := r.find(id); job != nil {
		return *job, nil
	}

	return jobrunner.JobStatus{}, jobrunner.ErrNoSuchJob
}

func (r *fakeRunner) find(id string) *jobrunner.JobStatus {
	for _, job := range r.jobs {
		if job.ID == id {
			return job
		}
	}
	return nil
}

func (r *fakeRunner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.find(id)
	if job == nil {
		return jobrunner.ErrNoSuchJob
	}

	if !job.IsFinished() {
		job.State = jobrunner.JobStateCancelled
	}

	return nil
}

func (r *fakeRunner) CancelByTags(tags ...string) int {
	count := 0
	for _, job := range r.QueryByTags(tags...) {
		if !job.IsFinished() {
			_ = r.Cancel(job.ID)
			count++
		}
	}
	return count
}

func (r *fakeRunner) Observe(ctx context.Context, id string) (<-chan jobrunner.JobStatus, error) {
	status, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan jobrunner.JobStatus, 1)
	ch <- status
	close(ch)
	return ch, nil
}

func (r *fakeRunner) setAttempts(id string, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job := r.find(id)
	job.RunAttemptCount = attempts
	job.State = jobrunner.JobStateRunning
}

func (r *fakeRunner) active(tags ...string) int {
	count := 0
	for _, job := range r.QueryByTags(tags...) {
		if !job.IsFinished() {
			count++
		}
	}
	return count
}

// fakeRemote is an in-memory server.
type fakeRemote struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// failures are returned, in order, by the next Upload/Download calls.
	failures []error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (c *fakeRemote) ClientFor(accountName string) (RemoteClient, error) {
	if accountName == "nobody" {
		return nil, ErrNoCredentials
	}
	return c, nil
}

func (c *fakeRemote) nextFailure() error {
	if len(c.failures) == 0 {
		return nil
	}
	err := c.failures[0]
	c.failures = c.failures[1:]
	return err
}

func (c *fakeRemote) Stat(ctx context.Context, remotePath string) (*RemoteFileInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.files[remotePath]
	if !ok {
		return nil, NewStatusError(http.StatusNotFound, "")
	}

	return &RemoteFileInfo{Path: remotePath, Size: int64(len(data))}, nil
}

func (c *fakeRemote) Download(ctx context.Context, remotePath string, w io.Writer) (int64, error) {
	c.mu.Lock()
	if err := c.nextFailure(); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	data, ok := c.files[remotePath]
	c.mu.Unlock()

	if !ok {
		return 0, NewStatusError(http.StatusNotFound, "")
	}

	return io.Copy(w, bytes.NewReader(data))
}

func (c *fakeRemote) Upload(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.nextFailure(); err != nil {
		return err
	}

	c.files[remotePath] = data
	return nil
}

func (c *fakeRemote) MkdirAll(ctx context.Context, remoteDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirs[remoteDir] = true
	return nil
}

func (c *fakeRemote) get(remotePath string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.files[remotePath]
	return data, ok
}

type meteredNetwork struct{}

func (meteredNetwork) OnUnmeteredNetwork() bool { return false }
