package migration

import (
	"context"
	"errors"
	"sync"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
)

var ErrNotPrepared = errors.New("migration has not been prepared")

// Tracker drives a State through one migration and runs the Migrator on its
// own goroutine so callers can poll the state while files move.
type Tracker struct {
	mu       sync.Mutex
	state    State
	plan     Plan
	migrator *Migrator
	running  bool
	done     chan struct{}
	log      *log.Entry
}

func NewTracker(m *Migrator) *Tracker {
	return &Tracker{
		state:    Intro(),
		migrator: m,
		log:      clog.UsingCtx(clog.MigrationCtx),
	}
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Prepare sizes the migration and moves the state to Choice.
func (t *Tracker) Prepare(legacyRoot, newRoot string) (State, error) {
	plan, err := t.migrator.Plan(legacyRoot, newRoot)
	if err != nil {
		return t.State(), err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.state.Choose(plan.LegacySize, plan.AvailableSpace)
	if err != nil {
		return t.state, err
	}

	t.state = next
	t.plan = plan
	return t.state, nil
}

// Start runs the prepared migration in the background. Use Wait to block
// until it completes.
func (t *Tracker) Start(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.Kind != StateChoice {
		return t.state, ErrNotPrepared
	}

	next, err := t.state.Advance(Progress{Type: ProgressSizing})
	if err != nil {
		return t.state, err
	}

	t.state = next
	t.running = true
	t.done = make(chan struct{})
	plan, done := t.plan, t.done

	go func() {
		defer close(done)
		result, err := t.migrator.Migrate(ctx, plan.LegacyRoot, plan.NewRoot, t.advance)
		t.complete(result, err)
	}()

	return t.state, nil
}

func (t *Tracker) advance(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.state.Advance(p)
	if err != nil {
		t.log.Warnf("Ignoring progress update: %s", err)
		return
	}

	t.state = next
}

func (t *Tracker) complete(result *Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false
	if err != nil {
		t.log.Errorf("Migration failed: %s", err)
	}

	next, cerr := t.state.Complete(result, err)
	if cerr != nil {
		t.log.Errorf("Unable to complete migration state: %s", cerr)
		return
	}

	t.state = next
}

// Wait blocks until a started migration finishes or ctx is done.
func (t *Tracker) Wait(ctx context.Context) (State, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return t.State(), ErrNotPrepared
	}

	select {
	case <-done:
		return t.State(), nil
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

// Acknowledge moves a completed migration to Done.
func (t *Tracker) Acknowledge() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.state.Finish()
	if err != nil {
		return t.state, err
	}

	t.state = next
	return t.state, nil
}

// Restart returns to Intro. A running migration cannot be restarted.
func (t *Tracker) Restart() (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return t.state, ErrMigrationRunning
	}

	t.state = t.state.Restart()
	t.plan = Plan{}
	t.done = nil
	return t.state, nil
}
