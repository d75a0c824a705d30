// Package migration relocates the whole local store from a legacy root to a
// new root.
package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/fsmove"
	"github.com/materials-commons/mcsync/pkg/lock"
	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
)

const leaseOwner = "storage-migration"

var (
	ErrMigrationRunning  = errors.New("a storage migration is already running")
	ErrTransfersInFlight = errors.New("transfers are still running")
	ErrInsufficientSpace = errors.New("not enough space for the migration")
	ErrSameRoot          = errors.New("legacy and new root are the same")
)

// ActivityChecker tells whether transfers are running.
type ActivityChecker interface {
	HasActiveTransfers() bool
}

type ProgressType string

const (
	ProgressSizing   ProgressType = "sizing"
	ProgressMoving   ProgressType = "moving"
	ProgressRecords  ProgressType = "updating-records"
	ProgressCleaning ProgressType = "cleaning"
)

type Progress struct {
	Type    ProgressType `json:"type"`
	Percent int          `json:"percent"`
	Current string       `json:"current,omitempty"`
}

type ProgressFN func(p Progress)

type Plan struct {
	LegacyRoot     string `json:"legacy_root"`
	NewRoot        string `json:"new_root"`
	LegacySize     int64  `json:"legacy_size"`
	AvailableSpace int64  `json:"available_space"`
}

func (p Plan) Fits() bool {
	return p.LegacySize <= p.AvailableSpace
}

type Result struct {
	Plan          Plan     `json:"plan"`
	Moved         []string `json:"moved"`
	Failed        []string `json:"failed"`
	RecordErrors  []string `json:"record_errors,omitempty"`
	LegacyRemoved bool     `json:"legacy_removed"`
}

// OK is true when every directory moved and every record was updated.
func (r *Result) OK() bool {
	return len(r.Failed) == 0 && len(r.RecordErrors) == 0
}

type MigratorOptionFN func(*Migrator)

type Migrator struct {
	stors       *stor.Stors
	lease       *lock.Lease
	activity    ActivityChecker
	mover       *fsmove.Mover
	usableSpace func(dir string) (int64, error)
	rootChanged func(newRoot string)
	log         *log.Entry
}

func NewMigrator(stors *stor.Stors, lease *lock.Lease, activity ActivityChecker, optFNs ...MigratorOptionFN) *Migrator {
	m := &Migrator{
		stors:       stors,
		lease:       lease,
		activity:    activity,
		mover:       fsmove.NewMover(),
		usableSpace: storagepath.UsableSpace,
		log:         clog.UsingCtx(clog.MigrationCtx),
	}

	for _, optFN := range optFNs {
		optFN(m)
	}

	return m
}

func WithMover(mover *fsmove.Mover) MigratorOptionFN {
	return func(m *Migrator) {
		m.mover = mover
	}
}

func WithUsableSpace(f func(dir string) (int64, error)) MigratorOptionFN {
	return func(m *Migrator) {
		m.usableSpace = f
	}
}

// WithRootChanged registers f to be called with the new root once files and
// records have moved.
func WithRootChanged(f func(newRoot string)) MigratorOptionFN {
	return func(m *Migrator) {
		m.rootChanged = f
	}
}

// Plan sizes the legacy root and the space available at the new root.
func (m *Migrator) Plan(legacyRoot, newRoot string) (Plan, error) {
	plan := Plan{LegacyRoot: filepath.Clean(legacyRoot), NewRoot: filepath.Clean(newRoot)}
	if plan.LegacyRoot == plan.NewRoot {
		return plan, ErrSameRoot
	}

	var err error
	if plan.LegacySize, err = storagepath.DirSize(plan.LegacyRoot); err != nil {
		return plan, err
	}

	if plan.AvailableSpace, err = m.usableSpace(plan.NewRoot); err != nil {
		return plan, err
	}

	return plan, nil
}

// Migrate moves every top-level directory of legacyRoot (one per account,
// plus tmp and logs) into newRoot, overwriting what is there, points stored
// paths at the new root and then removes the legacy root. The legacy root is
// removed even when some entries failed to move. Cancelling ctx stops
// between directories and leaves the legacy root in place.
//
// Transfer requests are refused while Migrate runs, and it will not start
// while transfers are active.
func (m *Migrator) Migrate(ctx context.Context, legacyRoot, newRoot string, progress ProgressFN) (*Result, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	if !m.lease.TryAcquire(leaseOwner) {
		return nil, ErrMigrationRunning
	}
	defer m.lease.Release(leaseOwner)

	if m.activity != nil && m.activity.HasActiveTransfers() {
		return nil, ErrTransfersInFlight
	}

	progress(Progress{Type: ProgressSizing})
	plan, err := m.Plan(legacyRoot, newRoot)
	if err != nil {
		return nil, err
	}

	if !plan.Fits() {
		return nil, fmt.Errorf("%w: need %d bytes, %d available", ErrInsufficientSpace, plan.LegacySize, plan.AvailableSpace)
	}

	progress(Progress{Type: ProgressSizing, Percent: 100})
	m.log.Infof("Migrating %d bytes from %s to %s", plan.LegacySize, plan.LegacyRoot, plan.NewRoot)

	result := &Result{Plan: plan}

	if err := os.MkdirAll(plan.NewRoot, 0755); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", plan.NewRoot, err)
	}

	dirs, err := topLevelDirs(plan.LegacyRoot)
	if err != nil {
		return nil, err
	}

	for i, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		progress(Progress{Type: ProgressMoving, Percent: i * 100 / len(dirs), Current: dir})
		if m.mover.Move(filepath.Join(plan.LegacyRoot, dir), filepath.Join(plan.NewRoot, dir), true) {
			result.Moved = append(result.Moved, dir)
		} else {
			m.log.Errorf("Moving %s did not complete", dir)
			result.Failed = append(result.Failed, dir)
		}
	}
	progress(Progress{Type: ProgressMoving, Percent: 100})

	progress(Progress{Type: ProgressRecords})
	if err := m.stors.TransferStor.UpdateTransfersStorageDirectory(plan.LegacyRoot, plan.NewRoot); err != nil {
		result.RecordErrors = append(result.RecordErrors, err.Error())
	}

	if err := m.stors.FileStor.UpdateFilesStorageDirectory(plan.LegacyRoot, plan.NewRoot); err != nil {
		result.RecordErrors = append(result.RecordErrors, err.Error())
	}
	progress(Progress{Type: ProgressRecords, Percent: 100})

	if m.rootChanged != nil {
		m.rootChanged(plan.NewRoot)
	}

	progress(Progress{Type: ProgressCleaning})
	if err := os.RemoveAll(plan.LegacyRoot); err != nil {
		m.log.Errorf("Unable to remove legacy root %s: %s", plan.LegacyRoot, err)
	} else {
		result.LegacyRemoved = true
	}
	progress(Progress{Type: ProgressCleaning, Percent: 100})

	m.log.Infof("Migration to %s finished, %d moved, %d failed", plan.NewRoot, len(result.Moved), len(result.Failed))

	return result, nil
}

func topLevelDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read %s: %w", root, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}

	sort.Strings(dirs)
	return dirs, nil
}
