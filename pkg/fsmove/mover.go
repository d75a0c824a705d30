// Package fsmove moves a directory tree from one root to another one entry at
// a time. Directories are recreated at the destination, files are copied,
// length checked and then removed from the source. A crash in the middle of a
// move leaves every file in at most one of the two trees, plus possibly a
// short copy at the destination, and running the same move again picks up
// where the previous one stopped.
package fsmove

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/pkg/errors"
)

type ErrorKind int

const (
	// EntryVanished means a source entry disappeared after the walk found it.
	EntryVanished ErrorKind = iota

	// DestinationExists means the destination is occupied and overwrite is off.
	DestinationExists

	// LengthMismatch means the copy ended up with a different length than the source.
	LengthMismatch

	// CopyFailed covers I/O errors while creating or copying an entry.
	CopyFailed
)

func (k ErrorKind) String() string {
	switch k {
	case EntryVanished:
		return "entry-vanished"
	case DestinationExists:
		return "destination-exists"
	case LengthMismatch:
		return "length-mismatch"
	case CopyFailed:
		return "copy-failed"
	default:
		return "unknown"
	}
}

type Action int

const (
	Continue Action = iota
	Terminate
)

// ErrorHandlerFN decides whether the move goes on after a problem with path.
type ErrorHandlerFN func(kind ErrorKind, path string, err error) Action

// CopierFN copies the regular file src to dst and returns the bytes written.
type CopierFN func(src, dst string) (int64, error)

type MoverOptionFN func(*Mover)

type Mover struct {
	errorHandler ErrorHandlerFN
	copier       CopierFN
	log          *log.Entry
}

func NewMover(optFNs ...MoverOptionFN) *Mover {
	m := &Mover{
		errorHandler: DefaultErrorHandler,
		copier:       CopyFile,
		log:          clog.UsingCtx(clog.MigrationCtx),
	}

	for _, optFN := range optFNs {
		optFN(m)
	}

	return m
}

func WithErrorHandler(f ErrorHandlerFN) MoverOptionFN {
	return func(m *Mover) {
		m.errorHandler = f
	}
}

func WithCopier(f CopierFN) MoverOptionFN {
	return func(m *Mover) {
		m.copier = f
	}
}

// DefaultErrorHandler aborts on vanished entries and short copies and keeps
// going otherwise.
func DefaultErrorHandler(kind ErrorKind, path string, err error) Action {
	switch kind {
	case EntryVanished, LengthMismatch:
		return Terminate
	default:
		return Continue
	}
}

// move carries the state of a single Move call.
type move struct {
	*Mover
	source    string
	dest      string
	overwrite bool

	// failed is set when an entry could not be moved but the handler let the
	// walk continue.
	failed bool
}

// Move moves source to dest. When overwrite is false, entries already present
// at the destination are kept and the matching source entry is left in
// place. When overwrite is true the destination entry is removed first.
// Directories always merge.
//
// Move returns true when every entry was either moved or skipped because the
// destination exists. It returns false when the error handler terminated the
// walk or when an entry failed to copy.
func (m *Mover) Move(source, dest string, overwrite bool) bool {
	mv := &move{
		Mover:     m,
		source:    filepath.Clean(source),
		dest:      filepath.Clean(dest),
		overwrite: overwrite,
	}

	if !mv.moveEntry(mv.source, mv.dest) {
		return false
	}

	return !mv.failed
}

// moveEntry moves src to dst, recursing into directories. It returns false
// when the walk has to stop.
func (mv *move) moveEntry(src, dst string) bool {
	fi, err := os.Lstat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return mv.handle(EntryVanished, src, err)
		}

		return mv.handle(CopyFailed, src, err)
	}

	switch {
	case fi.IsDir():
		return mv.moveDir(src, dst, fi)
	case fi.Mode()&os.ModeSymlink != 0:
		return mv.moveSymlink(src, dst)
	case fi.Mode().IsRegular():
		return mv.moveFile(src, dst, fi)
	default:
		mv.log.Warnf("Skipping %s, unsupported file type %s", src, fi.Mode().Type())
		return true
	}
}

func (mv *move) moveDir(src, dst string, fi os.FileInfo) bool {
	dstInfo, err := os.Lstat(dst)
	switch {
	case err == nil && dstInfo.IsDir():
		// merge into the existing directory
	case err == nil:
		if !mv.overwrite {
			return mv.skip(src, dst)
		}

		if err := os.RemoveAll(dst); err != nil {
			return mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to remove %s", dst))
		}
		fallthrough
	default:
		if err := os.MkdirAll(dst, fi.Mode().Perm()|0700); err != nil {
			return mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to create %s", dst))
		}
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return mv.handle(EntryVanished, src, err)
		}

		return mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to read directory %s", src))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if !mv.moveEntry(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())) {
			return false
		}
	}

	// Only succeeds when everything below was moved.
	_ = os.Remove(src)

	return true
}

func (mv *move) moveFile(src, dst string, fi os.FileInfo) bool {
	if proceed, cont := mv.clearDestination(src, dst); !proceed {
		return cont
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to create parent of %s", dst))
	}

	written, err := mv.copier(src, dst)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			if _, statErr := os.Lstat(src); os.IsNotExist(statErr) {
				_ = os.Remove(dst)
				return mv.handle(EntryVanished, src, err)
			}
		}

		return mv.copyFailed(src, dst, true, err)
	}

	dstInfo, err := os.Stat(dst)
	if err != nil {
		return mv.copyFailed(src, dst, true, errors.Wrapf(err, "unable to stat copy %s", dst))
	}

	if written != fi.Size() || dstInfo.Size() != fi.Size() {
		// Both copies stay on disk, a later run with overwrite replaces the short one.
		mv.failed = true
		err := errors.Errorf("copied %d of %d bytes from %s to %s", dstInfo.Size(), fi.Size(), src, dst)
		return mv.handle(LengthMismatch, src, err)
	}

	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		mv.log.Warnf("Copied %s to %s but could not remove the source: %s", src, dst, err)
	}

	return true
}

func (mv *move) moveSymlink(src, dst string) bool {
	target, err := os.Readlink(src)
	if err != nil {
		if os.IsNotExist(err) {
			return mv.handle(EntryVanished, src, err)
		}

		return mv.copyFailed(src, dst, false, err)
	}

	if proceed, cont := mv.clearDestination(src, dst); !proceed {
		return cont
	}

	if err := os.Symlink(target, dst); err != nil {
		return mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to link %s", dst))
	}

	_ = os.Remove(src)
	return true
}

// clearDestination makes room for a file or link at dst. proceed is false
// when the entry must not be moved, either because the destination is kept or
// because removing it failed. cont then tells whether the walk goes on.
func (mv *move) clearDestination(src, dst string) (proceed, cont bool) {
	if _, err := os.Lstat(dst); err != nil {
		return true, true
	}

	if !mv.overwrite {
		return false, mv.skip(src, dst)
	}

	if err := os.RemoveAll(dst); err != nil {
		return false, mv.copyFailed(src, dst, false, errors.Wrapf(err, "unable to remove %s", dst))
	}

	return true, true
}

func (mv *move) skip(src, dst string) bool {
	mv.log.Debugf("Keeping existing %s, %s stays in place", dst, src)
	return mv.handle(DestinationExists, src, errors.Errorf("%s already exists", dst))
}

// copyFailed records a failed entry. When cleanup is set the partial
// destination and the source file are removed.
func (mv *move) copyFailed(src, dst string, cleanup bool, err error) bool {
	mv.failed = true
	mv.log.Errorf("Failed moving %s to %s: %s", src, dst, err)

	if cleanup {
		_ = os.Remove(dst)
		_ = os.Remove(src)
	}

	return mv.handle(CopyFailed, src, err)
}

func (mv *move) handle(kind ErrorKind, path string, err error) bool {
	action := mv.errorHandler(kind, path, err)
	if action == Terminate {
		mv.log.Errorf("Move of %s to %s stopped at %s (%s): %s", mv.source, mv.dest, path, kind, err)
		return false
	}

	return true
}

// CopyFile copies src to dst, creating dst with the mode of src.
func CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to open %s", src)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "unable to stat %s", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return 0, errors.Wrapf(err, "unable to create %s", dst)
	}

	written, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return written, errors.Wrapf(err, "unable to copy %s to %s", src, dst)
	}

	if err := out.Close(); err != nil {
		return written, errors.Wrapf(err, "unable to close %s", dst)
	}

	return written, nil
}
