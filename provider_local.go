package vpathfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// LocalProvider serves local paths from any absfs.FileSystem.
type LocalProvider struct {
	fs      absfs.FileSystem
	logger  *zap.Logger
	metrics *Metrics
}

var _ NativeProvider = (*LocalProvider)(nil)

// NewLocalProvider creates a provider over fsys.
func NewLocalProvider(fsys absfs.FileSystem, logger *zap.Logger, metrics *Metrics) *LocalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{
		fs:      fsys,
		logger:  logger.Named("local"),
		metrics: metrics,
	}
}

func (p *LocalProvider) stat(path string) (fs.FileInfo, error) {
	info, err := p.fs.Stat(toSlashPath(path))
	if err != nil {
		return nil, convertError(err)
	}
	return info, nil
}

// Attributes stats path. A missing file is reported as zero attributes, not
// as an error.
func (p *LocalProvider) Attributes(ctx context.Context, path string) (Attributes, error) {
	p.metrics.attributeCall("local")

	info, err := p.stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return attributesFromInfo(info), nil
}

func (p *LocalProvider) CheckAccess(ctx context.Context, path string, access Access) (bool, error) {
	info, err := p.stat(path)
	if err != nil {
		return false, err
	}
	owner := fs.FileMode(access) << 6
	return info.Mode().Perm()&owner == owner, nil
}

func (p *LocalProvider) SetPermission(ctx context.Context, path string, access Access, enable, ownerOnly bool) error {
	info, err := p.stat(path)
	if err != nil {
		return err
	}

	bits := fs.FileMode(access) << 6
	if !ownerOnly {
		bits |= fs.FileMode(access)<<3 | fs.FileMode(access)
	}

	perm := info.Mode().Perm()
	if enable {
		perm |= bits
	} else {
		perm &^= bits
	}
	return convertError(p.fs.Chmod(toSlashPath(path), perm))
}

func (p *LocalProvider) ModTime(ctx context.Context, path string) (time.Time, error) {
	info, err := p.stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (p *LocalProvider) SetModTime(ctx context.Context, path string, t time.Time) error {
	return convertError(p.fs.Chtimes(toSlashPath(path), t, t))
}

func (p *LocalProvider) Length(ctx context.Context, path string) (int64, error) {
	info, err := p.stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

func (p *LocalProvider) CreateExclusive(ctx context.Context, path string) (bool, error) {
	if _, err := p.stat(path); err == nil {
		return false, nil
	}
	f, err := p.fs.OpenFile(toSlashPath(path), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, convertError(err)
	}
	return true, convertError(f.Close())
}

func (p *LocalProvider) Delete(ctx context.Context, path string) error {
	return convertError(p.fs.Remove(toSlashPath(path)))
}

func (p *LocalProvider) List(ctx context.Context, path string) ([]DirEntry, error) {
	en, err := p.FindFirst(ctx, path)
	if err != nil {
		return nil, err
	}
	defer en.Close()
	return drain(ctx, en)
}

func (p *LocalProvider) Mkdir(ctx context.Context, path string) error {
	return convertError(p.fs.Mkdir(toSlashPath(path), 0755))
}

func (p *LocalProvider) Rename(ctx context.Context, from, to string) error {
	return convertError(p.fs.Rename(toSlashPath(from), toSlashPath(to)))
}

func (p *LocalProvider) SetReadOnly(ctx context.Context, path string) error {
	info, err := p.stat(path)
	if err != nil {
		return err
	}
	return convertError(p.fs.Chmod(toSlashPath(path), info.Mode().Perm()&^0222))
}

// Roots returns the single local root.
func (p *LocalProvider) Roots(ctx context.Context) ([]string, error) {
	return []string{LocalRoot}, nil
}

// Space is not available through absfs.
func (p *LocalProvider) Space(ctx context.Context, path string, kind SpaceKind) (int64, error) {
	return 0, ErrNotImplemented
}

func (p *LocalProvider) Open(ctx context.Context, path string, mode OpenMode) (FileHandle, error) {
	f, err := p.fs.OpenFile(toSlashPath(path), openFlags(mode), 0666)
	if err != nil {
		return nil, convertError(err)
	}
	return &localHandle{File: f}, nil
}

// FindFirst reads the directory names in one batch and stats each entry as
// it is consumed.
func (p *LocalProvider) FindFirst(ctx context.Context, path string) (Enumerator, error) {
	f, err := p.fs.OpenFile(toSlashPath(path), os.O_RDONLY, 0)
	if err != nil {
		return nil, convertError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, convertError(err)
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory
	}

	entries, err := f.ReadDir(-1)
	if err != nil && err != io.EOF {
		return nil, convertError(err)
	}
	return &localEnumerator{entries: entries}, nil
}

// Canonicalize accepts the cleaned path as is.
func (p *LocalProvider) Canonicalize(ctx context.Context, path string) (string, error) {
	return path, nil
}

// WorkgroupExists is always false; local storage has no workgroups.
func (p *LocalProvider) WorkgroupExists(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func openFlags(mode OpenMode) int {
	switch mode {
	case OpenWrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case OpenAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	case OpenReadWrite:
		return os.O_RDWR | os.O_CREATE
	default:
		return os.O_RDONLY
	}
}

// localHandle adapts absfs.File to FileHandle.
type localHandle struct {
	absfs.File
}

type syncer interface {
	Sync() error
}

func (h *localHandle) Sync() error {
	if s, ok := h.File.(syncer); ok {
		return s.Sync()
	}
	return nil
}

type localEnumerator struct {
	entries []fs.DirEntry
	pos     int
	closed  bool
}

func (e *localEnumerator) Next(ctx context.Context) (DirEntry, error) {
	for {
		if e.closed {
			return DirEntry{}, ErrAlreadyClosed
		}
		if err := ctx.Err(); err != nil {
			return DirEntry{}, err
		}
		if e.pos >= len(e.entries) {
			return DirEntry{}, io.EOF
		}

		de := e.entries[e.pos]
		e.pos++

		info, err := de.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// removed since the directory was read
			continue
		}
		if err != nil {
			return DirEntry{}, convertError(err)
		}
		return dirEntryFromInfo(info), nil
	}
}

func (e *localEnumerator) Close() error {
	e.closed = true
	e.entries = nil
	return nil
}

func dirEntryFromInfo(info fs.FileInfo) DirEntry {
	e := DirEntry{
		Name:       info.Name(),
		Attributes: attributesFromInfo(info),
		ModTime:    info.ModTime(),
	}
	if !info.IsDir() {
		e.Size = info.Size()
	}
	return e
}
