package vpathfs

import (
	"context"
	"io"
	"time"
)

// Access is a permission bit checked by NativeProvider.CheckAccess.
type Access uint8

const (
	AccessExecute Access = 0x01
	AccessWrite   Access = 0x02
	AccessRead    Access = 0x04
)

// SpaceKind selects the figure returned by NativeProvider.Space.
type SpaceKind int

const (
	SpaceTotal SpaceKind = iota
	SpaceFree
	SpaceUsable
)

// OpenMode selects how NativeProvider.Open opens a file.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
	OpenAppend
	OpenReadWrite
)

// DirEntry is one child reported by an Enumerator. The attribute fields are
// pre-seeded into the child's snapshot so that listings avoid a round trip
// per entry.
type DirEntry struct {
	Name       string
	Attributes Attributes
	Size       int64
	ModTime    time.Time
}

// Enumerator is a stateful directory enumeration handle.
type Enumerator interface {
	// Next returns the next entry, or io.EOF once the directory is exhausted.
	Next(ctx context.Context) (DirEntry, error)
	Close() error
}

// FileHandle is an opaque open file.
type FileHandle interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
}

// NativeProvider is the storage backend behind virtual paths. Every path it
// receives is normalized and has had aliases substituted.
type NativeProvider interface {
	Attributes(ctx context.Context, path string) (Attributes, error)
	CheckAccess(ctx context.Context, path string, access Access) (bool, error)
	SetPermission(ctx context.Context, path string, access Access, enable, ownerOnly bool) error
	ModTime(ctx context.Context, path string) (time.Time, error)
	SetModTime(ctx context.Context, path string, t time.Time) error
	Length(ctx context.Context, path string) (int64, error)

	// CreateExclusive creates an empty file, reporting false if it existed.
	CreateExclusive(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, path string) ([]DirEntry, error)
	Mkdir(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	SetReadOnly(ctx context.Context, path string) error

	Roots(ctx context.Context) ([]string, error)
	Space(ctx context.Context, path string, kind SpaceKind) (int64, error)

	Open(ctx context.Context, path string, mode OpenMode) (FileHandle, error)
	FindFirst(ctx context.Context, path string) (Enumerator, error)

	Canonicalize(ctx context.Context, path string) (string, error)
	WorkgroupExists(ctx context.Context, name string) (bool, error)
}

// sliceEnumerator serves entries that were read in one batch.
type sliceEnumerator struct {
	entries []DirEntry
	pos     int
	closed  bool
}

func (e *sliceEnumerator) Next(ctx context.Context) (DirEntry, error) {
	if e.closed {
		return DirEntry{}, ErrAlreadyClosed
	}
	if err := ctx.Err(); err != nil {
		return DirEntry{}, err
	}
	if e.pos >= len(e.entries) {
		return DirEntry{}, io.EOF
	}
	e.pos++
	return e.entries[e.pos-1], nil
}

func (e *sliceEnumerator) Close() error {
	e.closed = true
	e.entries = nil
	return nil
}

// drain reads an enumerator to the end.
func drain(ctx context.Context, en Enumerator) ([]DirEntry, error) {
	var out []DirEntry
	for {
		e, err := en.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
