package vpathfs

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"
)

// File is a pathname in the unified tree together with the attributes
// memoized for it. Equal paths obtained independently do not share
// attributes; each File fetches its own.
type File struct {
	VirtualPath

	fs    *FileSystem
	attrs AttributeSnapshot

	errMu   sync.Mutex
	lastErr error
}

func (f *File) ctx() context.Context {
	return f.fs.ctx
}

// nativePath is the absolute, alias-free form handed to providers.
func (f *File) nativePath() string {
	return f.fs.resolver.nativePath(f.raw)
}

// record stores err as the last error of f and of its FileSystem.
func (f *File) record(op string, err error) error {
	if err != nil {
		err = wrapPathError(op, f.raw, convertError(err))
	}
	f.errMu.Lock()
	f.lastErr = err
	f.errMu.Unlock()
	f.fs.setLastError(err)
	return err
}

// LastError returns the error of the last failed operation on f, or nil
// after a success.
func (f *File) LastError() error {
	f.errMu.Lock()
	defer f.errMu.Unlock()
	return f.lastErr
}

// LastErrorCode returns the provider code of LastError.
func (f *File) LastErrorCode() uint32 {
	return errorCode(f.LastError())
}

// LastErrorString describes LastError.
func (f *File) LastErrorString() string {
	return errorString(f.LastError())
}

func (f *File) attributes() Attributes {
	var fetched bool
	a, err := f.attrs.Attributes(func() (Attributes, error) {
		fetched = true
		return f.fs.provider.Attributes(f.ctx(), f.nativePath())
	})
	if fetched {
		f.record("stat", err)
	}
	return a
}

// Attributes returns the attribute bitmask, fetching it on first use.
func (f *File) Attributes() Attributes {
	return f.attributes()
}

// Exists never fails; an I/O error reads as absence and is kept in
// LastError.
func (f *File) Exists() bool { return f.attributes().Has(AttrExists) }
func (f *File) IsDirectory() bool { return f.attributes().Has(AttrDirectory) }
func (f *File) IsFile() bool { return f.attributes().Has(AttrRegular) }
func (f *File) IsHidden() bool { return f.attributes().Has(AttrHidden) }
func (f *File) IsWorkgroup() bool { return f.attributes().Has(AttrWorkgroup) }
func (f *File) IsServer() bool { return f.attributes().Has(AttrServer) }
func (f *File) IsShare() bool { return f.attributes().Has(AttrShare) }

func (f *File) checkAccess(access Access) bool {
	ok, err := f.fs.provider.CheckAccess(f.ctx(), f.nativePath(), access)
	f.record("access", err)
	return err == nil && ok
}

func (f *File) CanRead() bool { return f.checkAccess(AccessRead) }
func (f *File) CanWrite() bool { return f.checkAccess(AccessWrite) }
func (f *File) CanExecute() bool { return f.checkAccess(AccessExecute) }

// Length returns the size in bytes, or 0 for directories, missing files
// and failures.
func (f *File) Length() int64 {
	var fetched bool
	n, err := f.attrs.Length(func() (int64, error) {
		fetched = true
		return f.fs.provider.Length(f.ctx(), f.nativePath())
	})
	if fetched {
		f.record("length", err)
	}
	return n
}

// LastModified returns the modification time, or the zero time on failure.
func (f *File) LastModified() time.Time {
	var fetched bool
	t, err := f.attrs.ModTime(func() (time.Time, error) {
		fetched = true
		return f.fs.provider.ModTime(f.ctx(), f.nativePath())
	})
	if fetched {
		f.record("modtime", err)
	}
	return t
}

// SetAttributes pre-seeds the attribute bitmask.
func (f *File) SetAttributes(a Attributes) { f.attrs.SetAttributes(a) }

// SetLength pre-seeds the size.
func (f *File) SetLength(n int64) { f.attrs.SetLength(n) }

// SetModTime pre-seeds the modification time.
func (f *File) SetModTime(t time.Time) { f.attrs.SetModTime(t) }

// Invalidate forgets every memoized attribute.
func (f *File) Invalidate() { f.attrs.Invalidate() }

// mutated refreshes state after a successful change to f.
func (f *File) mutated() {
	f.attrs.Invalidate()
	f.fs.expireParent(f)
}

func (f *File) mutate(op string, fn func(ctx context.Context, path string) error) bool {
	err := fn(f.ctx(), f.nativePath())
	if f.record(op, err) != nil {
		return false
	}
	f.mutated()
	return true
}

// CreateNewFile creates f as an empty file. It returns false if f already
// existed or the creation failed.
func (f *File) CreateNewFile() bool {
	created, err := f.fs.provider.CreateExclusive(f.ctx(), f.nativePath())
	if err == nil && !created {
		err = fs.ErrExist
	}
	if f.record("create", err) != nil {
		return false
	}
	f.mutated()
	return true
}

// Delete removes the file or empty directory.
func (f *File) Delete() bool {
	return f.mutate("delete", f.fs.provider.Delete)
}

// Mkdir creates the directory. The parent must exist.
func (f *File) Mkdir() bool {
	return f.mutate("mkdir", f.fs.provider.Mkdir)
}

// Mkdirs creates the directory and any missing parents. It returns false if
// the directory already existed.
func (f *File) Mkdirs() bool {
	if f.Exists() {
		f.record("mkdir", fs.ErrExist)
		return false
	}

	var missing []*File
	for cur := f; ; {
		parent := cur.ParentFile()
		if parent == nil || parent.Exists() {
			break
		}
		missing = append(missing, parent)
		cur = parent
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if !missing[i].Mkdir() {
			f.record("mkdir", missing[i].LastError())
			return false
		}
	}
	return f.Mkdir()
}

// RenameTo moves f to dest. Both holders are invalidated on success.
func (f *File) RenameTo(dest *File) bool {
	if dest == nil {
		f.record("rename", ErrInvalidArgument)
		return false
	}
	err := f.fs.provider.Rename(f.ctx(), f.nativePath(), dest.nativePath())
	if f.record("rename", err) != nil {
		return false
	}
	f.mutated()
	dest.mutated()
	return true
}

// SetLastModified sets the modification time.
func (f *File) SetLastModified(t time.Time) bool {
	return f.mutate("chtimes", func(ctx context.Context, path string) error {
		return f.fs.provider.SetModTime(ctx, path, t)
	})
}

// SetReadOnly removes write permission.
func (f *File) SetReadOnly() bool {
	return f.mutate("chmod", f.fs.provider.SetReadOnly)
}

func (f *File) setPermission(access Access, enable, ownerOnly bool) bool {
	return f.mutate("chmod", func(ctx context.Context, path string) error {
		return f.fs.provider.SetPermission(ctx, path, access, enable, ownerOnly)
	})
}

func (f *File) SetWritable(writable, ownerOnly bool) bool {
	return f.setPermission(AccessWrite, writable, ownerOnly)
}

func (f *File) SetReadable(readable, ownerOnly bool) bool {
	return f.setPermission(AccessRead, readable, ownerOnly)
}

func (f *File) SetExecutable(executable, ownerOnly bool) bool {
	return f.setPermission(AccessExecute, executable, ownerOnly)
}

func (f *File) space(kind SpaceKind) int64 {
	n, err := f.fs.provider.Space(f.ctx(), f.nativePath(), kind)
	if f.record("statfs", err) != nil {
		return 0
	}
	return n
}

// TotalSpace returns the size of the volume holding f, or 0 if unknown.
func (f *File) TotalSpace() int64 { return f.space(SpaceTotal) }

// FreeSpace returns the unallocated bytes of the volume holding f.
func (f *File) FreeSpace() int64 { return f.space(SpaceFree) }

// UsableSpace returns the bytes available to this user.
func (f *File) UsableSpace() int64 { return f.space(SpaceUsable) }

func (f *File) list() ([]DirEntry, bool) {
	entries, err := f.fs.provider.List(f.ctx(), f.nativePath())
	if f.record("readdir", err) != nil {
		return nil, false
	}
	return entries, true
}

// List returns the names of the children of f, or nil on failure.
func (f *File) List() []string {
	entries, ok := f.list()
	if !ok {
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// ListFiles returns the children accepted by filter (all when filter is
// nil), with attributes pre-seeded from the listing.
func (f *File) ListFiles(filter func(*File) bool) []*File {
	entries, ok := f.list()
	if !ok {
		return nil
	}
	files := make([]*File, 0, len(entries))
	for _, e := range entries {
		child := f.fs.childFromEntry(f.VirtualPath, e)
		if filter == nil || filter(child) {
			files = append(files, child)
		}
	}
	return files
}

// Open opens the file for byte-level I/O.
func (f *File) Open(mode OpenMode) (FileHandle, error) {
	h, err := f.fs.provider.Open(f.ctx(), f.nativePath(), mode)
	if err := f.record("open", err); err != nil {
		return nil, err
	}
	if mode != OpenRead {
		f.attrs.Invalidate()
	}
	return h, nil
}

// ParentFile returns the parent, or nil for roots and single relative
// segments.
func (f *File) ParentFile() *File {
	parent, ok := f.Parent()
	if !ok {
		return nil
	}
	return f.fs.newFile(parent)
}

// AbsolutePath returns f resolved against the working directory.
func (f *File) AbsolutePath() string {
	return trimTrailing(f.fs.resolver.ResolveAbsolute(f.raw))
}

// AbsoluteFile returns a holder for AbsolutePath.
func (f *File) AbsoluteFile() *File {
	return f.fs.NewPath(f.AbsolutePath())
}

// CanonicalPath returns the unique provider form of f.
func (f *File) CanonicalPath() (string, error) {
	c, err := f.fs.resolver.Canonicalize(f.ctx(), f.raw)
	if err := f.record("canonicalize", err); err != nil {
		return "", err
	}
	return c, nil
}

// Location splits a network path into workgroup, server, share and path.
func (f *File) Location() (NetworkLocation, error) {
	loc, err := f.fs.resolver.Classify(f.ctx(), f.raw)
	if err != nil {
		return NetworkLocation{}, err
	}
	return loc, nil
}

// Workgroup returns the workgroup named by a network path, if any.
func (f *File) Workgroup() string {
	loc, _ := f.Location()
	return loc.Workgroup
}

// Server returns the server named by a network path, if any.
func (f *File) Server() string {
	loc, _ := f.Location()
	return loc.Server
}

// Share returns the share named by a network path, if any.
func (f *File) Share() string {
	loc, _ := f.Location()
	return loc.Share
}

// Authenticate registers a credential for the server f lives on.
func (f *File) Authenticate(username, domain, password string) bool {
	err := f.fs.Authenticate(f.raw, username, domain, password)
	return f.record("authenticate", err) == nil
}

// errorString renders err the way LastErrorString reports it.
func errorString(err error) string {
	if err == nil {
		return "Success"
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
