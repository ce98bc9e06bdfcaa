package vpathfs

import (
	"context"
	"io/fs"
	"time"
)

// SMBSession abstracts an authenticated session with one server.
// This interface wraps the go-smb2 Session type.
type SMBSession interface {
	// Mount mounts a share and returns an SMBShare interface.
	Mount(shareName string) (SMBShare, error)
	// ListSharenames enumerates the shares the server exposes.
	ListSharenames() ([]string, error)
	// Logoff ends the session.
	Logoff() error
}

// SMBShare abstracts a mounted share.
// This interface wraps the go-smb2 Share type.
type SMBShare interface {
	OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error)
	Stat(name string) (fs.FileInfo, error)
	Mkdir(name string, perm fs.FileMode) error
	Remove(name string) error
	Rename(oldname, newname string) error
	Chmod(name string, mode fs.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
	// Statfs reports the capacity of the volume holding name.
	Statfs(name string) (SMBVolumeInfo, error)
	Umount() error
}

// SMBFile abstracts an open file or directory on a share.
// This interface wraps the go-smb2 File type.
type SMBFile interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Seek(offset int64, whence int) (int64, error)
	Sync() error
	Close() error
	Stat() (fs.FileInfo, error)
	// Readdir returns up to n further entries, or io.EOF when the directory
	// is exhausted. n <= 0 returns everything that remains.
	Readdir(n int) ([]fs.FileInfo, error)
}

// SMBVolumeInfo is the capacity of a share's volume in bytes.
type SMBVolumeInfo struct {
	Total     int64
	Free      int64
	Available int64
}

// SessionFactory opens sessions for the session pool.
// This abstraction allows injection of mock sessions for testing.
type SessionFactory interface {
	NewSession(ctx context.Context, server string, cred Credential) (SMBSession, error)
}
