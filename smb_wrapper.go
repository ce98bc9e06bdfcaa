package vpathfs

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// realSMBSession wraps a go-smb2 Session to implement SMBSession.
type realSMBSession struct {
	session *smb2.Session
	conn    net.Conn
}

func (s *realSMBSession) Mount(shareName string) (SMBShare, error) {
	share, err := s.session.Mount(shareName)
	if err != nil {
		return nil, err
	}
	return &realSMBShare{share: share}, nil
}

func (s *realSMBSession) ListSharenames() ([]string, error) {
	return s.session.ListSharenames()
}

func (s *realSMBSession) Logoff() error {
	err := s.session.Logoff()
	s.conn.Close()
	return err
}

// realSMBShare wraps a go-smb2 Share to implement SMBShare.
type realSMBShare struct {
	share *smb2.Share
}

func (sh *realSMBShare) OpenFile(name string, flag int, perm fs.FileMode) (SMBFile, error) {
	file, err := sh.share.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &realSMBFile{file: file}, nil
}

func (sh *realSMBShare) Stat(name string) (fs.FileInfo, error) {
	info, err := sh.share.Stat(name)
	if err != nil {
		return nil, err
	}
	return &smbFileInfo{FileInfo: info}, nil
}

func (sh *realSMBShare) Mkdir(name string, perm fs.FileMode) error {
	return sh.share.Mkdir(name, perm)
}

func (sh *realSMBShare) Remove(name string) error {
	return sh.share.Remove(name)
}

func (sh *realSMBShare) Rename(oldname, newname string) error {
	return sh.share.Rename(oldname, newname)
}

func (sh *realSMBShare) Chmod(name string, mode fs.FileMode) error {
	return sh.share.Chmod(name, mode)
}

func (sh *realSMBShare) Chtimes(name string, atime, mtime time.Time) error {
	return sh.share.Chtimes(name, atime, mtime)
}

func (sh *realSMBShare) Statfs(name string) (SMBVolumeInfo, error) {
	info, err := sh.share.Statfs(name)
	if err != nil {
		return SMBVolumeInfo{}, err
	}
	unit := info.BlockSize()
	return SMBVolumeInfo{
		Total:     int64(info.TotalBlockCount() * unit),
		Free:      int64(info.FreeBlockCount() * unit),
		Available: int64(info.AvailableBlockCount() * unit),
	}, nil
}

func (sh *realSMBShare) Umount() error {
	return sh.share.Umount()
}

// realSMBFile wraps a go-smb2 File to implement SMBFile.
type realSMBFile struct {
	file *smb2.File
}

func (f *realSMBFile) Read(p []byte) (n int, err error) {
	return f.file.Read(p)
}

func (f *realSMBFile) Write(p []byte) (n int, err error) {
	return f.file.Write(p)
}

func (f *realSMBFile) Seek(offset int64, whence int) (int64, error) {
	return f.file.Seek(offset, whence)
}

func (f *realSMBFile) Sync() error {
	return f.file.Sync()
}

func (f *realSMBFile) Close() error {
	return f.file.Close()
}

func (f *realSMBFile) Stat() (fs.FileInfo, error) {
	info, err := f.file.Stat()
	if err != nil {
		return nil, err
	}
	return &smbFileInfo{FileInfo: info}, nil
}

func (f *realSMBFile) Readdir(n int) ([]fs.FileInfo, error) {
	infos, err := f.file.Readdir(n)
	out := make([]fs.FileInfo, len(infos))
	for i, info := range infos {
		out[i] = &smbFileInfo{FileInfo: info}
	}
	return out, err
}

// smbFileInfo exposes the MS-FSCC attributes of a go-smb2 FileStat.
type smbFileInfo struct {
	fs.FileInfo
}

// WindowsAttributes returns the server-reported file attributes.
func (fi *smbFileInfo) WindowsAttributes() uint32 {
	if st, ok := fi.FileInfo.(*smb2.FileStat); ok {
		return st.FileAttributes
	}
	hidden := len(fi.Name()) > 0 && fi.Name()[0] == '.'
	return modeToWindowsAttributes(fi.Mode(), hidden)
}

// RealSessionFactory dials servers over TCP and authenticates with NTLM.
type RealSessionFactory struct {
	Port        int
	ConnTimeout time.Duration
}

// NewSession dials server and sets up an NTLM session using cred.
func (f *RealSessionFactory) NewSession(ctx context.Context, server string, cred Credential) (SMBSession, error) {
	addr := net.JoinHostPort(server, strconv.Itoa(f.Port))

	// Create TCP connection with timeout
	dialer := &net.Dialer{
		Timeout: f.ConnTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, f.ConnTimeout)
	defer cancel()

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:   cred.Username,
			Hash:   cred.NTHash,
			Domain: cred.Domain,
		},
	}

	session, err := d.Dial(netConn)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("SMB session setup with %s failed: %w", server, err)
	}

	return &realSMBSession{session: session, conn: netConn}, nil
}
