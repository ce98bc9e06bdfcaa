package vpathfs

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mountMockShare(t *testing.T) (SMBShare, *MockSMBBackend) {
	t.Helper()
	backend := NewMockSMBBackend("Data")
	backend.AddFile("DATA/dir/a.txt", []byte("alpha"), 0644)
	backend.AddFile("DATA/dir/b.txt", []byte("bravo"), 0644)
	backend.AddDir("DATA/dir/sub", 0755)

	factory := NewMockSessionFactory()
	factory.AddServer("srv", backend)
	session, err := factory.NewSession(context.Background(), "SRV", Credential{})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(func() { session.Logoff() })

	share, err := session.Mount("data")
	if err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	return share, backend
}

func TestMockSession_Shares(t *testing.T) {
	backend := NewMockSMBBackend("Data", "IPC$")
	session := NewMockSMBSession(backend)

	names, err := session.ListSharenames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Data", "IPC$"}, names)

	_, err = session.Mount("missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, session.Logoff())
	require.NoError(t, session.Logoff())
	assert.Equal(t, 1, backend.CountOperations("logoff"))

	_, err = session.Mount("Data")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	_, err = session.ListSharenames()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestMockSessionFactory_UnknownServer(t *testing.T) {
	factory := NewMockSessionFactory()
	_, err := factory.NewSession(context.Background(), "nowhere", Credential{})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeBadNetPath, pe.Code)
	assert.Equal(t, 1, factory.ConnectAttempts())
	assert.Equal(t, 0, factory.SessionsMade())

	factory.Reset()
	assert.Equal(t, 0, factory.ConnectAttempts())
}

func TestMockShare_OpenFile(t *testing.T) {
	share, _ := mountMockShare(t)

	f, err := share.OpenFile(`dir\a.txt`, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	_, err = f.Write([]byte("x"))
	assert.Error(t, err, "read-only handle")
	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "double close is harmless")

	_, err = f.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrClosed)

	_, err = share.OpenFile("dir/none.txt", os.O_RDONLY, 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = share.OpenFile("nodir/new.txt", os.O_CREATE|os.O_WRONLY, 0644)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = share.OpenFile("dir/a.txt", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	assert.ErrorIs(t, err, fs.ErrExist)
	_, err = share.OpenFile("dir", os.O_WRONLY, 0)
	assert.Error(t, err)
}

func TestMockShare_ReadWriteSeek(t *testing.T) {
	share, backend := mountMockShare(t)

	f, err := share.OpenFile("dir/new.txt", os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("hello world"))
	require.NoError(t, err)

	pos, err := f.Seek(6, io.SeekStart)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	pos, err = f.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, pos)
	_, err = f.Write([]byte("there"))
	require.NoError(t, err)

	_, err = f.Seek(-100, io.SeekCurrent)
	assert.Error(t, err)

	content, ok := backend.GetFile("DATA/dir/new.txt")
	require.True(t, ok)
	assert.Equal(t, "hello there", string(content))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 11, info.Size())
}

func TestMockShare_Readdir(t *testing.T) {
	share, _ := mountMockShare(t)

	d, err := share.OpenFile("dir", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer d.Close()

	var names []string
	for {
		batch, err := d.Readdir(2)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, fi := range batch {
			names = append(names, fi.Name())
		}
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "sub"}, names)

	f, err := share.OpenFile("dir/a.txt", os.O_RDONLY, 0)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Readdir(1)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestMockShare_Mutations(t *testing.T) {
	share, backend := mountMockShare(t)

	require.NoError(t, share.Mkdir("dir/new", 0755))
	assert.ErrorIs(t, share.Mkdir("dir/new", 0755), fs.ErrExist)
	assert.ErrorIs(t, share.Mkdir("x/y", 0755), fs.ErrNotExist)

	assert.Error(t, share.Remove("dir"), "directory not empty")
	require.NoError(t, share.Remove("dir/new"))
	assert.ErrorIs(t, share.Remove("dir/new"), fs.ErrNotExist)

	require.NoError(t, share.Rename("dir", "moved"))
	assert.True(t, backend.FileExists("DATA/moved/sub"))
	assert.False(t, backend.FileExists("DATA/dir/a.txt"))
	assert.ErrorIs(t, share.Rename("missing", "x"), fs.ErrNotExist)

	require.NoError(t, share.Chmod("moved/a.txt", 0400))
	mode, ok := backend.FileMode("DATA/moved/a.txt")
	require.True(t, ok)
	assert.Equal(t, fs.FileMode(0400), mode)

	vol, err := share.Statfs("")
	require.NoError(t, err)
	assert.EqualValues(t, 1<<28, vol.Available)

	require.NoError(t, share.Umount())
	_, err = share.Stat("moved")
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestMockBackend_ErrorInjection(t *testing.T) {
	share, backend := mountMockShare(t)
	boom := errors.New("boom")

	backend.SetOperationError("stat", boom)
	_, err := share.Stat("dir/a.txt")
	assert.ErrorIs(t, err, boom)

	backend.ClearErrors()
	backend.SetError("DATA/dir/b.txt", fs.ErrPermission)
	_, err = share.Stat("dir/a.txt")
	assert.NoError(t, err)
	_, err = share.Stat("dir/b.txt")
	assert.ErrorIs(t, err, fs.ErrPermission)

	backend.ClearOperations()
	backend.ClearErrors()
	_, err = share.Stat("dir/b.txt")
	require.NoError(t, err)
	ops := backend.GetOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, "stat", ops[0].Op)
	assert.Equal(t, "/DATA/dir/b.txt", ops[0].Path)
}

func TestMockBackend_Hidden(t *testing.T) {
	share, backend := mountMockShare(t)
	backend.SetHidden("DATA/dir/a.txt", true)

	info, err := share.Stat("dir/a.txt")
	require.NoError(t, err)
	assert.True(t, attributesFromInfo(info).Has(AttrHidden))

	info, err = share.Stat("dir/b.txt")
	require.NoError(t, err)
	assert.False(t, attributesFromInfo(info).Has(AttrHidden))
}
