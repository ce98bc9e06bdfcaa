package vpathfs

import (
	"context"
	"io"
	"io/fs"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = &RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2,
}

type smbFixture struct {
	provider *SMBProvider
	factory  *MockSessionFactory
	backend  *MockSMBBackend
	creds    *CredentialStore
}

func setupSMBProvider(t *testing.T, cfg SMBConfig) *smbFixture {
	t.Helper()

	backend := NewMockSMBBackend("DATA", "IPC$")
	backend.AddDir("DATA/docs", 0755)
	backend.AddFile("DATA/docs/report.txt", []byte("quarterly"), 0644)
	backend.AddFile("DATA/readme.md", []byte("hi"), 0644)

	factory := NewMockSessionFactory()
	factory.AddServer("FILESRV", backend)

	creds := NewCredentialStore()
	p := NewSMBProvider(SMBProviderOptions{
		Config:      cfg,
		Retry:       fastRetry,
		Factory:     factory,
		Credentials: creds,
	})
	p.SetWorkgroup("OFFICE", []string{"FILESRV"})
	t.Cleanup(func() { p.Close() })

	return &smbFixture{provider: p, factory: factory, backend: backend, creds: creds}
}

func TestSMBProvider_Attributes(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	ctx := context.Background()
	browse := AttrExists | AttrDirectory

	tests := []struct {
		path string
		want Attributes
	}{
		{`\\`, browse},
		{`\\OFFICE`, browse | AttrWorkgroup},
		{`\\office`, browse | AttrWorkgroup},
		{`\\OFFICE\FILESRV`, browse | AttrServer},
		{`\\FILESRV`, browse | AttrServer},
		{`\\FILESRV\DATA`, browse | AttrShare},
		{`\\FILESRV\IPC$`, browse | AttrShare | AttrHidden},
		{`\\FILESRV\DATA\docs`, browse},
		{`\\FILESRV\data\docs\report.txt`, AttrExists | AttrRegular},
		{`\\OFFICE\FILESRV\DATA\docs\report.txt`, AttrExists | AttrRegular},
		{`\\FILESRV\DATA\missing`, 0},
	}

	for _, tt := range tests {
		got, err := fx.provider.Attributes(ctx, tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestSMBProvider_AttributesUnreachable(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	ctx := context.Background()

	_, err := fx.provider.Attributes(ctx, `\\NOSUCHHOST`)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeBadNetPath, errorCode(err))

	_, err = fx.provider.Attributes(ctx, `\\FILESRV\NOSHARE`)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodePathNotFound, errorCode(err))
}

func TestSMBProvider_BrowseLevels(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	ctx := context.Background()

	names := func(path string) []string {
		t.Helper()
		entries, err := fx.provider.List(ctx, path)
		require.NoError(t, err, path)
		var out []string
		for _, e := range entries {
			out = append(out, e.Name)
		}
		return out
	}

	fx.provider.SetWorkgroup("LAB", nil)
	assert.Equal(t, []string{"LAB", "OFFICE"}, names(`\\`))
	assert.Equal(t, []string{"FILESRV"}, names(`\\OFFICE`))
	assert.Empty(t, names(`\\LAB`))

	fx.provider.RemoveWorkgroup("lab")
	assert.Equal(t, []string{"OFFICE"}, names(`\\`))

	entries, err := fx.provider.List(ctx, `\\FILESRV`)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "DATA", entries[0].Name)
	assert.Equal(t, AttrExists|AttrDirectory|AttrShare, entries[0].Attributes)
	assert.Equal(t, "IPC$", entries[1].Name)
	assert.True(t, entries[1].Attributes.Has(AttrHidden))

	// The share list is cached per server
	_, err = fx.provider.List(ctx, `\\OFFICE\FILESRV`)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.backend.CountOperations("listshares"))
	assert.Equal(t, 1, fx.provider.BrowseCacheStats().Entries)

	fx.provider.Reauthenticate("FILESRV")
	assert.Equal(t, 0, fx.provider.BrowseCacheStats().Entries)
}

func TestSMBProvider_ReadsDirectoryInBatches(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{ReadBatch: 1})
	ctx := context.Background()

	en, err := fx.provider.FindFirst(ctx, `\\FILESRV\DATA`)
	require.NoError(t, err)

	first, err := en.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "docs", first.Name)
	assert.Equal(t, 1, fx.backend.CountOperations("readdir"))

	second, err := en.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "readme.md", second.Name)
	assert.EqualValues(t, 2, second.Size)
	assert.Equal(t, AttrExists|AttrRegular, second.Attributes)

	_, err = en.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 3, fx.backend.CountOperations("readdir"))

	require.NoError(t, en.Close())
	require.NoError(t, en.Close())
	assert.Equal(t, 1, fx.backend.CountOperations("close"))
}

func TestSMBProvider_FindFirstErrors(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	ctx := context.Background()

	_, err := fx.provider.FindFirst(ctx, `\\FILESRV\DATA\nothere`)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = fx.provider.FindFirst(ctx, `\\NOSUCHHOST`)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSMBProvider_Mutations(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	created, err := p.CreateExclusive(ctx, `\\FILESRV\DATA\docs\new.txt`)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = p.CreateExclusive(ctx, `\\FILESRV\DATA\docs\new.txt`)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, p.Mkdir(ctx, `\\FILESRV\DATA\archive`))
	assert.True(t, fx.backend.FileExists("DATA/archive"))

	require.NoError(t, p.Rename(ctx, `\\FILESRV\DATA\docs\new.txt`, `\\FILESRV\DATA\archive\new.txt`))
	assert.True(t, fx.backend.FileExists("DATA/archive/new.txt"))
	assert.False(t, fx.backend.FileExists("DATA/docs/new.txt"))

	err = p.Rename(ctx, `\\FILESRV\DATA\archive\new.txt`, `\\FILESRV\IPC$\new.txt`)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	require.NoError(t, p.Delete(ctx, `\\FILESRV\DATA\archive\new.txt`))
	assert.False(t, fx.backend.FileExists("DATA/archive/new.txt"))

	err = p.Delete(ctx, `\\FILESRV\DATA\archive\new.txt`)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSMBProvider_BrowseLevelsAreReadOnly(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	for _, path := range []string{`\\`, `\\OFFICE`, `\\FILESRV`, `\\FILESRV\DATA`} {
		assert.ErrorIs(t, p.Delete(ctx, path), ErrPermissionDenied, path)

		ok, err := p.CheckAccess(ctx, path, AccessWrite)
		require.NoError(t, err)
		assert.False(t, ok, path)

		ok, err = p.CheckAccess(ctx, path, AccessRead|AccessExecute)
		require.NoError(t, err)
		assert.True(t, ok, path)

		_, err = p.Open(ctx, path, OpenRead)
		assert.ErrorIs(t, err, ErrPermissionDenied, path)
	}

	assert.ErrorIs(t, p.Mkdir(ctx, `\\OFFICE\NEWSRV`), ErrPermissionDenied)
	assert.ErrorIs(t, p.Mkdir(ctx, `\\FILESRV\DATA`), fs.ErrExist)
}

func TestSMBProvider_Permissions(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()
	path := `\\FILESRV\DATA\readme.md`

	ok, err := p.CheckAccess(ctx, path, AccessWrite)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.SetReadOnly(ctx, path))
	mode, _ := fx.backend.FileMode("DATA/readme.md")
	assert.EqualValues(t, 0444, mode)

	ok, err = p.CheckAccess(ctx, path, AccessWrite)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.SetPermission(ctx, path, AccessWrite, true, true))
	mode, _ = fx.backend.FileMode("DATA/readme.md")
	assert.EqualValues(t, 0666, mode)

	err = p.SetPermission(ctx, path, AccessExecute, true, false)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestSMBProvider_TimesAndLength(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()
	path := `\\FILESRV\DATA\docs\report.txt`

	n, err := p.Length(ctx, path)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)

	n, err = p.Length(ctx, `\\FILESRV\DATA\docs`)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.Length(ctx, `\\OFFICE`)
	require.NoError(t, err)
	assert.Zero(t, n)

	when := time.Date(2021, 7, 8, 9, 10, 11, 0, time.UTC)
	require.NoError(t, p.SetModTime(ctx, path, when))
	got, err := p.ModTime(ctx, path)
	require.NoError(t, err)
	assert.True(t, when.Equal(got))

	got, err = p.ModTime(ctx, `\\FILESRV`)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestSMBProvider_Space(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()
	fx.backend.SetVolume(SMBVolumeInfo{Total: 1000, Free: 600, Available: 500})

	tests := []struct {
		kind SpaceKind
		want int64
	}{
		{SpaceTotal, 1000},
		{SpaceFree, 600},
		{SpaceUsable, 500},
	}
	for _, tt := range tests {
		got, err := p.Space(ctx, `\\FILESRV\DATA\docs`, tt.kind)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := p.Space(ctx, `\\OFFICE`, SpaceTotal)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestSMBProvider_OpenReadWrite(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()
	path := `\\FILESRV\DATA\docs\log.txt`

	h, err := p.Open(ctx, path, OpenWrite)
	require.NoError(t, err)
	_, err = h.Write([]byte("one"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = p.Open(ctx, path, OpenAppend)
	require.NoError(t, err)
	_, err = h.Write([]byte(",two"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	content, ok := fx.backend.GetFile("DATA/docs/log.txt")
	require.True(t, ok)
	assert.Equal(t, "one,two", string(content))

	h, err = p.Open(ctx, path, OpenRead)
	require.NoError(t, err)
	data, err := io.ReadAll(h)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.Equal(t, "one,two", string(data))

	_, err = p.Open(ctx, `\\FILESRV\DATA\absent`, OpenRead)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSMBProvider_ReusesSession(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := p.Attributes(ctx, `\\FILESRV\DATA\docs\report.txt`)
		require.NoError(t, err)
		_, err = p.List(ctx, `\\FILESRV\DATA\docs`)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fx.factory.SessionsMade())
	assert.Equal(t, 1, fx.backend.CountOperations("mount"))
	assert.Equal(t, 1, p.pool.size())
}

func TestSMBProvider_Reauthenticate(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	_, err := p.Attributes(ctx, `\\FILESRV\DATA`)
	require.NoError(t, err)
	cred, ok := fx.factory.Credential("FILESRV")
	require.True(t, ok)
	assert.True(t, cred.Guest())

	fx.creds.Set("FILESRV", NewCredential(`CORP\alice`, "", "secret"))
	p.Reauthenticate("FILESRV")

	_, err = p.Attributes(ctx, `\\FILESRV\DATA`)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.factory.SessionsMade())

	cred, _ = fx.factory.Credential("FILESRV")
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "CORP", cred.Domain)
	assert.Equal(t, NTHash("secret"), cred.NTHash)
}

func TestSMBProvider_RetriesTransientFailures(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	fx.backend.SetOperationError("stat", ErrConnectionClosed)
	_, err := p.Attributes(ctx, `\\FILESRV\DATA\readme.md`)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
	assert.Equal(t, fastRetry.MaxAttempts, fx.factory.ConnectAttempts())

	// Permanent failures are not retried
	fx.backend.ClearErrors()
	fx.factory.Reset()
	fx.backend.SetOperationError("stat", ErrPermissionDenied)
	_, err = p.Attributes(ctx, `\\FILESRV\DATA\readme.md`)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.LessOrEqual(t, fx.factory.ConnectAttempts(), 1)
}

func TestSMBProvider_Close(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	p := fx.provider
	ctx := context.Background()

	_, err := p.Attributes(ctx, `\\FILESRV\DATA`)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.Eventually(t, func() bool {
		return fx.backend.CountOperations("logoff") == 1
	}, time.Second, time.Millisecond)

	_, err = p.Attributes(ctx, `\\FILESRV\DATA`)
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestSMBProvider_Roots(t *testing.T) {
	fx := setupSMBProvider(t, SMBConfig{})
	roots, err := fx.provider.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{NetworkRoot}, roots)

	ok, err := fx.provider.WorkgroupExists(context.Background(), "office")
	require.NoError(t, err)
	assert.True(t, ok)

	var wgs []string
	for _, e := range fx.provider.workgroupEntries() {
		wgs = append(wgs, e.Name)
	}
	assert.True(t, sort.StringsAreSorted(wgs))
}
