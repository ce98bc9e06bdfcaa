package vpathfs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"
	"go.uber.org/zap"
)

// FileSystem is the unified local and network tree. It owns the alias
// table, the credential store, the providers and the directory cache.
type FileSystem struct {
	config   *Config
	logger   *zap.Logger
	metrics  *Metrics
	aliases  *AliasTable
	creds    *CredentialStore
	resolver *Resolver
	provider NativeProvider
	smb      *SMBProvider
	dirs     *DirectoryCache
	ctx      context.Context
	cancel   context.CancelFunc

	errMu   sync.Mutex
	lastErr error
}

// Option customizes New.
type Option func(*options)

type options struct {
	factory  SessionFactory
	provider NativeProvider
	now      func() time.Time
}

// WithSessionFactory makes the network provider open sessions through f
// instead of dialing real servers.
func WithSessionFactory(f SessionFactory) Option {
	return func(o *options) { o.factory = f }
}

// WithProvider replaces the local and network providers with p.
func WithProvider(p NativeProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithClock sets the clock used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a FileSystem. local backs every non-network path and may be
// nil, in which case only network paths are served.
func New(config *Config, local absfs.FileSystem, opts ...Option) (*FileSystem, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}

	// Set defaults and validate
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := config.Logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(config.Logging); err != nil {
			return nil, err
		}
	}

	fsys := &FileSystem{
		config:  config,
		logger:  logger,
		metrics: NewMetrics(config.Registerer),
		aliases: NewAliasTable(),
		creds:   NewCredentialStore(),
	}

	for _, a := range config.Aliases {
		err := fsys.aliases.Add(Alias{
			Name:        a.Name,
			Description: a.Description,
			Destination: a.Path,
			Type:        ParseAliasType(a.Type),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: alias %q: %w", ErrInvalidConfig, a.Name, err)
		}
	}
	for _, c := range config.Credentials {
		fsys.creds.Set(c.Server, NewCredential(c.Username, c.Domain, c.Password))
	}

	if o.provider != nil {
		fsys.provider = o.provider
	} else {
		var localProvider NativeProvider
		if local != nil {
			localProvider = NewLocalProvider(local, logger, fsys.metrics)
		}
		fsys.smb = NewSMBProvider(SMBProviderOptions{
			Config:      config.SMB,
			Retry:       &config.Retry,
			Factory:     o.factory,
			Credentials: fsys.creds,
			Logger:      logger,
			Metrics:     fsys.metrics,
		})
		// Configuration keys arrive lower-cased; workgroups are upper case
		// on the wire.
		for name, servers := range config.Workgroups {
			fsys.smb.SetWorkgroup(strings.ToUpper(name), servers)
		}
		fsys.provider = newRoutedProvider(localProvider, fsys.smb)
	}

	fsys.resolver = NewResolver(fsys.aliases, fsys.provider, logger)
	fsys.resolver.metrics = fsys.metrics
	if err := fsys.resolver.SetWorkingDir(config.WorkingDir); err != nil {
		if fsys.smb != nil {
			fsys.smb.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fsys.ctx, fsys.cancel = context.WithCancel(context.Background())
	fsys.dirs = newDirectoryCache(fsys, fsys.provider, config.Cache, o.now, logger, fsys.metrics)

	return fsys, nil
}

func (fsys *FileSystem) newFile(p VirtualPath) *File {
	return &File{VirtualPath: p, fs: fsys}
}

// childFromEntry builds the holder for a listed child with its attributes
// pre-seeded from the listing.
func (fsys *FileSystem) childFromEntry(dir VirtualPath, e DirEntry) *File {
	f := fsys.newFile(fsys.resolver.NewChildVirtualPath(dir, e.Name))
	f.attrs.seed(e)
	return f
}

// NewPath returns a holder for the pathname p.
func (fsys *FileSystem) NewPath(p string) *File {
	return fsys.newFile(fsys.resolver.NewVirtualPath(p))
}

// NewChildPath returns a holder for child below parent. A nil parent makes
// child stand alone.
func (fsys *FileSystem) NewChildPath(parent *File, child string) *File {
	if parent == nil {
		return fsys.NewPath(child)
	}
	return fsys.newFile(fsys.resolver.NewChildVirtualPath(parent.VirtualPath, child))
}

// NewPathFrom returns a holder for child below the pathname parent. An empty
// parent makes child stand alone.
func (fsys *FileSystem) NewPathFrom(parent, child string) *File {
	return fsys.NewPath(fsys.resolver.Resolve(parent, child))
}

// NewPathFromURI returns a holder for a file:, cifs: or smb: URI. User info
// in the URI registers a credential for its server.
func (fsys *FileSystem) NewPathFromURI(uri string) (*File, error) {
	pu, err := ParseURI(uri)
	if err != nil {
		fsys.setLastError(err)
		return nil, err
	}
	if pu.Credential != nil && pu.Server != "" {
		fsys.creds.Set(pu.Server, *pu.Credential)
		if fsys.smb != nil {
			fsys.smb.Reauthenticate(pu.Server)
		}
	}
	return fsys.NewPath(pu.Path), nil
}

// IsRemoteFile reports whether p addresses the network, directly or through
// an alias.
func (fsys *FileSystem) IsRemoteFile(p string) bool {
	return fsys.resolver.IsRemoteFile(p)
}

// Resolver returns the path resolver.
func (fsys *FileSystem) Resolver() *Resolver {
	return fsys.resolver
}

// Aliases returns the alias table.
func (fsys *FileSystem) Aliases() *AliasTable {
	return fsys.aliases
}

// Credentials returns the credential store.
func (fsys *FileSystem) Credentials() *CredentialStore {
	return fsys.creds
}

// Directories returns the directory enumeration cache.
func (fsys *FileSystem) Directories() *DirectoryCache {
	return fsys.dirs
}

// ListRoots returns the network root and every local root.
func (fsys *FileSystem) ListRoots() []*File {
	roots, err := fsys.resolver.ListRoots(fsys.ctx)
	fsys.setLastError(err)
	if err != nil {
		return nil
	}
	files := make([]*File, len(roots))
	for i, r := range roots {
		files[i] = fsys.NewPath(r)
	}
	return files
}

// OpenDirectory starts or reuses a background enumeration of dir.
func (fsys *FileSystem) OpenDirectory(dir *File, onProgress ProgressFunc) *Session {
	return fsys.dirs.Open(dir, onProgress)
}

// SetWorkgroup records a workgroup and its servers in the browse list.
func (fsys *FileSystem) SetWorkgroup(name string, servers []string) {
	if fsys.smb != nil {
		fsys.smb.SetWorkgroup(name, servers)
	}
}

// Authenticate registers a credential for the server named by p. A path
// without a server sets the default credential.
func (fsys *FileSystem) Authenticate(p, username, domain, password string) error {
	server := DefaultCredentialKey
	if fsys.resolver.IsRemoteFile(p) {
		loc, err := fsys.resolver.Classify(fsys.ctx, p)
		if err != nil {
			return err
		}
		if loc.Server != "" {
			server = loc.Server
		}
	}

	fsys.creds.Set(server, NewCredential(username, domain, password))
	if fsys.smb != nil {
		fsys.smb.Reauthenticate(server)
	}
	fsys.logger.Debug("credential registered",
		zap.String("server", server),
		zap.String("username", username))
	return nil
}

// expireParent marks the cached listing of f's parent stale.
func (fsys *FileSystem) expireParent(f *File) {
	parent, ok := f.Parent()
	if !ok {
		return
	}
	fsys.dirs.invalidate(fsys.resolver.nativePath(parent.raw))
}

func (fsys *FileSystem) setLastError(err error) {
	fsys.errMu.Lock()
	fsys.lastErr = err
	fsys.errMu.Unlock()
}

// LastError returns the error of the most recent operation through fsys.
func (fsys *FileSystem) LastError() error {
	fsys.errMu.Lock()
	defer fsys.errMu.Unlock()
	return fsys.lastErr
}

// LastErrorCode returns the provider code of LastError.
func (fsys *FileSystem) LastErrorCode() uint32 {
	return errorCode(fsys.LastError())
}

// LastErrorString describes LastError.
func (fsys *FileSystem) LastErrorString() string {
	return errorString(fsys.LastError())
}

// Close stops every enumeration session and logs off network sessions.
func (fsys *FileSystem) Close() error {
	fsys.cancel()
	fsys.dirs.Close()
	if fsys.smb != nil {
		if err := fsys.smb.Close(); err != nil {
			return err
		}
	}
	_ = fsys.logger.Sync()
	return nil
}
