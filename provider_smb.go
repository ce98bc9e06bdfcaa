package vpathfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SMBProviderOptions configures NewSMBProvider.
type SMBProviderOptions struct {
	Config      SMBConfig
	Retry       *RetryPolicy
	Factory     SessionFactory // nil dials real servers
	Credentials *CredentialStore
	Logger      *zap.Logger
	Metrics     *Metrics
}

// SMBProvider serves network paths. The network root lists the workgroups
// of the browse list, a workgroup lists its servers, a server lists its
// shares and everything deeper lives on a mounted share.
type SMBProvider struct {
	config  SMBConfig
	retry   *RetryPolicy
	pool    *sessionPool
	shares  *browseCache
	logger  *zap.Logger
	metrics *Metrics
	cancel  context.CancelFunc

	mu         sync.RWMutex
	workgroups map[string]workgroupEntry
}

type workgroupEntry struct {
	name    string
	servers []string
}

var _ NativeProvider = (*SMBProvider)(nil)

// NewSMBProvider creates a provider and starts its idle session cleanup.
func NewSMBProvider(opts SMBProviderOptions) *SMBProvider {
	cfg := opts.Config
	cfg.setDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("smb")

	factory := opts.Factory
	if factory == nil {
		factory = &RealSessionFactory{Port: cfg.Port, ConnTimeout: cfg.ConnTimeout}
	}
	creds := opts.Credentials
	if creds == nil {
		creds = NewCredentialStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &SMBProvider{
		config:     cfg,
		retry:      opts.Retry,
		pool:       newSessionPool(factory, creds, cfg.IdleTimeout, logger),
		shares:     newBrowseCache(cfg.BrowseCache),
		logger:     logger,
		metrics:    opts.Metrics,
		cancel:     cancel,
		workgroups: make(map[string]workgroupEntry),
	}
	p.pool.startCleanup(ctx)
	return p
}

// Close logs off every pooled session.
func (p *SMBProvider) Close() error {
	p.cancel()
	return p.pool.Close()
}

// SetWorkgroup records a workgroup and its servers in the browse list.
func (p *SMBProvider) SetWorkgroup(name string, servers []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list := make([]string, len(servers))
	copy(list, servers)
	p.workgroups[strings.ToUpper(name)] = workgroupEntry{name: name, servers: list}
}

// RemoveWorkgroup drops a workgroup from the browse list.
func (p *SMBProvider) RemoveWorkgroup(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workgroups, strings.ToUpper(name))
}

// BrowseCacheStats reports the usage of the share list cache.
func (p *SMBProvider) BrowseCacheStats() BrowseCacheStats {
	return p.shares.Stats()
}

// Reauthenticate drops the pooled session for server so that the next
// round trip uses the current credential.
func (p *SMBProvider) Reauthenticate(server string) {
	if server == "" || server == DefaultCredentialKey {
		p.pool.evictAll()
		p.shares.invalidateAll()
		return
	}
	p.pool.evict(server)
	p.shares.invalidate(server)
}

// WorkgroupExists consults the browse list.
func (p *SMBProvider) WorkgroupExists(ctx context.Context, name string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.workgroups[strings.ToUpper(name)]
	return ok, nil
}

func (p *SMBProvider) knownServer(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, wg := range p.workgroups {
		for _, s := range wg.servers {
			if strings.EqualFold(s, name) {
				return true
			}
		}
	}
	return false
}

func (p *SMBProvider) locate(ctx context.Context, path string) NetworkLocation {
	return disambiguate(ctx, networkFields(path), p.WorkgroupExists, p.logger, p.metrics)
}

// withShare runs fn against the share loc names, retrying transient
// failures on a fresh session.
func (p *SMBProvider) withShare(ctx context.Context, loc NetworkLocation, fn func(sh SMBShare) error) error {
	if loc.Server == "" || loc.Share == "" {
		return ErrInvalidArgument
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.OpTimeout)
	defer cancel()

	return withRetry(ctx, p.retry, p.logger, func() error {
		ps, err := p.pool.get(ctx, loc.Server)
		if err != nil {
			return err
		}
		defer p.pool.put(ps)

		sh, err := ps.mount(loc.Share)
		if err != nil {
			if isRetryable(err) {
				p.pool.discard(ps)
			}
			return err
		}

		err = fn(sh)
		if isRetryable(err) {
			p.pool.discard(ps)
		}
		return err
	})
}

// onPath runs fn for locations inside a share; browse levels are read-only.
func (p *SMBProvider) onPath(ctx context.Context, path string, fn func(sh SMBShare, name string) error) error {
	loc := p.locate(ctx, path)
	if loc.Share == "" {
		return ErrPermissionDenied
	}
	return convertError(p.withShare(ctx, loc, func(sh SMBShare) error {
		return fn(sh, loc.Path)
	}))
}

func (p *SMBProvider) Attributes(ctx context.Context, path string) (Attributes, error) {
	p.metrics.attributeCall("smb")

	browse := AttrExists | AttrDirectory
	loc := p.locate(ctx, path)
	switch {
	case loc.IsRoot():
		return browse, nil
	case loc.Server == "":
		return browse | AttrWorkgroup, nil
	case loc.Share == "":
		if p.knownServer(loc.Server) {
			return browse | AttrServer, nil
		}
		ps, err := p.pool.get(ctx, loc.Server)
		if err != nil {
			return 0, convertError(err)
		}
		p.pool.put(ps)
		return browse | AttrServer, nil
	case loc.Path == "":
		err := p.withShare(ctx, loc, func(sh SMBShare) error { return nil })
		if err != nil {
			return 0, convertError(err)
		}
		a := browse | AttrShare
		if strings.HasSuffix(loc.Share, "$") {
			a |= AttrHidden
		}
		return a, nil
	}

	var info fs.FileInfo
	err := p.withShare(ctx, loc, func(sh SMBShare) error {
		var err error
		info, err = sh.Stat(loc.Path)
		return err
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, convertError(err)
	}
	return attributesFromInfo(info), nil
}

func (p *SMBProvider) stat(ctx context.Context, loc NetworkLocation) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := p.withShare(ctx, loc, func(sh SMBShare) error {
		var err error
		info, err = sh.Stat(loc.Path)
		return err
	})
	if err != nil {
		return nil, convertError(err)
	}
	return info, nil
}

// CheckAccess maps the read-only attribute onto write access. Browse levels
// are readable and traversable but never writable.
func (p *SMBProvider) CheckAccess(ctx context.Context, path string, access Access) (bool, error) {
	loc := p.locate(ctx, path)
	if loc.Share == "" || loc.Path == "" {
		return access&AccessWrite == 0, nil
	}

	info, err := p.stat(ctx, loc)
	if err != nil {
		return false, err
	}
	if access&AccessWrite != 0 && info.Mode().Perm()&0200 == 0 {
		return false, nil
	}
	return true, nil
}

// SetPermission can only toggle the read-only attribute.
func (p *SMBProvider) SetPermission(ctx context.Context, path string, access Access, enable, ownerOnly bool) error {
	if access != AccessWrite {
		return ErrNotImplemented
	}
	mode := fs.FileMode(0444)
	if enable {
		mode = 0666
	}
	return p.onPath(ctx, path, func(sh SMBShare, name string) error {
		return sh.Chmod(name, mode)
	})
}

func (p *SMBProvider) ModTime(ctx context.Context, path string) (time.Time, error) {
	loc := p.locate(ctx, path)
	if loc.Path == "" {
		return time.Time{}, nil
	}
	info, err := p.stat(ctx, loc)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (p *SMBProvider) SetModTime(ctx context.Context, path string, t time.Time) error {
	return p.onPath(ctx, path, func(sh SMBShare, name string) error {
		return sh.Chtimes(name, t, t)
	})
}

func (p *SMBProvider) Length(ctx context.Context, path string) (int64, error) {
	loc := p.locate(ctx, path)
	if loc.Path == "" {
		return 0, nil
	}
	info, err := p.stat(ctx, loc)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, nil
	}
	return info.Size(), nil
}

func (p *SMBProvider) CreateExclusive(ctx context.Context, path string) (bool, error) {
	created := false
	err := p.onPath(ctx, path, func(sh SMBShare, name string) error {
		if name == "" {
			return ErrInvalidArgument
		}
		f, err := sh.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		if err != nil {
			return err
		}
		created = true
		return f.Close()
	})
	return created, err
}

func (p *SMBProvider) Delete(ctx context.Context, path string) error {
	return p.onPath(ctx, path, func(sh SMBShare, name string) error {
		if name == "" {
			return ErrPermissionDenied
		}
		return sh.Remove(name)
	})
}

func (p *SMBProvider) List(ctx context.Context, path string) ([]DirEntry, error) {
	en, err := p.FindFirst(ctx, path)
	if err != nil {
		return nil, err
	}
	defer en.Close()
	return drain(ctx, en)
}

func (p *SMBProvider) Mkdir(ctx context.Context, path string) error {
	return p.onPath(ctx, path, func(sh SMBShare, name string) error {
		if name == "" {
			return fs.ErrExist
		}
		return sh.Mkdir(name, 0755)
	})
}

// Rename moves a file within one share.
func (p *SMBProvider) Rename(ctx context.Context, from, to string) error {
	src := p.locate(ctx, from)
	dst := p.locate(ctx, to)
	if src.Path == "" || dst.Path == "" ||
		!strings.EqualFold(src.Server, dst.Server) ||
		!strings.EqualFold(src.Share, dst.Share) {
		return fmt.Errorf("rename across shares: %w", ErrInvalidArgument)
	}
	return convertError(p.withShare(ctx, src, func(sh SMBShare) error {
		return sh.Rename(src.Path, dst.Path)
	}))
}

func (p *SMBProvider) SetReadOnly(ctx context.Context, path string) error {
	return p.onPath(ctx, path, func(sh SMBShare, name string) error {
		return sh.Chmod(name, 0444)
	})
}

// Roots returns the network root.
func (p *SMBProvider) Roots(ctx context.Context) ([]string, error) {
	return []string{NetworkRoot}, nil
}

func (p *SMBProvider) Space(ctx context.Context, path string, kind SpaceKind) (int64, error) {
	loc := p.locate(ctx, path)
	if loc.Share == "" {
		return 0, ErrNotImplemented
	}

	var vi SMBVolumeInfo
	err := p.withShare(ctx, loc, func(sh SMBShare) error {
		var err error
		vi, err = sh.Statfs(loc.Path)
		return err
	})
	if err != nil {
		return 0, convertError(err)
	}

	switch kind {
	case SpaceFree:
		return vi.Free, nil
	case SpaceUsable:
		return vi.Available, nil
	default:
		return vi.Total, nil
	}
}

// Open holds a pooled session until the handle is closed.
func (p *SMBProvider) Open(ctx context.Context, path string, mode OpenMode) (FileHandle, error) {
	loc := p.locate(ctx, path)
	if loc.Path == "" {
		return nil, ErrPermissionDenied
	}

	ps, err := p.pool.get(ctx, loc.Server)
	if err != nil {
		return nil, convertError(err)
	}
	sh, err := ps.mount(loc.Share)
	if err != nil {
		p.pool.put(ps)
		return nil, convertError(err)
	}
	f, err := sh.OpenFile(loc.Path, openFlags(mode), 0666)
	if err != nil {
		p.pool.put(ps)
		return nil, convertError(err)
	}
	if mode == OpenAppend {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			p.pool.put(ps)
			return nil, convertError(err)
		}
	}

	return &smbHandle{SMBFile: f, release: func() { p.pool.put(ps) }}, nil
}

// FindFirst starts an enumeration. Browse levels are served from the browse
// list and the share list; share directories stream from Readdir in batches.
func (p *SMBProvider) FindFirst(ctx context.Context, path string) (Enumerator, error) {
	loc := p.locate(ctx, path)
	switch {
	case loc.IsRoot():
		return &sliceEnumerator{entries: p.workgroupEntries()}, nil
	case loc.Server == "":
		entries, ok := p.serverEntries(loc.Workgroup)
		if !ok {
			return nil, ErrNotFound
		}
		return &sliceEnumerator{entries: entries}, nil
	case loc.Share == "":
		entries, err := p.shareEntries(ctx, loc.Server)
		if err != nil {
			return nil, err
		}
		return &sliceEnumerator{entries: entries}, nil
	}

	ps, err := p.pool.get(ctx, loc.Server)
	if err != nil {
		return nil, convertError(err)
	}
	sh, err := ps.mount(loc.Share)
	if err != nil {
		p.pool.put(ps)
		return nil, convertError(err)
	}
	f, err := sh.OpenFile(loc.Path, os.O_RDONLY, 0)
	if err != nil {
		p.pool.put(ps)
		return nil, convertError(err)
	}

	return &smbEnumerator{
		file:    f,
		batch:   p.config.ReadBatch,
		release: func() { p.pool.put(ps) },
	}, nil
}

func (p *SMBProvider) workgroupEntries() []DirEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]DirEntry, 0, len(p.workgroups))
	for _, wg := range p.workgroups {
		out = append(out, DirEntry{
			Name:       wg.name,
			Attributes: AttrExists | AttrDirectory | AttrWorkgroup,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p *SMBProvider) serverEntries(workgroup string) ([]DirEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	wg, ok := p.workgroups[strings.ToUpper(workgroup)]
	if !ok {
		return nil, false
	}
	out := make([]DirEntry, len(wg.servers))
	for i, s := range wg.servers {
		out[i] = DirEntry{Name: s, Attributes: AttrExists | AttrDirectory | AttrServer}
	}
	return out, true
}

func (p *SMBProvider) shareEntries(ctx context.Context, server string) ([]DirEntry, error) {
	if entries, ok := p.shares.get(server); ok {
		return entries, nil
	}

	var names []string
	err := withRetry(ctx, p.retry, p.logger, func() error {
		ps, err := p.pool.get(ctx, server)
		if err != nil {
			return err
		}
		defer p.pool.put(ps)

		names, err = ps.session.ListSharenames()
		if isRetryable(err) {
			p.pool.discard(ps)
		}
		return err
	})
	if err != nil {
		return nil, convertError(err)
	}

	entries := make([]DirEntry, 0, len(names))
	for _, n := range names {
		a := AttrExists | AttrDirectory | AttrShare
		if strings.HasSuffix(n, "$") {
			a |= AttrHidden
		}
		entries = append(entries, DirEntry{Name: n, Attributes: a})
	}
	p.shares.put(server, entries)
	return entries, nil
}

// Canonicalize accepts the cleaned path as is.
func (p *SMBProvider) Canonicalize(ctx context.Context, path string) (string, error) {
	return path, nil
}

// smbHandle returns its session to the pool on Close.
type smbHandle struct {
	SMBFile
	once    sync.Once
	release func()
}

func (h *smbHandle) Close() error {
	err := h.SMBFile.Close()
	h.once.Do(h.release)
	return err
}

// smbEnumerator streams a share directory in Readdir batches.
type smbEnumerator struct {
	file    SMBFile
	batch   int
	buf     []fs.FileInfo
	done    bool
	once    sync.Once
	release func()
}

func (e *smbEnumerator) Next(ctx context.Context) (DirEntry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return DirEntry{}, err
		}

		if len(e.buf) == 0 {
			if e.done {
				return DirEntry{}, io.EOF
			}
			infos, err := e.file.Readdir(e.batch)
			if err != nil && err != io.EOF {
				return DirEntry{}, convertError(err)
			}
			if err == io.EOF || e.batch <= 0 || len(infos) == 0 {
				e.done = true
			}
			e.buf = infos
			continue
		}

		info := e.buf[0]
		e.buf = e.buf[1:]
		if info.Name() == "." || info.Name() == ".." {
			continue
		}
		return dirEntryFromInfo(info), nil
	}
}

func (e *smbEnumerator) Close() error {
	var err error
	e.once.Do(func() {
		err = e.file.Close()
		e.buf = nil
		e.release()
	})
	return err
}
