package vpathfs

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SessionState is the progress of a directory enumeration session.
type SessionState int32

const (
	// StateLoading means the background enumeration is still running and a
	// snapshot is a prefix of the final listing.
	StateLoading SessionState = iota

	// StateFresh means the enumeration completed and a snapshot is final.
	StateFresh
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "LOADING"
	case StateFresh:
		return "FRESH"
	default:
		return "UNKNOWN"
	}
}

// ProgressFunc is called from the background task every NotifyEvery entries
// and once more when the enumeration finishes.
type ProgressFunc func(s *Session)

// DirectoryCache hands out directory enumeration sessions and reuses a live
// session for the same directory until it expires.
type DirectoryCache struct {
	fsys        *FileSystem
	provider    NativeProvider
	ttl         time.Duration
	notifyEvery int
	now         func() time.Time
	logger      *zap.Logger
	metrics     *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func newDirectoryCache(fsys *FileSystem, provider NativeProvider, cfg EnumCacheConfig, now func() time.Time, logger *zap.Logger, metrics *Metrics) *DirectoryCache {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DirectoryCache{
		fsys:        fsys,
		provider:    provider,
		ttl:         cfg.SessionTTL,
		notifyEvery: cfg.NotifyEvery,
		now:         now,
		logger:      logger.Named("enum"),
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
	}
}

// Open returns the live session for dir, subscribing onProgress to it, or
// starts a new one. A stale session is closed and replaced.
func (c *DirectoryCache) Open(dir *File, onProgress ProgressFunc) *Session {
	key := dir.nativePath()

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[key]; ok {
		switch {
		case s.Closed():
			delete(c.sessions, key)
		case s.Expired():
			c.metrics.sessionExpired()
			s.release()
			delete(c.sessions, key)
		default:
			c.metrics.sessionReused()
			s.subscribe(onProgress)
			return s
		}
	}

	s := c.start(dir, key, onProgress)
	c.sessions[key] = s
	return s
}

// Invalidate marks the session cached for the directory at native path key
// as expired so the next Open enumerates again.
func (c *DirectoryCache) invalidate(key string) {
	c.mu.Lock()
	s, ok := c.sessions[key]
	c.mu.Unlock()
	if ok {
		s.MarkExpired()
	}
}

// forget drops s from the cache if it is still the session mapped for its
// directory.
func (c *DirectoryCache) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.key] == s {
		delete(c.sessions, s.key)
	}
}

// Len returns the number of cached sessions, live or stale.
func (c *DirectoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close closes every session. Sessions opened afterwards fail immediately.
func (c *DirectoryCache) Close() error {
	c.cancel()

	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()

	for _, s := range sessions {
		s.release()
	}
	return nil
}

func (c *DirectoryCache) start(dir *File, key string, onProgress ProgressFunc) *Session {
	ctx, cancel := context.WithCancel(c.ctx)
	created := c.now()

	s := &Session{
		dir:         dir.VirtualPath,
		key:         key,
		cache:       c,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		notifyEvery: c.notifyEvery,
		created:     created,
	}
	s.expiresAt.Store(created.Add(c.ttl).UnixNano())
	s.subscribe(onProgress)

	c.metrics.sessionOpened()
	c.logger.Debug("enumeration started", zap.String("dir", key))

	go s.run()
	return s
}

// Session is one background enumeration of a directory. Entries are
// appended in the order the provider yields them and never retracted.
type Session struct {
	dir   VirtualPath
	key   string
	cache *DirectoryCache

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	notifyEvery int
	created     time.Time
	expiresAt   atomic.Int64
	stale       atomic.Bool

	mu        sync.RWMutex
	entries   []*File
	state     SessionState
	err       error
	listeners []ProgressFunc
}

// Dir returns the directory being enumerated.
func (s *Session) Dir() VirtualPath { return s.dir }

// Snapshot returns a copy of every entry discovered so far and the session
// state. It never blocks on the background task. A closed session has no
// entries.
func (s *Session) Snapshot() ([]*File, SessionState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries), s.state
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the terminal error of a finished enumeration, or nil.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Done is closed when the background task has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// AwaitComplete blocks until the enumeration finishes and returns the full
// listing or the terminal error. Every caller sees the same error.
func (s *Session) AwaitComplete(ctx context.Context) ([]*File, error) {
	select {
	case <-s.done:
	case <-s.ctx.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	entries, state := s.Snapshot()
	if s.closed.Load() || state != StateFresh {
		return nil, wrapPathError("enumerate", s.dir.String(), ErrAlreadyClosed)
	}
	if err := s.Err(); err != nil {
		return entries, err
	}
	return entries, nil
}

// Close cancels the background task, drops the collected entries and
// removes the session from its cache. It returns without waiting for the
// task; the provider enumeration handle is released by the task itself.
func (s *Session) Close() error {
	if s.release() {
		s.cache.forget(s)
	}
	return nil
}

// release cancels the task and drops the entries. It reports whether this
// call closed the session.
func (s *Session) release() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.cancel()

	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return true
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Expired reports whether the session is older than its TTL or was marked
// expired.
func (s *Session) Expired() bool {
	return s.stale.Load() || s.cache.now().After(time.Unix(0, s.expiresAt.Load()))
}

// MarkExpired makes the session stale immediately.
func (s *Session) MarkExpired() {
	s.expiresAt.Store(s.cache.now().UnixNano())
	s.stale.Store(true)
}

// ExpiresAt returns the time after which the session is stale.
func (s *Session) ExpiresAt() time.Time {
	return time.Unix(0, s.expiresAt.Load())
}

func (s *Session) subscribe(fn ProgressFunc) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) notify() {
	s.mu.RLock()
	listeners := s.listeners[:len(s.listeners):len(s.listeners)]
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (s *Session) push(f *File) {
	s.mu.Lock()
	if !s.closed.Load() {
		s.entries = append(s.entries, f)
	}
	s.mu.Unlock()
}

func (s *Session) run() {
	defer close(s.done)

	count, err := s.enumerate()
	if s.ctx.Err() != nil {
		// Cancelled sessions never become FRESH.
		s.finish(count, nil, false)
		return
	}
	s.finish(count, err, true)
	s.notify()
}

// enumerate drains the provider enumeration into the session, checking for
// cancellation before every fetch and discarding anything fetched after it.
func (s *Session) enumerate() (int, error) {
	c := s.cache
	if s.ctx.Err() != nil {
		return 0, nil
	}

	en, err := c.provider.FindFirst(s.ctx, s.key)
	if err != nil {
		return 0, wrapPathError("enumerate", s.dir.String(), convertError(err))
	}
	defer en.Close()

	count := 0
	for {
		if s.ctx.Err() != nil {
			return count, nil
		}

		e, err := en.Next(s.ctx)
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			if s.ctx.Err() != nil {
				return count, nil
			}
			return count, wrapPathError("enumerate", s.dir.String(), convertError(err))
		}
		if s.ctx.Err() != nil {
			return count, nil
		}

		s.push(c.fsys.childFromEntry(s.dir, e))
		c.metrics.entryEnumerated()
		count++

		if s.notifyEvery > 0 && count%s.notifyEvery == 0 {
			s.notify()
		}
	}
}

func (s *Session) finish(count int, err error, fresh bool) {
	s.mu.Lock()
	s.err = err
	if fresh {
		s.state = StateFresh
	}
	s.mu.Unlock()

	c := s.cache
	d := c.now().Sub(s.created)
	c.metrics.sessionFinished(d, errorCode(err))

	fields := []zap.Field{
		zap.String("dir", s.key),
		zap.Int("entries", count),
		zap.Duration("duration", d),
	}
	switch {
	case err != nil:
		c.logger.Warn("enumeration failed", append(fields, zap.Error(err))...)
	case !fresh:
		c.logger.Debug("enumeration cancelled", fields...)
	default:
		c.logger.Debug("enumeration finished", fields...)
	}
}
