package vpathfs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sessionPool keeps one authenticated session per server and the shares
// mounted through it. Sessions are shared between concurrent callers and
// closed after sitting unused for the idle timeout.
type sessionPool struct {
	factory     SessionFactory
	creds       *CredentialStore
	idleTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*pooledSession
	closed   bool
}

// pooledSession wraps an SMB session with metadata.
type pooledSession struct {
	server    string
	session   SMBSession
	createdAt time.Time
	lastUsed  time.Time
	refs      int

	mu     sync.Mutex
	shares map[string]SMBShare
}

// newSessionPool creates a new session pool.
func newSessionPool(factory SessionFactory, creds *CredentialStore, idleTimeout time.Duration, logger *zap.Logger) *sessionPool {
	return &sessionPool{
		factory:     factory,
		creds:       creds,
		idleTimeout: idleTimeout,
		logger:      logger,
		sessions:    make(map[string]*pooledSession),
	}
}

func poolKey(server string) string {
	return strings.ToUpper(server)
}

// get acquires the session for server, dialing one if needed. Every
// successful get must be paired with put.
func (p *sessionPool) get(ctx context.Context, server string) (*pooledSession, error) {
	key := poolKey(server)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if ps, ok := p.sessions[key]; ok {
		ps.refs++
		ps.lastUsed = time.Now()
		p.mu.Unlock()
		return ps, nil
	}
	p.mu.Unlock()

	cred, _ := p.creds.Lookup(server)
	session, err := p.factory.NewSession(ctx, server, cred)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		go session.Logoff()
		return nil, ErrConnectionClosed
	}

	// Another caller may have won the race to dial
	if ps, ok := p.sessions[key]; ok {
		go session.Logoff()
		ps.refs++
		ps.lastUsed = time.Now()
		return ps, nil
	}

	now := time.Now()
	ps := &pooledSession{
		server:    server,
		session:   session,
		createdAt: now,
		lastUsed:  now,
		refs:      1,
		shares:    make(map[string]SMBShare),
	}
	p.sessions[key] = ps
	p.logger.Debug("session opened", zap.String("server", server))
	return ps, nil
}

// put releases a session acquired with get.
func (p *sessionPool) put(ps *pooledSession) {
	if ps == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ps.refs--
	ps.lastUsed = time.Now()

	if p.closed && ps.refs == 0 {
		go ps.close()
	}
}

// discard drops a session whose connection failed.
func (p *sessionPool) discard(ps *pooledSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey(ps.server)
	if p.sessions[key] == ps {
		delete(p.sessions, key)
		go ps.close()
	}
}

// evict forgets the session for server so the next get authenticates anew.
func (p *sessionPool) evict(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := poolKey(server)
	if ps, ok := p.sessions[key]; ok {
		delete(p.sessions, key)
		go ps.close()
	}
}

// evictAll forgets every session.
func (p *sessionPool) evictAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, ps := range p.sessions {
		delete(p.sessions, key)
		go ps.close()
	}
}

// mount returns the share mounted through this session, mounting it on
// first use.
func (ps *pooledSession) mount(share string) (SMBShare, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	key := strings.ToUpper(share)
	if sh, ok := ps.shares[key]; ok {
		return sh, nil
	}
	if ps.session == nil {
		return nil, ErrConnectionClosed
	}

	sh, err := ps.session.Mount(share)
	if err != nil {
		return nil, err
	}
	ps.shares[key] = sh
	return sh, nil
}

// close unmounts every share and logs the session off.
func (ps *pooledSession) close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	for key, sh := range ps.shares {
		sh.Umount()
		delete(ps.shares, key)
	}

	if ps.session != nil {
		ps.session.Logoff()
		ps.session = nil
	}
}

// Close closes all sessions in the pool.
func (p *sessionPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	for key, ps := range p.sessions {
		if ps.refs == 0 {
			go ps.close()
		}
		delete(p.sessions, key)
	}

	return nil
}

// cleanup removes expired idle sessions.
func (p *sessionPool) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	now := time.Now()
	for key, ps := range p.sessions {
		if ps.refs == 0 && now.Sub(ps.lastUsed) > p.idleTimeout {
			p.logger.Debug("closing idle session", zap.String("server", ps.server))
			delete(p.sessions, key)
			go ps.close()
		}
	}
}

// size returns the number of pooled sessions.
func (p *sessionPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// startCleanup starts a background goroutine to clean up expired sessions.
func (p *sessionPool) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(p.idleTimeout / 2)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
