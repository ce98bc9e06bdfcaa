package vpathfs

import (
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// DefaultCredentialKey selects the credential used for servers without an
// explicit entry.
const DefaultCredentialKey = "*"

// Credential authenticates a session against one server. The password is
// never retained; only its NT hash is.
type Credential struct {
	Username string
	Domain   string
	NTHash   []byte
}

// Guest reports whether the credential carries no user.
func (c Credential) Guest() bool {
	return c.Username == ""
}

// NTHash computes the NT one-way function of password: MD4 over its
// UTF-16LE encoding.
func NTHash(password string) []byte {
	units := utf16.Encode([]rune(password))
	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	h := md4.New()
	h.Write(buf)
	return h.Sum(nil)
}

// NewCredential builds a credential from a clear-text password.
func NewCredential(username, domain, password string) Credential {
	// Accept DOMAIN\user the way connection strings spell it
	if d, u, ok := strings.Cut(username, `\`); ok && domain == "" {
		domain, username = d, u
	}
	c := Credential{Username: username, Domain: domain}
	if password != "" {
		c.NTHash = NTHash(password)
	}
	return c
}

// CredentialStore is the process-wide credential registry keyed by server.
type CredentialStore struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[string]Credential]
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	s := &CredentialStore{}
	empty := map[string]Credential{}
	s.entries.Store(&empty)
	return s
}

// Set registers the credential for server, replacing any previous one.
func (s *CredentialStore) Set(server string, c Credential) {
	if server == "" {
		server = DefaultCredentialKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.entries.Load()
	next := make(map[string]Credential, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[strings.ToUpper(server)] = c
	s.entries.Store(&next)
}

// Remove forgets the credential for server.
func (s *CredentialStore) Remove(server string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.entries.Load()
	next := make(map[string]Credential, len(old))
	for k, v := range old {
		if k != strings.ToUpper(server) {
			next[k] = v
		}
	}
	s.entries.Store(&next)
}

// Lookup returns the credential for server, falling back to the default
// entry.
func (s *CredentialStore) Lookup(server string) (Credential, bool) {
	m := *s.entries.Load()
	if c, ok := m[strings.ToUpper(server)]; ok {
		return c, true
	}
	c, ok := m[DefaultCredentialKey]
	return c, ok
}
