package vpathfs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// AliasType describes what kind of location an alias points at.
type AliasType int

const (
	AliasUnknown AliasType = iota
	AliasFile
	AliasSMB
	AliasBookmark
)

func (t AliasType) String() string {
	switch t {
	case AliasFile:
		return "file"
	case AliasSMB:
		return "smb"
	case AliasBookmark:
		return "bookmark"
	default:
		return "unknown"
	}
}

// ParseAliasType parses the configuration spelling of an alias type.
func ParseAliasType(s string) AliasType {
	switch strings.ToLower(s) {
	case "file", "local":
		return AliasFile
	case "smb", "cifs":
		return AliasSMB
	case "bookmark":
		return AliasBookmark
	default:
		return AliasUnknown
	}
}

// Alias maps a short "NAME:" prefix onto a destination path.
type Alias struct {
	Name        string
	Description string
	Destination string
	Type        AliasType
}

// AliasTable is the process-wide alias registry. Readers get an immutable
// snapshot; writers replace the whole table.
type AliasTable struct {
	mu      sync.Mutex // serializes writers
	entries atomic.Pointer[map[string]Alias]
}

// NewAliasTable creates an empty alias table.
func NewAliasTable() *AliasTable {
	t := &AliasTable{}
	empty := map[string]Alias{}
	t.entries.Store(&empty)
	return t
}

func aliasKey(name string) string {
	return strings.ToUpper(name)
}

// Add registers or replaces an alias.
func (t *AliasTable) Add(a Alias) error {
	if a.Name == "" || strings.ContainsAny(a.Name, `\/:`) {
		return fmt.Errorf("alias %q: %w", a.Name, ErrInvalidArgument)
	}
	if a.Destination == "" {
		return fmt.Errorf("alias %q has no destination: %w", a.Name, ErrInvalidArgument)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.entries.Load()
	next := make(map[string]Alias, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	a.Destination = strings.ReplaceAll(a.Destination, "/", sep)
	next[aliasKey(a.Name)] = a
	t.entries.Store(&next)
	return nil
}

// Remove deletes an alias. Removing an unknown alias is a no-op.
func (t *AliasTable) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old := *t.entries.Load()
	if _, ok := old[aliasKey(name)]; !ok {
		return
	}
	next := make(map[string]Alias, len(old))
	for k, v := range old {
		if k != aliasKey(name) {
			next[k] = v
		}
	}
	t.entries.Store(&next)
}

// Lookup returns the alias registered under name.
func (t *AliasTable) Lookup(name string) (Alias, bool) {
	a, ok := (*t.entries.Load())[aliasKey(name)]
	return a, ok
}

// List returns all aliases ordered by name.
func (t *AliasTable) List() []Alias {
	m := *t.entries.Load()
	out := make([]Alias, 0, len(m))
	for _, a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
