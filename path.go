package vpathfs

import (
	"strings"
)

const (
	// Separator is the canonical separator of normalized pathnames.
	Separator = '\\'

	// NetworkRoot is the empty-authority path under which every workgroup,
	// server and share is addressed.
	NetworkRoot = `\\`

	// LocalRoot is the root of the local filesystem.
	LocalRoot = `\`

	altSeparator    = '/'
	aliasTerminator = ':'
	sep             = string(Separator)

	// maxAliasDepth bounds alias-to-alias substitution chains.
	maxAliasDepth = 8
)

// pathNormalizer turns raw pathnames into the canonical internal form and
// performs the alias substitution that precedes provider dispatch.
type pathNormalizer struct {
	aliases *AliasTable
}

// newPathNormalizer creates a new path normalizer.
func newPathNormalizer(aliases *AliasTable) *pathNormalizer {
	if aliases == nil {
		aliases = NewAliasTable()
	}
	return &pathNormalizer{aliases: aliases}
}

// normalize converts every accepted separator to the canonical one. No other
// structure is touched; "." and ".." survive until canonicalization.
func (pn *pathNormalizer) normalize(p string) string {
	if p == "" {
		return ""
	}
	return strings.ReplaceAll(p, string(altSeparator), sep)
}

// aliasPrefix reports the alias or device name heading p, i.e. a first
// segment terminated by ':'. The colon must end the segment.
func aliasPrefix(p string) (string, bool) {
	i := strings.IndexByte(p, aliasTerminator)
	if i <= 0 {
		return "", false
	}
	if j := strings.IndexByte(p, Separator); j >= 0 && j < i {
		return "", false
	}
	if i != len(p)-1 && p[i+1] != Separator {
		return "", false
	}
	return p[:i], true
}

// prefixLength returns the length of the non-decomposable root of a
// normalized path: "NAME:" (plus a following separator), the network marker
// or a single leading separator.
func prefixLength(p string) int {
	if name, ok := aliasPrefix(p); ok {
		n := len(name) + 1
		if n < len(p) && p[n] == Separator {
			n++
		}
		return n
	}
	if strings.HasPrefix(p, NetworkRoot) {
		return len(NetworkRoot)
	}
	if strings.HasPrefix(p, LocalRoot) {
		return len(LocalRoot)
	}
	return 0
}

// resolve composes a parent and child. An empty parent yields the normalized
// child; a child carrying its own device, alias or network prefix stands
// alone.
func (pn *pathNormalizer) resolve(parent, child string) string {
	nc := pn.normalize(child)
	if parent == "" {
		return nc
	}
	np := pn.normalize(parent)

	if _, ok := aliasPrefix(nc); ok {
		return nc
	}
	if strings.HasPrefix(nc, NetworkRoot) {
		return nc
	}

	rel := strings.TrimLeft(nc, sep)
	base := trimTrailing(np)
	if rel == "" {
		return base
	}
	if strings.HasSuffix(base, sep) || base == "" {
		return base + rel
	}
	return base + sep + rel
}

// trimTrailing strips trailing separators without eating into the prefix.
func trimTrailing(p string) string {
	pl := prefixLength(p)
	for len(p) > pl && p[len(p)-1] == Separator {
		p = p[:len(p)-1]
	}
	return p
}

// clean collapses redundant separators and resolves "." and ".." below the
// prefix. The prefix itself is never consumed.
func clean(p string) string {
	pl := prefixLength(p)
	prefix, rest := p[:pl], p[pl:]

	var out []string
	for _, seg := range strings.Split(rest, sep) {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if pl == 0 {
				out = append(out, seg)
			}
		default:
			out = append(out, seg)
		}
	}

	return prefix + strings.Join(out, sep)
}

// expand substitutes a registered alias prefix with its destination. Paths
// without a registered alias pass through unchanged.
func (pn *pathNormalizer) expand(p string) string {
	for depth := 0; depth < maxAliasDepth; depth++ {
		name, ok := aliasPrefix(p)
		if !ok {
			return p
		}
		alias, found := pn.aliases.Lookup(name)
		if !found {
			return p
		}
		rest := strings.TrimLeft(p[len(name)+1:], sep)
		p = pn.resolve(alias.Destination, rest)
	}
	return p
}

// isRemote classifies a raw pathname as a network path, after alias
// substitution.
func (pn *pathNormalizer) isRemote(p string) bool {
	return strings.HasPrefix(pn.expand(pn.normalize(p)), NetworkRoot)
}

// isAbs returns true if the normalized path has a root prefix.
func isAbs(p string) bool {
	return prefixLength(p) > 0
}

// validatePath rejects pathnames that no provider can represent.
func validatePath(p string) error {
	if strings.ContainsRune(p, 0) {
		return ErrInvalidArgument
	}
	return nil
}

// networkFields splits a remote path into the fields after the network
// marker.
func networkFields(p string) []string {
	rest := strings.TrimPrefix(p, NetworkRoot)
	var fields []string
	for _, f := range strings.Split(rest, sep) {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// toSlashPath converts a normalized local path to the slash form used by
// absfs filesystems.
func toSlashPath(p string) string {
	p = strings.ReplaceAll(p, sep, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// toSMBPath joins share-relative fields into the form go-smb2 expects:
// backslashes and no leading separator.
func toSMBPath(fields []string) string {
	return strings.Join(fields, sep)
}

// baseName returns the last element of a normalized path.
func baseName(p string) string {
	p = trimTrailing(p)
	pl := prefixLength(p)
	if len(p) <= pl {
		return ""
	}
	return p[strings.LastIndexByte(p, Separator)+1:]
}
