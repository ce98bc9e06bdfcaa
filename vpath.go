package vpathfs

import (
	"hash/fnv"
	"net/url"
	"strings"
)

// URI schemes produced by VirtualPath.URI.
const (
	SchemeFile = "file"
	SchemeCIFS = "cifs"
	SchemeSMB  = "smb"
)

// VirtualPath is an immutable normalized pathname. Two paths are equal iff
// their normalized strings are equal byte for byte.
type VirtualPath struct {
	raw    string
	prefix int
	remote bool
}

// NewVirtualPath builds a path from a raw string. Trailing separators beyond
// the root prefix are dropped.
func (r *Resolver) NewVirtualPath(p string) VirtualPath {
	raw := trimTrailing(r.norm.normalize(p))
	return VirtualPath{
		raw:    raw,
		prefix: prefixLength(raw),
		remote: r.norm.isRemote(raw),
	}
}

// NewChildVirtualPath resolves child against parent.
func (r *Resolver) NewChildVirtualPath(parent VirtualPath, child string) VirtualPath {
	return r.NewVirtualPath(r.norm.resolve(parent.raw, child))
}

// VirtualPathFromURI parses a URI produced by VirtualPath.URI, or any form
// accepted by ParseURI. User info in the URI is ignored here.
func (r *Resolver) VirtualPathFromURI(uri string) (VirtualPath, error) {
	pu, err := ParseURI(uri)
	if err != nil {
		return VirtualPath{}, err
	}
	return r.NewVirtualPath(pu.Path), nil
}

// Name returns the last element, or "" for a root.
func (p VirtualPath) Name() string {
	return baseName(p.raw)
}

// Parent returns the parent path. A path directly below a root has that root
// as parent; roots and single relative segments have none.
func (p VirtualPath) Parent() (VirtualPath, bool) {
	if len(p.raw) <= p.prefix {
		return VirtualPath{}, false
	}

	idx := strings.LastIndexByte(p.raw, Separator)
	if idx < p.prefix {
		if p.prefix == 0 {
			return VirtualPath{}, false
		}
		return p.with(p.raw[:p.prefix]), true
	}
	return p.with(p.raw[:idx]), true
}

// with derives a path sharing p's classification.
func (p VirtualPath) with(raw string) VirtualPath {
	return VirtualPath{raw: raw, prefix: prefixLength(raw), remote: p.remote}
}

// Path returns the normalized pathname.
func (p VirtualPath) Path() string { return p.raw }

func (p VirtualPath) String() string { return p.raw }

// IsEmpty reports whether p is the "no path" sentinel.
func (p VirtualPath) IsEmpty() bool { return p.raw == "" }

// IsAbsolute reports whether p carries a root prefix.
func (p VirtualPath) IsAbsolute() bool { return p.prefix > 0 }

// IsRemote reports whether p addresses the network.
func (p VirtualPath) IsRemote() bool { return p.remote }

// PrefixLength returns the length of the root prefix.
func (p VirtualPath) PrefixLength() int { return p.prefix }

// IsRoot reports whether p is nothing but a root prefix.
func (p VirtualPath) IsRoot() bool {
	return p.prefix > 0 && len(p.raw) == p.prefix
}

// Equal reports ordinal equality of the normalized strings.
func (p VirtualPath) Equal(o VirtualPath) bool { return p.raw == o.raw }

// Compare orders paths by ordinal string comparison.
func (p VirtualPath) Compare(o VirtualPath) int { return strings.Compare(p.raw, o.raw) }

// Hash is consistent with Equal.
func (p VirtualPath) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.raw))
	return h.Sum64()
}

// URI renders p as a cifs: or file: URI. The path is slash separated and
// percent-escaped; relative paths stay relative.
func (p VirtualPath) URI() string {
	scheme := SchemeFile
	if p.remote {
		scheme = SchemeCIFS
	}
	u := url.URL{Path: strings.ReplaceAll(p.raw, sep, "/")}
	return scheme + ":" + escapeAuthority(u.EscapedPath())
}

// authorityEscaper hides the user info and port delimiters of a server name
// so they read back as part of the host.
var authorityEscaper = strings.NewReplacer("@", "%40", ":", "%3A")

// escapeAuthority escapes the server segment of a "//server/..." path.
func escapeAuthority(escaped string) string {
	if !strings.HasPrefix(escaped, "//") {
		return escaped
	}
	end := strings.IndexByte(escaped[2:], '/')
	if end < 0 {
		end = len(escaped)
	} else {
		end += 2
	}
	return "//" + authorityEscaper.Replace(escaped[2:end]) + escaped[end:]
}
