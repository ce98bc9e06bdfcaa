package vpathfs

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// NetworkLocation is a remote path split into its browse levels. Empty
// fields are absent levels.
type NetworkLocation struct {
	Workgroup string
	Server    string
	Share     string
	Path      string // share-relative, separator-joined
}

// Kind reports which browse level the location names.
func (l NetworkLocation) Kind() Attributes {
	switch {
	case l.Path != "":
		return 0
	case l.Share != "":
		return AttrShare
	case l.Server != "":
		return AttrServer
	case l.Workgroup != "":
		return AttrWorkgroup
	}
	return 0
}

// IsRoot reports whether the location is the network root itself.
func (l NetworkLocation) IsRoot() bool {
	return l == NetworkLocation{}
}

func (l NetworkLocation) String() string {
	var b strings.Builder
	b.WriteString(NetworkRoot)
	for i, f := range []string{l.Workgroup, l.Server, l.Share, l.Path} {
		if f == "" {
			continue
		}
		if i > 0 && b.Len() > len(NetworkRoot) {
			b.WriteString(sep)
		}
		b.WriteString(f)
	}
	return b.String()
}

// workgroupProbe answers whether a workgroup of the given name exists.
type workgroupProbe func(ctx context.Context, name string) (bool, error)

// disambiguate classifies the fields of a remote path. The first field is a
// workgroup if the probe says one of that name exists, otherwise a server.
// The probe is consulted at most once, and a probe error counts as "no such
// workgroup" so that browsing never aborts on a flaky lookup.
func disambiguate(ctx context.Context, fields []string, probe workgroupProbe, logger *zap.Logger, metrics *Metrics) NetworkLocation {
	if len(fields) == 0 {
		return NetworkLocation{}
	}

	isWorkgroup, err := probe(ctx, fields[0])
	switch {
	case err != nil:
		logger.Warn("workgroup probe failed, assuming server",
			zap.String("name", fields[0]),
			zap.Error(err))
		isWorkgroup = false
		metrics.workgroupProbe("error")
	case isWorkgroup:
		metrics.workgroupProbe("workgroup")
	default:
		metrics.workgroupProbe("server")
	}

	var loc NetworkLocation
	rest := fields
	if isWorkgroup {
		loc.Workgroup = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 {
		loc.Server = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 {
		loc.Share = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 {
		loc.Path = toSMBPath(rest)
	}
	return loc
}

// Resolver composes, canonicalizes and classifies pathnames.
type Resolver struct {
	norm       *pathNormalizer
	provider   NativeProvider
	logger     *zap.Logger
	metrics    *Metrics
	workingDir atomic.Pointer[string]
}

// NewResolver creates a resolver over the given alias table and provider.
// The provider may be nil for pure string work; Canonicalize and Classify
// then skip their round trips.
func NewResolver(aliases *AliasTable, provider NativeProvider, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		norm:     newPathNormalizer(aliases),
		provider: provider,
		logger:   logger.Named("resolver"),
	}
	wd := LocalRoot
	r.workingDir.Store(&wd)
	return r
}

// Normalize converts every separator to the canonical one.
func (r *Resolver) Normalize(p string) string {
	return r.norm.normalize(p)
}

// Resolve joins child onto parent.
func (r *Resolver) Resolve(parent, child string) string {
	return r.norm.resolve(parent, child)
}

// PrefixLength returns the length of the root prefix of p.
func (r *Resolver) PrefixLength(p string) int {
	return prefixLength(r.norm.normalize(p))
}

// Expand substitutes a registered alias prefix.
func (r *Resolver) Expand(p string) string {
	return r.norm.expand(r.norm.normalize(p))
}

// IsRemoteFile reports whether p addresses the network, directly or through
// an alias.
func (r *Resolver) IsRemoteFile(p string) bool {
	return r.norm.isRemote(p)
}

// SetWorkingDir sets the directory relative paths resolve against.
func (r *Resolver) SetWorkingDir(dir string) error {
	d := r.norm.normalize(dir)
	if !isAbs(d) {
		return fmt.Errorf("working directory %q: %w", dir, ErrInvalidArgument)
	}
	r.workingDir.Store(&d)
	return nil
}

// WorkingDir returns the directory relative paths resolve against.
func (r *Resolver) WorkingDir() string {
	return *r.workingDir.Load()
}

// ResolveAbsolute makes p absolute against the working directory.
func (r *Resolver) ResolveAbsolute(p string) string {
	np := r.norm.normalize(p)
	if isAbs(np) {
		return np
	}
	return r.norm.resolve(r.WorkingDir(), np)
}

// nativePath returns the absolute, alias-free form handed to providers.
func (r *Resolver) nativePath(p string) string {
	return clean(r.Expand(r.ResolveAbsolute(p)))
}

// Canonicalize returns the unique form of p accepted by the provider:
// aliases substituted, relative paths made absolute, redundant separators
// and dot segments removed.
func (r *Resolver) Canonicalize(ctx context.Context, p string) (string, error) {
	if err := validatePath(p); err != nil {
		return "", wrapPathError("canonicalize", p, err)
	}

	c := r.nativePath(p)
	if r.provider == nil {
		return c, nil
	}

	out, err := r.provider.Canonicalize(ctx, c)
	if err != nil {
		return "", wrapPathError("canonicalize", p, convertError(err))
	}
	return out, nil
}

// Classify splits a remote path into workgroup, server, share and path.
func (r *Resolver) Classify(ctx context.Context, p string) (NetworkLocation, error) {
	if err := validatePath(p); err != nil {
		return NetworkLocation{}, wrapPathError("classify", p, err)
	}

	expanded := r.nativePath(p)
	if !strings.HasPrefix(expanded, NetworkRoot) {
		return NetworkLocation{}, wrapPathError("classify", p, ErrInvalidArgument)
	}

	probe := func(ctx context.Context, name string) (bool, error) {
		if r.provider == nil {
			return false, nil
		}
		return r.provider.WorkgroupExists(ctx, name)
	}
	return disambiguate(ctx, networkFields(expanded), probe, r.logger, r.metrics), nil
}

// ListRoots returns the network root followed by every local root.
func (r *Resolver) ListRoots(ctx context.Context) ([]string, error) {
	if r.provider == nil {
		return []string{NetworkRoot, LocalRoot}, nil
	}
	roots, err := r.provider.Roots(ctx)
	if err != nil {
		return nil, convertError(err)
	}
	return roots, nil
}
