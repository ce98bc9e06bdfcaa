package vpathfs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// routedProvider presents local and network storage as one tree. Paths
// reaching it are already alias-expanded, so routing is a prefix test.
type routedProvider struct {
	local  NativeProvider
	remote NativeProvider
}

var _ NativeProvider = (*routedProvider)(nil)

func newRoutedProvider(local, remote NativeProvider) *routedProvider {
	return &routedProvider{local: local, remote: remote}
}

func (r *routedProvider) route(path string) (NativeProvider, error) {
	p := r.local
	if strings.HasPrefix(path, NetworkRoot) {
		p = r.remote
	}
	if p == nil {
		return nil, fmt.Errorf("no provider for %q: %w", path, ErrNotImplemented)
	}
	return p, nil
}

func (r *routedProvider) Attributes(ctx context.Context, path string) (Attributes, error) {
	p, err := r.route(path)
	if err != nil {
		return 0, err
	}
	return p.Attributes(ctx, path)
}

func (r *routedProvider) CheckAccess(ctx context.Context, path string, access Access) (bool, error) {
	p, err := r.route(path)
	if err != nil {
		return false, err
	}
	return p.CheckAccess(ctx, path, access)
}

func (r *routedProvider) SetPermission(ctx context.Context, path string, access Access, enable, ownerOnly bool) error {
	p, err := r.route(path)
	if err != nil {
		return err
	}
	return p.SetPermission(ctx, path, access, enable, ownerOnly)
}

func (r *routedProvider) ModTime(ctx context.Context, path string) (time.Time, error) {
	p, err := r.route(path)
	if err != nil {
		return time.Time{}, err
	}
	return p.ModTime(ctx, path)
}

func (r *routedProvider) SetModTime(ctx context.Context, path string, t time.Time) error {
	p, err := r.route(path)
	if err != nil {
		return err
	}
	return p.SetModTime(ctx, path, t)
}

func (r *routedProvider) Length(ctx context.Context, path string) (int64, error) {
	p, err := r.route(path)
	if err != nil {
		return 0, err
	}
	return p.Length(ctx, path)
}

func (r *routedProvider) CreateExclusive(ctx context.Context, path string) (bool, error) {
	p, err := r.route(path)
	if err != nil {
		return false, err
	}
	return p.CreateExclusive(ctx, path)
}

func (r *routedProvider) Delete(ctx context.Context, path string) error {
	p, err := r.route(path)
	if err != nil {
		return err
	}
	return p.Delete(ctx, path)
}

func (r *routedProvider) List(ctx context.Context, path string) ([]DirEntry, error) {
	p, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return p.List(ctx, path)
}

func (r *routedProvider) Mkdir(ctx context.Context, path string) error {
	p, err := r.route(path)
	if err != nil {
		return err
	}
	return p.Mkdir(ctx, path)
}

// Rename fails when the two paths live with different providers.
func (r *routedProvider) Rename(ctx context.Context, from, to string) error {
	src, err := r.route(from)
	if err != nil {
		return err
	}
	dst, err := r.route(to)
	if err != nil {
		return err
	}
	if src != dst {
		return fmt.Errorf("rename between local and network storage: %w", ErrInvalidArgument)
	}
	return src.Rename(ctx, from, to)
}

func (r *routedProvider) SetReadOnly(ctx context.Context, path string) error {
	p, err := r.route(path)
	if err != nil {
		return err
	}
	return p.SetReadOnly(ctx, path)
}

// Roots returns the network root followed by the local roots.
func (r *routedProvider) Roots(ctx context.Context) ([]string, error) {
	var roots []string
	seen := make(map[string]bool)
	for _, p := range []NativeProvider{r.remote, r.local} {
		if p == nil {
			continue
		}
		rs, err := p.Roots(ctx)
		if err != nil {
			return nil, err
		}
		for _, root := range rs {
			if !seen[root] {
				seen[root] = true
				roots = append(roots, root)
			}
		}
	}
	return roots, nil
}

func (r *routedProvider) Space(ctx context.Context, path string, kind SpaceKind) (int64, error) {
	p, err := r.route(path)
	if err != nil {
		return 0, err
	}
	return p.Space(ctx, path, kind)
}

func (r *routedProvider) Open(ctx context.Context, path string, mode OpenMode) (FileHandle, error) {
	p, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return p.Open(ctx, path, mode)
}

func (r *routedProvider) FindFirst(ctx context.Context, path string) (Enumerator, error) {
	p, err := r.route(path)
	if err != nil {
		return nil, err
	}
	return p.FindFirst(ctx, path)
}

func (r *routedProvider) Canonicalize(ctx context.Context, path string) (string, error) {
	p, err := r.route(path)
	if err != nil {
		return "", err
	}
	return p.Canonicalize(ctx, path)
}

// WorkgroupExists asks the network provider; without one nothing exists.
func (r *routedProvider) WorkgroupExists(ctx context.Context, name string) (bool, error) {
	if r.remote == nil {
		return false, nil
	}
	return r.remote.WorkgroupExists(ctx, name)
}
