// Package pathresolve implements spec.md §4.5: walking a path element by
// element from either the root inode or a caller-supplied working-directory
// inode, returning either the target inode (Namei) or the parent inode plus
// the final element (NameiParent).
package pathresolve

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-tinyfs/internal/directory"
	"github.com/deploymenttheory/go-tinyfs/internal/inode"
	"github.com/deploymenttheory/go-tinyfs/internal/types"
)

// Resolver walks paths against one inode cache/directory layer.
type Resolver struct {
	cache *inode.Cache
	dir   *directory.Directory
}

// New returns a Resolver bound to the given cache and directory layer.
func New(c *inode.Cache, d *directory.Directory) *Resolver {
	return &Resolver{cache: c, dir: d}
}

// Skipelem strips leading slashes, copies the next slash-delimited element
// (rejecting one longer than DirSiz rather than silently truncating it —
// SPEC_FULL.md's resolution of spec.md §9's skipelem defect), and strips
// trailing slashes from the remainder. An empty elem with a nil error means
// no element remained.
func Skipelem(path string) (elem, rest string, err error) {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	if len(path) == 0 {
		return "", "", nil
	}

	i := 0
	for i < len(path) && path[i] != '/' {
		i++
	}
	elem = path[:i]
	if len(elem) > types.DirSiz {
		return "", "", fmt.Errorf("pathresolve: path element %q exceeds %d bytes", elem, types.DirSiz)
	}

	rest = path[i:]
	for len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	return elem, rest, nil
}

// namex is the shared walk behind Namei/NameiParent (spec.md §4.5).
func (r *Resolver) namex(path string, wantParent bool, cwd *inode.Inode) (*inode.Inode, string, error) {
	var cur *inode.Inode
	var err error

	if strings.HasPrefix(path, "/") {
		cur, err = r.cache.Iget(types.RootDev, types.RootInum)
		if err != nil {
			return nil, "", err
		}
	} else {
		if cwd == nil {
			return nil, "", fmt.Errorf("namex: no working directory to resolve relative path %q", path)
		}
		cur = r.cache.Idup(cwd)
	}

	rest := path
	for {
		elem, next, serr := Skipelem(rest)
		if serr != nil {
			r.cache.Iput(cur)
			return nil, "", serr
		}
		if elem == "" {
			if wantParent {
				r.cache.Iput(cur)
				return nil, "", fmt.Errorf("namex: path %q has no final element", path)
			}
			return cur, "", nil
		}

		if err := r.cache.Ilock(cur); err != nil {
			r.cache.Iput(cur)
			return nil, "", err
		}
		if cur.Type != types.TypeDir {
			r.cache.Iunlockput(cur)
			return nil, "", fmt.Errorf("namex: %q is not a directory", elem)
		}

		if wantParent && next == "" {
			r.cache.Iunlock(cur)
			return cur, elem, nil
		}

		nextIp, _, lerr := r.dir.Lookup(cur, elem)
		if lerr != nil {
			r.cache.Iunlockput(cur)
			return nil, "", lerr
		}
		if nextIp == nil {
			r.cache.Iunlockput(cur)
			return nil, "", fmt.Errorf("namex: %q: no such file or directory", elem)
		}

		r.cache.Iunlockput(cur)
		cur = nextIp
		rest = next
	}
}

// Namei resolves path to its target inode, unlocked. Relative paths resolve
// against cwd.
func (r *Resolver) Namei(path string, cwd *inode.Inode) (*inode.Inode, error) {
	ip, _, err := r.namex(path, false, cwd)
	return ip, err
}

// NameiParent resolves path to its parent directory inode (unlocked) and
// returns the final path element's name. Fails if path names the root with
// no further element (spec.md §4.5 edge case).
func (r *Resolver) NameiParent(path string, cwd *inode.Inode) (*inode.Inode, string, error) {
	return r.namex(path, true, cwd)
}
