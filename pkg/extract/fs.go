package extract

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
	"golang.org/x/sys/unix"
)

// Filesystem is the set of operations the extractor performs for archive
// entries. Names are entry paths exactly as they appear in the archive.
type Filesystem interface {
	CreateFile(name string, perm fs.FileMode) (io.WriteCloser, error)
	Link(target, name string) error
	Symlink(target, name string) error
	Mkdir(name string, perm fs.FileMode) error
}

type HostFSOptions struct {
	// Root is the directory entry paths are resolved against.
	Root string

	// UnsafePaths resolves entry paths literally, following ".." and
	// absolute paths outside Root.
	UnsafePaths bool

	// MkdirParents creates missing parent directories before each operation.
	MkdirParents bool
}

// HostFS applies entries to the host filesystem below a root directory.
type HostFS struct {
	opts HostFSOptions
}

func NewHostFS(opts HostFSOptions) *HostFS {
	if opts.Root == "" {
		opts.Root = "."
	}
	if abs, err := filepath.Abs(opts.Root); err == nil {
		opts.Root = abs
	}
	return &HostFS{opts: opts}
}

func (h *HostFS) Root() string {
	return h.opts.Root
}

// resolve maps an entry path onto the host. In confined mode the parent
// directory is resolved with SecureJoin so neither ".." nor symlinks already
// on disk can lead outside the root. The final component is left unresolved;
// operations that would follow it must unlink it first.
func (h *HostFS) resolve(name string) (string, error) {
	if h.opts.UnsafePaths {
		if filepath.IsAbs(name) {
			return name, nil
		}
		return filepath.Join(h.opts.Root, name), nil
	}

	dir, base := filepath.Split(filepath.Clean(string(filepath.Separator) + name))
	parent, err := securejoin.SecureJoin(h.opts.Root, dir)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", name, err)
	}
	return filepath.Join(parent, base), nil
}

func (h *HostFS) prepare(name string) (string, error) {
	path, err := h.resolve(name)
	if err != nil {
		return "", err
	}

	if h.opts.MkdirParents {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (h *HostFS) CreateFile(name string, perm fs.FileMode) (io.WriteCloser, error) {
	path, err := h.prepare(name)
	if err != nil {
		return nil, err
	}
	if h.opts.UnsafePaths {
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	}

	if err := unlinkNonDir(path); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|unix.O_NOFOLLOW, perm)
}

// unlinkNonDir removes whatever non-directory sits at path so a new file is
// created in its place instead of writing through a symlink.
func unlinkNonDir(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return nil
	}
	return os.Remove(path)
}

func (h *HostFS) Link(target, name string) error {
	oldPath, err := h.resolve(target)
	if err != nil {
		return err
	}

	newPath, err := h.prepare(name)
	if err != nil {
		return err
	}
	return os.Link(oldPath, newPath)
}

// Symlink stores target verbatim; it is never resolved at creation time.
func (h *HostFS) Symlink(target, name string) error {
	path, err := h.prepare(name)
	if err != nil {
		return err
	}
	return os.Symlink(target, path)
}

// Mkdir treats an already existing directory as success.
func (h *HostFS) Mkdir(name string, perm fs.FileMode) error {
	path, err := h.prepare(name)
	if err != nil {
		return err
	}

	err = os.Mkdir(path, perm)
	if errors.Is(err, fs.ErrExist) {
		if fi, statErr := os.Stat(path); statErr == nil && fi.IsDir() {
			return nil
		}
	}
	return err
}
