package partition

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

// Handle is the borrowed filesystem view of one partition's mutable root.
// Callers hold a Handle only for the duration of one operation and never
// retain it; the image pipeline owns the underlying tree.
//
// Implementations: DirHandle (production and tests, over any afero.Fs).
type Handle interface {
	// Exists reports whether path refers to an existing file.
	Exists(path string) (bool, error)

	// OpenRead opens path for reading.
	OpenRead(path string) (io.ReadCloser, error)

	// OpenAppend opens path for appending. The file must already exist;
	// existing bytes are never truncated.
	OpenAppend(path string) (io.WriteCloser, error)

	// Create creates or truncates path for writing, making parent
	// directories as needed.
	Create(path string) (io.WriteCloser, error)
}

// Compile-time check.
var _ Handle = (*DirHandle)(nil)

// DirHandle implements Handle over an afero filesystem rooted at one
// partition's mutable tree.
type DirHandle struct {
	fs afero.Fs
}

// NewDirHandle wraps an afero filesystem as a partition handle.
func NewDirHandle(fs afero.Fs) *DirHandle {
	return &DirHandle{fs: fs}
}

// NewOsDirHandle creates a handle over the real filesystem, confined to root.
func NewOsDirHandle(root string) *DirHandle {
	return &DirHandle{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// Exists reports whether name refers to an existing file.
func (h *DirHandle) Exists(name string) (bool, error) {
	_, err := h.fs.Stat(name)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, err)
}

// OpenRead opens name for reading.
func (h *DirHandle) OpenRead(name string) (io.ReadCloser, error) {
	return h.fs.Open(name)
}

// OpenAppend opens name for appending without truncation. The open call is
// the authoritative existence check: a file that vanished since a prior
// Exists surfaces here as an error, not a skip.
func (h *DirHandle) OpenAppend(name string) (io.WriteCloser, error) {
	return h.fs.OpenFile(name, os.O_WRONLY|os.O_APPEND, 0o644)
}

// Create creates or truncates name, making parent directories first.
func (h *DirHandle) Create(name string) (io.WriteCloser, error) {
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := h.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return h.fs.Create(name)
}
