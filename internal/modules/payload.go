package modules

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/otaforge/otapatch/internal/partition"
)

// Payload is an opened module zip. Fragment content is treated as opaque
// bytes; the payload never interprets what it hands out.
type Payload struct {
	path string
	zr   *zip.ReadCloser
}

// OpenPayload opens the module zip at path.
func OpenPayload(path string) (*Payload, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open module payload %s: %w", path, err)
	}
	return &Payload{path: path, zr: zr}, nil
}

// Close releases the underlying zip.
func (p *Payload) Close() error {
	return p.zr.Close()
}

func (p *Payload) open(name string) (io.ReadCloser, error) {
	r, err := p.zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("payload %s: open entry %s: %w", p.path, name, err)
	}
	return r, nil
}

// Fragment reads the named entry fully into memory.
func (p *Payload) Fragment(name string) ([]byte, error) {
	r, err := p.open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("payload %s: read entry %s: %w", p.path, name, err)
	}
	return data, nil
}

// ExtractTo copies the named entry into dest inside the given partition
// handle, creating parent directories as needed.
func (p *Payload) ExtractTo(h partition.Handle, name, dest string) (err error) {
	r, err := p.open(name)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := h.Create(dest)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
	}()

	if _, err = io.Copy(w, r); err != nil {
		return fmt.Errorf("extract %s to %s: %w", name, dest, err)
	}
	return nil
}
