// Package image unpacks a firmware image container into per-partition
// filesystem trees and repacks the patched trees into a new container.
// It owns the partition trees; other components borrow handles from the
// map it returns.
//
// Container layout: a zip whose entries live under images/<partition>/...,
// one subtree per partition that the source image ships.
package image

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/otaforge/otapatch/internal/partition"
)

// entryRoot is the top-level directory inside the container.
const entryRoot = "images"

// Unpacked is the result of opening a container: per-partition handles
// rooted at workDir/<partition>, and the registry of what was found.
type Unpacked struct {
	Handles  map[partition.Name]partition.Handle
	Registry *partition.Registry

	// roots maps each unpacked partition to its tree on disk, used by Repack.
	roots map[partition.Name]string
}

// Unpack extracts the wanted partitions from the container at zipPath into
// workDir, one subtree per partition, in parallel. Partitions in wanted but
// absent from the container are left out of the registry; a container
// without a system partition is rejected outright.
func Unpack(ctx context.Context, zipPath, workDir string, wanted []partition.Name, log *zap.Logger) (*Unpacked, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open image container %s: %w", zipPath, err)
	}
	defer zr.Close()

	byPartition := groupEntries(&zr.Reader)

	if _, ok := byPartition[partition.System]; !ok {
		return nil, fmt.Errorf("image container %s has no %s partition", zipPath, partition.System)
	}

	wantedSet := make(map[partition.Name]bool, len(wanted))
	for _, name := range wanted {
		wantedSet[name] = true
	}
	wantedSet[partition.System] = true

	found := make([]partition.Name, 0, len(wanted))
	for _, name := range partition.All() {
		if wantedSet[name] && len(byPartition[name]) > 0 {
			found = append(found, name)
		}
	}

	up := &Unpacked{
		Handles: make(map[partition.Name]partition.Handle, len(found)),
		roots:   make(map[partition.Name]string, len(found)),
	}
	var secondaries []partition.Name
	for _, name := range found {
		root := filepath.Join(workDir, string(name))
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create partition tree %s: %w", root, err)
		}
		up.Handles[name] = partition.NewOsDirHandle(root)
		up.roots[name] = root
		if name != partition.System {
			secondaries = append(secondaries, name)
		}
	}
	up.Registry = partition.NewRegistry(secondaries...)

	// Partition trees are independent, so extract them in parallel. The
	// first failure cancels the derived context and the run aborts.
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range found {
		name := name
		handle := up.Handles[name]
		entries := byPartition[name]
		log.Info("unpacking partition",
			zap.String("partition", string(name)),
			zap.Int("entries", len(entries)))

		g.Go(func() error {
			for _, entry := range entries {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := extractEntry(entry, name, handle); err != nil {
					return fmt.Errorf("unpack %s: %w", name, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return up, nil
}

// groupEntries buckets container file entries by partition, preserving
// archive order within each bucket.
func groupEntries(zr *zip.Reader) map[partition.Name][]*zip.File {
	byPartition := make(map[partition.Name][]*zip.File)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rest, ok := strings.CutPrefix(f.Name, entryRoot+"/")
		if !ok {
			continue
		}
		name, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		byPartition[partition.Name(name)] = append(byPartition[partition.Name(name)], f)
	}
	return byPartition
}

// extractEntry writes one container entry into the partition tree. The
// container's images/<partition>/ namespace is dropped so the stored path
// keeps only the partition-directory prefix the merge engine resolves
// against. Paths escaping the tree are rejected.
func extractEntry(entry *zip.File, name partition.Name, h partition.Handle) error {
	dest := path.Clean(strings.TrimPrefix(entry.Name, entryRoot+"/"+string(name)+"/"))
	if dest == ".." || strings.HasPrefix(dest, "../") || path.IsAbs(dest) {
		return fmt.Errorf("entry %s escapes partition tree", entry.Name)
	}

	r, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", entry.Name, err)
	}
	defer r.Close()

	w, err := h.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("extract %s: %w", dest, err)
	}
	return w.Close()
}

// Repack writes the patched partition trees back into a fresh container at
// zipPath. Partitions and entries are emitted in deterministic order so
// identical inputs produce identical containers.
func (u *Unpacked) Repack(zipPath string, log *zap.Logger) (err error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("create image container %s: %w", zipPath, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", zipPath, cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, name := range partition.All() {
		root, ok := u.roots[name]
		if !ok {
			continue
		}
		log.Info("repacking partition", zap.String("partition", string(name)))
		if err := addTree(zw, name, root); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize image container %s: %w", zipPath, err)
	}
	return nil
}

// addTree adds every file under root to the archive as
// images/<partition>/..., in lexical path order, restoring the container
// namespace that extractEntry dropped.
func addTree(zw *zip.Writer, name partition.Name, root string) error {
	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk partition tree %s: %w", root, err)
	}
	sort.Strings(files)

	for _, file := range files {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		entryName := path.Join(entryRoot, string(name), filepath.ToSlash(rel))
		w, err := zw.Create(entryName)
		if err != nil {
			return fmt.Errorf("create entry %s: %w", entryName, err)
		}
		r, err := os.Open(file)
		if err != nil {
			return fmt.Errorf("open %s: %w", file, err)
		}
		if _, err := io.Copy(w, r); err != nil {
			r.Close()
			return fmt.Errorf("repack %s: %w", file, err)
		}
		if err := r.Close(); err != nil {
			return err
		}
	}
	return nil
}
