package web

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ErrOutsideFolder is returned when a requested path escapes its entry
// folder or does not name a regular file.
var ErrOutsideFolder = errors.New("path outside entry folder")

// resolveInside returns the real path of rel inside base. rel uses forward
// slashes. Symlinks are resolved before the containment check, so a link
// pointing out of base is rejected.
func resolveInside(base, rel string) (string, error) {
	if rel == "" || strings.ContainsRune(rel, 0) {
		return "", ErrOutsideFolder
	}
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", ErrOutsideFolder
	}
	cleaned := filepath.Clean(rel)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrOutsideFolder
	}

	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutsideFolder, err)
	}
	target, err := filepath.EvalSymlinks(filepath.Join(realBase, cleaned))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutsideFolder, err)
	}

	inside, err := filepath.Rel(realBase, target)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", ErrOutsideFolder
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrOutsideFolder
	}
	return target, nil
}

// writeZip streams the regular files below dir into w as a zip archive.
// Hidden files and directories are skipped; paths in the archive are
// relative to dir and prefixed with its base name.
func writeZip(w io.Writer, dir string) (retErr error) {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	prefix := filepath.Base(dir)

	bw := bufio.NewWriterSize(w, 256<<10)
	zw := zip.NewWriter(bw)
	defer func() {
		if err := zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
		}
		if err := bw.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info for %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = prefix + "/" + filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		f.Close()
		return err
	})
}
