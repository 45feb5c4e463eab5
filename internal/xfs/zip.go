package xfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize bounds a single extracted file.
const maxEntrySize = 256 << 20

// Unzip extracts a zip archive held in memory into dest, replacing dest if
// it already exists. Entries escaping dest are rejected. When every entry
// shares a single top-level directory that directory is stripped.
func Unzip(data []byte, dest string) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	prefix := commonRoot(reader.File)

	tmp := dest + ".partial"
	if err := RemoveAll(tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	for _, f := range reader.File {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == "" {
			continue
		}

		target := filepath.Join(tmp, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(tmp)+string(os.PathSeparator)) {
			_ = RemoveAll(tmp)
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				_ = RemoveAll(tmp)
				return err
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			_ = RemoveAll(tmp)
			return err
		}
	}

	if err := RemoveAll(dest); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	return os.Rename(tmp, dest)
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > maxEntrySize {
		return fmt.Errorf("zip entry %s exceeds %d bytes", f.Name, maxEntrySize)
	}

	return nil
}

// commonRoot returns "dir/" when all entries live under one top-level directory.
func commonRoot(files []*zip.File) string {
	root := ""
	for _, f := range files {
		i := strings.Index(f.Name, "/")
		if i < 0 {
			return ""
		}
		dir := f.Name[:i+1]
		if root == "" {
			root = dir
		} else if root != dir {
			return ""
		}
	}
	return root
}
