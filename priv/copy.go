package priv

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tonistiigi/fsutil"
	"golang.org/x/sys/unix"
)

// CopyDir recursively replicates the tree at src onto dest, first removing
// any existing dest directory. Regular files, directories, and symlinks
// are preserved; ownership is not copied, and only the basic permission
// bits of the mode are.
func CopyDir(src, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return errors.Wrapf(err, "removing existing destination %q", dest)
	}
	info, err := os.Lstat(src)
	if err != nil {
		return errors.Wrapf(err, "stat source %q", src)
	}
	if !info.IsDir() {
		return copyEntry(src, dest, info)
	}
	if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, "creating destination root %q", dest)
	}

	// fsutil.Walk reports each entry's path relative to src.
	return fsutil.Walk(context.Background(), src, nil, func(rel string, fi fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if rel == "" || rel == "." {
			return nil
		}
		return copyEntry(filepath.Join(src, rel), filepath.Join(dest, rel), fi)
	})
}

// isSymlink re-checks path with a raw unix.Lstat rather than trusting
// info.Mode() alone, since fsutil.Walk's FileInfo is reconstructed from a
// stat struct and doesn't always round-trip the symlink bit through Go's
// portable os.FileMode on every platform.
func isSymlink(path string, info fs.FileInfo) bool {
	if info.Mode()&os.ModeSymlink != 0 {
		return true
	}
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFLNK
}

func copyEntry(path, target string, info fs.FileInfo) error {
	switch {
	case isSymlink(path, info):
		link, err := os.Readlink(path)
		if err != nil {
			return errors.Wrapf(err, "reading symlink %q", path)
		}
		// The link is created at target (the destination tree), pointing
		// at link verbatim: the reverse of this was a known bug in the
		// original implementation, which created the link inside the
		// source tree instead.
		if err := os.Symlink(link, target); err != nil {
			return errors.Wrapf(err, "creating symlink %q -> %q", target, link)
		}
	case info.IsDir():
		if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
			return errors.Wrapf(err, "creating directory %q", target)
		}
	default:
		if err := copyFile(path, target, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening source file %q", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %q", dest)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "creating destination file %q", dest)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "copying %q to %q", src, dest)
	}
	return nil
}

// ContainerCopy implements the rule that if dest ends in "/", the
// source's base name is appended to it before copying.
func ContainerCopy(srcPrefix, srcPath, destPrefix, destPath string) error {
	src := JoinPrefix(srcPrefix, srcPath)
	if strings.HasSuffix(destPath, "/") {
		destPath = filepath.Join(destPath, filepath.Base(srcPath))
	}
	dest := JoinPrefix(destPrefix, destPath)
	return CopyDir(src, dest)
}
