package priv

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel != "." {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking %q: %v", root, err)
	}
	sort.Strings(out)
	return out
}

func TestCopyDir_PreservesFilesDirsAndSymlinks(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("sub/file.txt", filepath.Join(src, "link")); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "dest")
	if err := CopyDir(src, dest); err != nil {
		t.Fatalf("CopyDir: %v", err)
	}

	want := []string{"link", "sub", filepath.Join("sub", "file.txt")}
	sort.Strings(want)
	got := listTree(t, dest)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}

	// The symlink must exist in the destination tree (not the source
	// tree) and point at the same target.
	link, err := os.Readlink(filepath.Join(dest, "link"))
	if err != nil {
		t.Fatalf("reading copied symlink: %v", err)
	}
	if link != "sub/file.txt" {
		t.Fatalf("expected copied symlink to point at %q, got %q", "sub/file.txt", link)
	}
	if _, err := os.Lstat(filepath.Join(src, "sub", "link")); !os.IsNotExist(err) {
		t.Fatal("expected no stray symlink to have been created inside the source tree")
	}
}

func TestContainerCopy_TrailingSlashAppendsBaseName(t *testing.T) {
	srcPrefix := t.TempDir()
	destPrefix := t.TempDir()

	if err := os.WriteFile(filepath.Join(srcPrefix, "thing.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ContainerCopy(srcPrefix, "/thing.txt", destPrefix, "/out/"); err != nil {
		t.Fatalf("ContainerCopy: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(destPrefix, "out", "thing.txt"))
	if err != nil {
		t.Fatalf("expected file copied beneath dest/out/thing.txt: %v", err)
	}
	if !bytes.Equal(got, []byte("x")) {
		t.Fatalf("unexpected copied content: %q", got)
	}
}
