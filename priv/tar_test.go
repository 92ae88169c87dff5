package priv

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExportImportTar_RoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a", "b", "c.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := ExportTar(src, &buf); err != nil {
		t.Fatalf("ExportTar: %v", err)
	}

	dest := t.TempDir()
	if err := ImportTar(&buf, dest); err != nil {
		t.Fatalf("ImportTar: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dest, "a", "b", "c.txt"))
	if err != nil {
		t.Fatalf("reading round-tripped file: %v", err)
	}
	if diff := cmp.Diff("payload", string(got)); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}
}
