package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/burt-build/burt/burtfile"
	"github.com/burt-build/burt/template"
)

func writeScript(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "build.burt")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestBuild_RunThenCacheHit(t *testing.T) {
	script := writeScript(t, "TARGET t:\n FROM busybox\n RUN echo hi\n")
	d := newFakeDriver()

	ctx := context.Background()
	cache := burtfile.NewCache()

	e1 := newTestEngine(d, cache)
	if err := e1.Build(ctx, script, "t"); err != nil {
		t.Fatalf("first build: %v", err)
	}
	e1.Close()

	if d.commits != 1 {
		t.Fatalf("expected exactly 1 commit after first build, got %d", d.commits)
	}
	firstFrom := append([]string(nil), d.createFrom...)

	e2 := newTestEngine(d, cache)
	if err := e2.Build(ctx, script, "t"); err != nil {
		t.Fatalf("second build: %v", err)
	}
	e2.Close()

	// The second build's RUN must create its container from the image
	// committed by the first build's RUN, not from the raw "busybox" from,
	// since the chained key is identical and LookupByLabel hits.
	secondFrom := d.createFrom[len(firstFrom):]
	if len(secondFrom) != 1 {
		t.Fatalf("expected exactly one Create call on the second build, got %v", secondFrom)
	}
	wantKey := chainKey("from-sha256:busybox", "cmd:"+strings.Join([]string{"/bin/sh", "-c", "echo hi"}, "\x00"))
	if secondFrom[0] != "image:"+wantKey {
		t.Fatalf("expected second build to start from the cached image, got %q", secondFrom[0])
	}
}

func TestBuild_RunListPreservesArgv(t *testing.T) {
	script := writeScript(t, `TARGET t:
 FROM busybox
 RUN ["echo","a b"]
`)
	d := newFakeDriver()
	e := newTestEngine(d, burtfile.NewCache())
	if err := e.Build(context.Background(), script, "t"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	var allRan [][]string
	for _, c := range d.containers {
		allRan = append(allRan, c.ran...)
	}
	if len(allRan) != 1 {
		t.Fatalf("expected exactly one RUN invocation, got %v", allRan)
	}
	want := []string{"echo", "a b"}
	if diff := cmp.Diff(want, allRan[0]); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ArgDefineOverride(t *testing.T) {
	script := writeScript(t, "TARGET t:\n ARG X=default\n FROM busybox\n RUN echo {{X}}\n")
	d := newFakeDriver()
	env := template.NewEnv(map[string]string{"X": "hello"})
	e := New(d, burtfile.NewCache(), env)
	if err := e.Build(context.Background(), script, "t"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	var allRan [][]string
	for _, c := range d.containers {
		allRan = append(allRan, c.ran...)
	}
	if len(allRan) != 1 || len(allRan[0]) == 0 {
		t.Fatalf("expected exactly one non-empty RUN invocation, got %v", allRan)
	}
	got := allRan[0][len(allRan[0])-1]
	if got != "echo hello" {
		t.Fatalf("expected ARG default to be overridden by -D, got %q", got)
	}
}

func TestBuild_WorkdirObservedByRun(t *testing.T) {
	script := writeScript(t, "TARGET t:\n FROM busybox\n WORKDIR /tmp\n RUN pwd\n")
	d := newFakeDriver()
	e := newTestEngine(d, burtfile.NewCache())
	if err := e.Build(context.Background(), script, "t"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	c := d.containers[e.Container().ID]
	if c.workdir != "/tmp" {
		t.Fatalf("expected workdir /tmp on the final container, got %q", c.workdir)
	}
}

func TestBuild_SaveArtifactAndFromTarget(t *testing.T) {
	script := writeScript(t, `TARGET a:
 FROM busybox
 SAVE ARTIFACT /etc/hostname
TARGET b:
 FROM +a
 RUN cat /etc/hostname
`)
	d := newFakeDriver()
	e := newTestEngine(d, burtfile.NewCache())
	if err := e.Build(context.Background(), script, "b"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()

	if e.Container() == nil {
		t.Fatal("expected a container to exist after the RUN in target b")
	}
}

func TestBuild_NoSuchTarget(t *testing.T) {
	script := writeScript(t, "TARGET t:\n FROM busybox\n")
	d := newFakeDriver()
	e := newTestEngine(d, burtfile.NewCache())
	err := e.Build(context.Background(), script, "nope")
	if err == nil {
		t.Fatal("expected an error for an undefined target")
	}
}

// newTestEngine is a test-local convenience wrapping New with a fresh,
// variable-free template environment.
func newTestEngine(d *fakeDriver, cache *burtfile.Cache) *Engine {
	return New(d, cache, template.NewEnv(nil))
}
