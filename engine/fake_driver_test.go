package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/burt-build/burt/driver"
)

// fakeDriver is a minimal in-memory driver.Driver used to exercise the
// engine's dispatch and cache-keyed mutation logic without a real
// container tool.
type fakeDriver struct {
	nextID       int
	containers   map[string]*fakeContainer
	imageWorkdir map[string]string // image ref -> workdir baked in by a prior commit
	labels       map[string]string // burt.key -> image ref
	createFrom   []string          // records every `from` passed to Create, in order
	commits      int
}

type fakeContainer struct {
	from    string
	workdir string
	ran     [][]string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		containers:   map[string]*fakeContainer{},
		imageWorkdir: map[string]string{},
		labels:       map[string]string{},
	}
}

func (f *fakeDriver) FetchImage(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty image name")
	}
	return "sha256:" + name, nil
}

func (f *fakeDriver) LookupByLabel(ctx context.Context, key string) (string, bool, error) {
	ref, ok := f.labels[key]
	return ref, ok, nil
}

func (f *fakeDriver) Create(ctx context.Context, from string) (*driver.Container, error) {
	if from == "" {
		return nil, fmt.Errorf("empty from")
	}
	f.createFrom = append(f.createFrom, from)
	f.nextID++
	id := fmt.Sprintf("c%d", f.nextID)
	f.containers[id] = &fakeContainer{from: from, workdir: f.imageWorkdir[from]}
	return &driver.Container{ID: id}, nil
}

type fakeCmd struct {
	f    *fakeDriver
	c    *driver.Container
	args []string
}

func (b *fakeCmd) Arg(s string) driver.CommandBuilder   { b.args = append(b.args, s); return b }
func (b *fakeCmd) Args(a []string) driver.CommandBuilder { b.args = append(b.args, a...); return b }
func (b *fakeCmd) Status(ctx context.Context) error {
	b.f.containers[b.c.ID].ran = append(b.f.containers[b.c.ID].ran, b.args)
	return nil
}

func (f *fakeDriver) Run(ctx context.Context, c *driver.Container) driver.CommandBuilder {
	return &fakeCmd{f: f, c: c}
}

func (f *fakeDriver) SetWorkdir(ctx context.Context, c *driver.Container, path string) error {
	f.containers[c.ID].workdir = path
	return nil
}

func (f *fakeDriver) Commit(ctx context.Context, c *driver.Container, key string) (string, error) {
	f.commits++
	ref := "image:" + key
	f.labels[key] = ref
	if wd := f.containers[c.ID].workdir; wd != "" {
		f.imageWorkdir[ref] = wd
	}
	return ref, nil
}

func (f *fakeDriver) CopyToContainer(ctx context.Context, src *driver.Container, srcPath string, dest *driver.Container, destPath string) error {
	return nil
}

func (f *fakeDriver) ImportTar(ctx context.Context, c *driver.Container, r io.Reader, dest string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (f *fakeDriver) Export(ctx context.Context, c *driver.Container, srcPath, destHostPath string) error {
	return nil
}

func (f *fakeDriver) Remove(ctx context.Context, c *driver.Container) error {
	delete(f.containers, c.ID)
	return nil
}

var _ driver.Driver = (*fakeDriver)(nil)
