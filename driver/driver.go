// Package driver abstracts the external container/image CLI tool that
// actually builds images. Every operation shells out to a subprocess;
// nothing here talks to a daemon or an in-process build graph.
package driver

import (
	"context"
	"io"
)

// Scratch is the sentinel "from" value meaning "start from an empty
// filesystem" rather than any pulled image.
const Scratch = "scratch"

// Container is an opaque handle to a working container created by a
// Driver. Callers must call Close when done; the underlying container is
// deleted best-effort.
type Container struct {
	ID string
	d  Driver
}

// Close deletes the underlying container. Failures are logged by the
// driver, not returned, matching the contract that destruction is
// best-effort.
func (c *Container) Close() {
	if c == nil || c.d == nil {
		return
	}
	c.d.Remove(context.Background(), c)
}

// ContainerSrc names the image a container handle (or the next one to be
// created) descends from, plus the cache key that produced it.
type ContainerSrc struct {
	From string
	Key  string
}

// CommandBuilder accumulates argv for a `run` invocation inside a
// container before executing it.
type CommandBuilder interface {
	Arg(s string) CommandBuilder
	Args(args []string) CommandBuilder
	Status(ctx context.Context) error
}

// Driver is the contract the build engine depends on. Exactly one
// implementation exists in this module (Subprocess), shelling out to a
// configurable external binary; tests substitute a fake.
type Driver interface {
	// FetchImage resolves and pulls name, returning its content digest.
	FetchImage(ctx context.Context, name string) (string, error)

	// LookupByLabel returns the image ref of an image tagged
	// burt.key=key, or ok=false if none exists.
	LookupByLabel(ctx context.Context, key string) (ref string, ok bool, err error)

	// Create instantiates a working container from an image reference or
	// Scratch. It fails fast if from is empty.
	Create(ctx context.Context, from string) (*Container, error)

	// Run returns a CommandBuilder for executing a process inside c.
	Run(ctx context.Context, c *Container) CommandBuilder

	// SetWorkdir configures c's persistent working directory.
	SetWorkdir(ctx context.Context, c *Container, path string) error

	// Commit stamps c with created-by/burt.key=key and captures a new
	// image, returning its reference.
	Commit(ctx context.Context, c *Container, key string) (string, error)

	// CopyToContainer copies srcPath from src into destPath in dest.
	CopyToContainer(ctx context.Context, src *Container, srcPath string, dest *Container, destPath string) error

	// ImportTar unpacks the tar stream r into dest inside c.
	ImportTar(ctx context.Context, c *Container, r io.Reader, dest string) error

	// Export packs srcPath from c into a tar stream and unpacks it at
	// destHostPath on the local filesystem.
	Export(ctx context.Context, c *Container, srcPath, destHostPath string) error

	// Remove deletes c. Called from Container.Close; also safe to call
	// directly.
	Remove(ctx context.Context, c *Container) error
}
