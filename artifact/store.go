// Package artifact implements the lazily-created scratch container that
// SAVE ARTIFACT accumulates files into over the course of a build.
package artifact

import (
	"context"

	"github.com/pkg/errors"

	"github.com/burt-build/burt/driver"
)

// Store is a single scratch container that SAVE ARTIFACT commands copy
// into. It is created on first use and lives for the lifetime of one
// engine.
type Store struct {
	d         driver.Driver
	container *driver.Container
}

// NewStore returns an empty artifact store bound to d. No container is
// created until the first Save.
func NewStore(d driver.Driver) *Store {
	return &Store{d: d}
}

func (s *Store) ensure(ctx context.Context) (*driver.Container, error) {
	if s.container != nil {
		return s.container, nil
	}
	c, err := s.d.Create(ctx, driver.Scratch)
	if err != nil {
		return nil, errors.Wrap(err, "creating artifact container")
	}
	s.container = c
	return c, nil
}

// Save copies src from sourceContainer into dest inside the artifact
// store's container, creating that container on first call.
func (s *Store) Save(ctx context.Context, sourceContainer *driver.Container, src, dest string) error {
	c, err := s.ensure(ctx)
	if err != nil {
		return err
	}
	if err := s.d.CopyToContainer(ctx, sourceContainer, src, c, dest); err != nil {
		return errors.Wrapf(err, "saving artifact %q to %q", src, dest)
	}
	return nil
}

// Export writes every artifact saved so far to hostDir. If nothing was
// ever saved, it is a no-op.
func (s *Store) Export(ctx context.Context, hostDir string) error {
	if s.container == nil {
		return nil
	}
	if err := s.d.Export(ctx, s.container, "/", hostDir); err != nil {
		return errors.Wrapf(err, "exporting artifacts to %q", hostDir)
	}
	return nil
}

// Close releases the underlying container, if one was created.
func (s *Store) Close() {
	if s.container != nil {
		s.container.Close()
	}
}
