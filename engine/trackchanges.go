package engine

import (
	"context"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/burt-build/burt/driver"
)

// trackChanges implements the cache-keyed mutation protocol shared by
// RUN, WORKDIR, and COPY: derive a chained key from the current
// containerSrc and stepKey, create a fresh container from the image
// previously committed under that key if one exists (otherwise from the
// parent image), apply mutate, and commit on success. A cache hit only
// changes the starting image; create, mutate and commit run either way.
func (e *Engine) trackChanges(ctx context.Context, stepKey string, mutate func(context.Context, *driver.Container) error) error {
	if e.containerSrc == nil {
		return errors.New("no FROM has been evaluated yet")
	}

	chainedKey := chainKey(e.containerSrc.Key, stepKey)

	startFrom := e.containerSrc.From
	if ref, ok, err := e.Driver.LookupByLabel(ctx, chainedKey); err != nil {
		return errors.Wrap(err, "looking up cached image")
	} else if ok {
		startFrom = ref
	}

	c, err := e.Driver.Create(ctx, startFrom)
	if err != nil {
		return errors.Wrapf(err, "creating container from %q", startFrom)
	}

	if prev := e.container; prev != nil {
		prev.Close()
	}
	e.container = c

	if err := mutate(ctx, c); err != nil {
		return err
	}

	image, err := e.Driver.Commit(ctx, c, chainedKey)
	if err != nil {
		return errors.Wrap(err, "committing container")
	}
	e.containerSrc = &driver.ContainerSrc{From: image, Key: chainedKey}
	return nil
}

// chainKey derives "burt-" + base64(sha256(parentKey || 0x00 || stepKey)).
func chainKey(parentKey, stepKey string) string {
	h := sha256.New()
	h.Write([]byte(parentKey))
	h.Write([]byte{0})
	h.Write([]byte(stepKey))
	return "burt-" + base64.StdEncoding.EncodeToString(h.Sum(nil))
}
