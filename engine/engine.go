// Package engine implements the build engine: it walks a target's command
// list, renders each command's arguments through the template environment,
// and drives a driver.Driver through a content-addressed build cache.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/burt-build/burt/artifact"
	"github.com/burt-build/burt/burtfile"
	"github.com/burt-build/burt/driver"
	"github.com/burt-build/burt/template"
)

// Engine holds the mutable state for building one target: the current
// container and the ContainerSrc it descends from, a private template
// environment, an artifact store, and a reference to the cache of parsed
// scripts shared across nested FROM +target builds.
type Engine struct {
	Driver driver.Driver
	Cache  *burtfile.Cache
	Env    *template.Env
	Store  *artifact.Store

	container    *driver.Container
	containerSrc *driver.ContainerSrc
	scriptPath   string
}

// New returns an Engine ready to build a target, sharing d and cache with
// any sibling/parent engines.
func New(d driver.Driver, cache *burtfile.Cache, env *template.Env) *Engine {
	return &Engine{
		Driver: d,
		Cache:  cache,
		Env:    env,
		Store:  artifact.NewStore(d),
	}
}

// Container returns the engine's current container, or nil if none has
// been created yet (e.g. a FROM image with no mutating command since).
func (e *Engine) Container() *driver.Container { return e.container }

// ContainerSrc returns the image/key the engine's current container
// descends from.
func (e *Engine) ContainerSrc() *driver.ContainerSrc { return e.containerSrc }

// Close releases the engine's container and artifact store. Safe to call
// even if Build never succeeded.
func (e *Engine) Close() {
	if e.container != nil {
		e.container.Close()
	}
	e.Store.Close()
}

// Build loads path via the shared script cache, looks up target, and runs
// its commands in order. Any command failure aborts the target.
func (e *Engine) Build(ctx context.Context, path, target string) error {
	root, err := e.Cache.Load(path)
	if err != nil {
		return &BuildError{Op: "load " + path, Err: err}
	}
	ts, ok := root.Target(target)
	if !ok {
		return &BuildError{Op: "build " + target, Err: errors.Errorf("no such target %q", target)}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return &BuildError{Op: "build " + target, Err: err}
	}
	e.scriptPath = abs

	for i, cmd := range ts.Commands {
		if err := e.dispatch(ctx, cmd); err != nil {
			return &BuildError{Op: fmt.Sprintf("run command %d (%s) of target %s", i+1, cmd.Tag, target), Err: err}
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, cmd *burtfile.Command) error {
	switch cmd.Tag {
	case burtfile.CmdFrom:
		return e.cmdFrom(ctx, cmd)
	case burtfile.CmdRun:
		return e.cmdRun(ctx, cmd)
	case burtfile.CmdWorkdir:
		return e.cmdWorkdir(ctx, cmd)
	case burtfile.CmdSet:
		return e.cmdSet(cmd)
	case burtfile.CmdCopy:
		return e.cmdCopy(ctx, cmd)
	case burtfile.CmdSaveArtifact:
		return e.cmdSaveArtifact(ctx, cmd)
	default:
		return errors.Errorf("unknown command tag %v", cmd.Tag)
	}
}

func (e *Engine) cmdFrom(ctx context.Context, cmd *burtfile.Command) error {
	if cmd.From.Kind == burtfile.FromImageKind {
		name, err := e.Env.Render(cmd.From.Image)
		if err != nil {
			return errors.Wrap(err, "rendering FROM image")
		}
		digest, err := e.Driver.FetchImage(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "fetching image %q", name)
		}
		if e.container != nil {
			e.container.Close()
			e.container = nil
		}
		e.containerSrc = &driver.ContainerSrc{From: name, Key: "from-" + digest}
		return nil
	}

	ref := cmd.From.Ref
	child := New(e.Driver, e.Cache, template.NewEnv(nil))
	path, targetName, err := e.resolveRef(ref)
	if err != nil {
		return err
	}
	if err := child.Build(ctx, path, targetName); err != nil {
		return err
	}
	e.container = child.container
	e.containerSrc = child.containerSrc
	child.container = nil
	child.Store.Close()
	return nil
}

func (e *Engine) cmdRun(ctx context.Context, cmd *burtfile.Command) error {
	var args []string
	var keyParts []string
	if cmd.RunIsList {
		for _, raw := range cmd.RunList {
			v, err := e.Env.Render(raw)
			if err != nil {
				return errors.Wrap(err, "rendering RUN argument")
			}
			args = append(args, v)
			keyParts = append(keyParts, v)
		}
	} else {
		script, err := e.Env.Render(cmd.RunString)
		if err != nil {
			return errors.Wrap(err, "rendering RUN script")
		}
		args = []string{"/bin/sh", "-c", script}
		keyParts = args
	}
	key := "cmd:" + strings.Join(keyParts, "\x00")
	return e.trackChanges(ctx, key, func(ctx context.Context, c *driver.Container) error {
		return e.Driver.Run(ctx, c).Args(args).Status(ctx)
	})
}

func (e *Engine) cmdWorkdir(ctx context.Context, cmd *burtfile.Command) error {
	path, err := e.Env.Render(cmd.WorkdirPath)
	if err != nil {
		return errors.Wrap(err, "rendering WORKDIR path")
	}
	key := "workdir:" + path
	return e.trackChanges(ctx, key, func(ctx context.Context, c *driver.Container) error {
		return e.Driver.SetWorkdir(ctx, c, path)
	})
}

func (e *Engine) cmdSet(cmd *burtfile.Command) error {
	if cmd.SetDefault && e.Env.IsSet(cmd.SetName) {
		return nil
	}
	if !cmd.SetHasValue {
		e.Env.Set(cmd.SetName, template.Undefined())
		return nil
	}
	v, err := e.Env.Render(cmd.SetValue)
	if err != nil {
		return errors.Wrapf(err, "rendering value for %s", cmd.SetName)
	}
	e.Env.Set(cmd.SetName, template.String(v))
	return nil
}

func (e *Engine) cmdSaveArtifact(ctx context.Context, cmd *burtfile.Command) error {
	c, err := e.ensureContainer(ctx)
	if err != nil {
		return err
	}
	src, err := e.Env.Render(cmd.SaveSrc)
	if err != nil {
		return errors.Wrap(err, "rendering SAVE ARTIFACT src")
	}
	dest := "/"
	if cmd.SaveHasDest {
		dest, err = e.Env.Render(cmd.SaveDest)
		if err != nil {
			return errors.Wrap(err, "rendering SAVE ARTIFACT dest")
		}
	}
	if err := e.Store.Save(ctx, c, src, dest); err != nil {
		return errors.Wrap(err, "saving artifact")
	}
	return nil
}

// ensureContainer creates a container from containerSrc.From if one
// doesn't already exist (e.g. a FROM image with no mutating command yet).
func (e *Engine) ensureContainer(ctx context.Context) (*driver.Container, error) {
	if e.container != nil {
		return e.container, nil
	}
	if e.containerSrc == nil {
		return nil, errors.New("no FROM has been evaluated yet")
	}
	c, err := e.Driver.Create(ctx, e.containerSrc.From)
	if err != nil {
		return nil, errors.Wrapf(err, "creating container from %q", e.containerSrc.From)
	}
	e.container = c
	return c, nil
}

// resolveRef resolves a TargetRef to an absolute script path and a target
// name, relative to the script currently being built.
func (e *Engine) resolveRef(ref *burtfile.TargetRef) (string, string, error) {
	targetName, err := e.Env.Render(ref.Target)
	if err != nil {
		return "", "", errors.Wrap(err, "rendering target reference name")
	}
	if ref.Path == "" {
		return e.scriptPath, targetName, nil
	}
	path, err := e.Env.Render(ref.Path)
	if err != nil {
		return "", "", errors.Wrap(err, "rendering target reference path")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(e.scriptPath), path)
	}
	return path, targetName, nil
}
