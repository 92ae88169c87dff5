package engine

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/burt-build/burt/burtfile"
	"github.com/burt-build/burt/driver"
	"github.com/burt-build/burt/template"
)

func (e *Engine) cmdCopy(ctx context.Context, cmd *burtfile.Command) error {
	dest, err := e.Env.Render(cmd.CopyDest)
	if err != nil {
		return errors.Wrap(err, "rendering COPY dest")
	}

	var cleanups []func()
	defer func() {
		for _, f := range cleanups {
			f()
		}
	}()

	tmp, err := os.CreateTemp("", "burt-copy-*.tar")
	if err != nil {
		return errors.Wrap(err, "creating COPY tar spool file")
	}
	cleanups = append(cleanups, func() { os.Remove(tmp.Name()) })
	defer tmp.Close()

	hasher := sha256.New()
	tw := tar.NewWriter(io.MultiWriter(tmp, hasher))

	for _, src := range cmd.CopySrc {
		hostPath, archiveName, cleanup, err := e.resolveCopySource(ctx, src)
		if err != nil {
			return err
		}
		if cleanup != nil {
			cleanups = append(cleanups, cleanup)
		}
		if err := addTree(tw, hostPath, archiveName); err != nil {
			return errors.Wrapf(err, "archiving %q", hostPath)
		}
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "finalizing COPY tar")
	}

	hash := base64.StdEncoding.EncodeToString(hasher.Sum(nil))
	key := "copy-tar:" + hash + ":" + dest

	return e.trackChanges(ctx, key, func(ctx context.Context, c *driver.Container) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "rewinding COPY tar")
		}
		return e.Driver.ImportTar(ctx, c, tmp, dest)
	})
}

// resolveCopySource renders a local-path source, or, for an artifact
// reference, builds the referenced target and exports its artifact store
// to a temporary host directory. The returned cleanup must be called once
// the caller is done reading hostPath.
//
// archiveName is the tar entry name addTree should file the source under.
// It is derived from the source's own identity (the rendered local path, or
// the artifact sub-path named in the script) rather than from hostPath
// itself, since hostPath for an artifact source lives under a randomly
// named temp directory — using filepath.Base(hostPath) there would make
// the resulting tar, and so the COPY cache key, different on every run.
func (e *Engine) resolveCopySource(ctx context.Context, src burtfile.CopySource) (hostPath, archiveName string, cleanup func(), err error) {
	if src.Kind == burtfile.CopyLocalPath {
		p, err := e.Env.Render(src.Path)
		if err != nil {
			return "", "", nil, errors.Wrap(err, "rendering COPY source path")
		}
		return p, filepath.Base(p), nil, nil
	}

	child := New(e.Driver, e.Cache, template.NewEnv(nil))
	path, targetName, err := e.resolveRef(src.Ref)
	if err != nil {
		return "", "", nil, err
	}
	if err := child.Build(ctx, path, targetName); err != nil {
		return "", "", nil, err
	}
	defer child.Close()

	tmpDir, err := os.MkdirTemp("", "burt-artifact-*")
	if err != nil {
		return "", "", nil, errors.Wrap(err, "creating artifact export directory")
	}
	cleanup = func() { os.RemoveAll(tmpDir) }

	sub := src.Ref.Artifact
	if sub != "" {
		sub, err = e.Env.Render(sub)
		if err != nil {
			cleanup()
			return "", "", nil, errors.Wrap(err, "rendering artifact sub-path")
		}
	}
	if err := child.Store.Export(ctx, tmpDir); err != nil {
		cleanup()
		return "", "", nil, errors.Wrap(err, "exporting artifact")
	}

	if sub == "" || sub == "/" {
		// No sub-path: the whole artifact store is archived with its
		// contents flattened at the tar root, so the export directory's
		// own random name never becomes part of an entry name.
		return tmpDir, "", cleanup, nil
	}
	return filepath.Join(tmpDir, sub), filepath.Base(sub), cleanup, nil
}

// addTree appends path (file or directory, recursively) to tw under name.
// An empty name flattens path's own contents at the tar root instead of
// nesting them under a named entry — used when the source has no stable
// name of its own (see resolveCopySource). Header timestamps are zeroed so
// the archive's bytes, and so the COPY cache key, depend only on path's
// content and the chosen name, never on when or where it was produced.
func addTree(tw *tar.Writer, path, name string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		if rel == "." {
			if name == "" {
				// Root of a flattened tree: no entry of its own, just
				// descend into its children.
				return nil
			}
			rel = ""
		}
		entryName := filepath.Join(name, rel)

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(p)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = entryName
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.ModTime = time.Unix(0, 0)
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
}
