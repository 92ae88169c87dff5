package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Subprocess is the sole production Driver implementation: every method
// shells out to an external container/image CLI (buildah by default).
type Subprocess struct {
	// Tool is the binary name invoked for every operation. Overridable so
	// tests can point at a fake.
	Tool string
	// ReexecPath is the path to this binary, used for the privileged
	// re-exec helpers (internal-container-copy, internal-export,
	// internal-import-tar).
	ReexecPath string
}

// NewSubprocess returns a Subprocess driver that shells out to "buildah",
// re-exec'ing the running binary (os.Executable, falling back to
// os.Args[0]) for privileged helpers.
func NewSubprocess() *Subprocess {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return &Subprocess{Tool: "buildah", ReexecPath: exe}
}

func (s *Subprocess) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.Tool, args...)
	logrus.WithField("argv", append([]string{s.Tool}, args...)).Debug("driver: exec")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		exitCode := 1
		if ee, ok := err.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		return "", &Error{
			Args:     append([]string{s.Tool}, args...),
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (s *Subprocess) FetchImage(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("fetch_image: empty image name")
	}
	if _, err := s.run(ctx, "pull", name); err != nil {
		return "", errors.Wrapf(err, "pulling image %q", name)
	}
	out, err := s.run(ctx, "inspect", "--format", "{{.FromImageDigest}}", name)
	if err != nil {
		return "", errors.Wrapf(err, "inspecting image %q", name)
	}
	dg, err := digest.Parse(out)
	if err != nil {
		return "", errors.Wrapf(err, "parsing digest for image %q", name)
	}
	return dg.String(), nil
}

type imageListEntry struct {
	ID        string            `json:"id"`
	CreatedAt string            `json:"createdat"`
	Labels    map[string]string `json:"labels"`
}

func (s *Subprocess) LookupByLabel(ctx context.Context, key string) (string, bool, error) {
	out, err := s.run(ctx, "images", "--json", "--filter", "label=burt.key="+key)
	if err != nil {
		return "", false, errors.Wrapf(err, "listing images with label burt.key=%s", key)
	}
	if strings.TrimSpace(out) == "" {
		return "", false, nil
	}
	var entries []imageListEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return "", false, errors.Wrap(err, "parsing image list JSON")
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ti, erri := time.Parse(time.RFC3339, entries[i].CreatedAt)
		tj, errj := time.Parse(time.RFC3339, entries[j].CreatedAt)
		if erri != nil || errj != nil {
			return false
		}
		return ti.After(tj)
	})
	return entries[0].ID, true, nil
}

func (s *Subprocess) Create(ctx context.Context, from string) (*Container, error) {
	if from == "" {
		return nil, errors.New("create: empty from reference")
	}
	id, err := s.run(ctx, "from", from)
	if err != nil {
		return nil, errors.Wrapf(err, "creating container from %q", from)
	}
	return &Container{ID: id, d: s}, nil
}

func (s *Subprocess) Run(ctx context.Context, c *Container) CommandBuilder {
	return &subprocessCmd{s: s, ctx: ctx, container: c}
}

type subprocessCmd struct {
	s         *Subprocess
	ctx       context.Context
	container *Container
	args      []string
}

func (b *subprocessCmd) Arg(a string) CommandBuilder {
	b.args = append(b.args, a)
	return b
}

func (b *subprocessCmd) Args(a []string) CommandBuilder {
	b.args = append(b.args, a...)
	return b
}

func (b *subprocessCmd) Status(ctx context.Context) error {
	args := append([]string{"run", "--", b.container.ID}, b.args...)
	if _, err := b.s.run(ctx, args...); err != nil {
		return errors.Wrapf(err, "running %v in container %s", b.args, b.container.ID)
	}
	return nil
}

func (s *Subprocess) SetWorkdir(ctx context.Context, c *Container, path string) error {
	if _, err := s.run(ctx, "config", "--workingdir", path, c.ID); err != nil {
		return errors.Wrapf(err, "setting workdir %q on %s", path, c.ID)
	}
	return nil
}

func (s *Subprocess) Commit(ctx context.Context, c *Container, key string) (string, error) {
	if _, err := s.run(ctx, "config", "--created-by", key, "--label", "burt.key="+key, c.ID); err != nil {
		return "", errors.Wrapf(err, "labeling container %s", c.ID)
	}
	ref, err := s.run(ctx, "commit", c.ID)
	if err != nil {
		return "", errors.Wrapf(err, "committing container %s", c.ID)
	}
	return ref, nil
}

func (s *Subprocess) mount(ctx context.Context, c *Container) (string, error) {
	return s.run(ctx, "mount", c.ID)
}

func (s *Subprocess) unmount(ctx context.Context, c *Container) {
	if _, err := s.run(ctx, "umount", c.ID); err != nil {
		logrus.WithError(err).WithField("container", c.ID).Warn("driver: unmount failed")
	}
}

// CopyToContainer copies srcPath from src into destPath in dest by
// re-exec'ing this binary under the tool's privileged namespace, passing
// both mount points via PREFIX_SRC/PREFIX_DEST.
func (s *Subprocess) CopyToContainer(ctx context.Context, src *Container, srcPath string, dest *Container, destPath string) error {
	srcMount, err := s.mount(ctx, src)
	if err != nil {
		return errors.Wrapf(err, "mounting source container %s", src.ID)
	}
	defer s.unmount(ctx, src)

	destMount, err := s.mount(ctx, dest)
	if err != nil {
		return errors.Wrapf(err, "mounting destination container %s", dest.ID)
	}
	defer s.unmount(ctx, dest)

	cmd := exec.CommandContext(ctx, s.Tool, "unshare", "-m",
		fmt.Sprintf("PREFIX_SRC=%s", srcMount),
		fmt.Sprintf("PREFIX_DEST=%s", destMount),
		"--", s.ReexecPath, "internal-container-copy", srcPath, destPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Args: cmd.Args, ExitCode: exitCodeOf(err), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

// ImportTar re-execs under the tool's privileged namespace, piping r on
// standard input, to unpack a tar stream at dest inside c.
func (s *Subprocess) ImportTar(ctx context.Context, c *Container, r io.Reader, dest string) error {
	mount, err := s.mount(ctx, c)
	if err != nil {
		return errors.Wrapf(err, "mounting container %s", c.ID)
	}
	defer s.unmount(ctx, c)

	cmd := exec.CommandContext(ctx, s.Tool, "unshare", "-m",
		fmt.Sprintf("PREFIX=%s", mount),
		"--", s.ReexecPath, "internal-import-tar", dest)
	cmd.Stdin = r
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Args: cmd.Args, ExitCode: exitCodeOf(err), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil
}

// Export re-execs under the tool's privileged namespace, capturing
// standard output as a tar stream and unpacking it into destHostPath.
func (s *Subprocess) Export(ctx context.Context, c *Container, srcPath, destHostPath string) error {
	mount, err := s.mount(ctx, c)
	if err != nil {
		return errors.Wrapf(err, "mounting container %s", c.ID)
	}
	defer s.unmount(ctx, c)

	if err := os.MkdirAll(destHostPath, 0o755); err != nil {
		return errors.Wrapf(err, "creating export destination %q", destHostPath)
	}

	cmd := exec.CommandContext(ctx, s.Tool, "unshare", "-m",
		fmt.Sprintf("PREFIX=%s", mount),
		"--", s.ReexecPath, "internal-export", srcPath)
	out, err := os.Create(destHostPath + ".tar")
	if err != nil {
		return errors.Wrap(err, "creating export tar spool file")
	}
	defer os.Remove(out.Name())
	defer out.Close()
	cmd.Stdout = out
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &Error{Args: cmd.Args, ExitCode: exitCodeOf(err), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return untarInto(out.Name(), destHostPath)
}

func (s *Subprocess) Remove(ctx context.Context, c *Container) error {
	if c == nil || c.ID == "" {
		return nil
	}
	if _, err := s.run(ctx, "rm", c.ID); err != nil {
		logrus.WithError(err).WithField("container", c.ID).Warn("driver: remove failed")
	}
	return nil
}

func exitCodeOf(err error) int {
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return 1
}
