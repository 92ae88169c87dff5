// Command burt builds container images from build.burt scripts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/burt-build/burt/burtfile"
	"github.com/burt-build/burt/driver"
	"github.com/burt-build/burt/engine"
	"github.com/burt-build/burt/priv"
	"github.com/burt-build/burt/template"
)

// defineFlagValue implements flag.Value for repeatable -D/--define
// KEY[=VALUE] flags; a missing "=" sets an empty string, per spec.md §6.
type defineFlagValue map[string]string

func (m defineFlagValue) String() string {
	var b strings.Builder
	for k, v := range m {
		fmt.Fprintf(&b, "%s=%s ", k, v)
	}
	return b.String()
}

func (m defineFlagValue) Set(value string) error {
	k, v, _ := strings.Cut(value, "=")
	m[k] = v
	return nil
}

func main() {
	logrus.SetOutput(os.Stderr)

	file := flag.String("f", "build.burt", "path to the build script")
	flag.StringVar(file, "file", "build.burt", "path to the build script")
	artifact := flag.Bool("a", false, "export SAVE ARTIFACT output to the current directory on completion")
	flag.BoolVar(artifact, "artifact", false, "export SAVE ARTIFACT output to the current directory on completion")
	defines := make(defineFlagValue)
	flag.Var(defines, "D", "define a template variable KEY[=VALUE] (repeatable)")
	flag.Var(defines, "define", "define a template variable KEY[=VALUE] (repeatable)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	args := flag.Args()
	var sub string
	var rest []string
	switch {
	case len(args) == 0:
		sub, rest = "build", nil
	case strings.HasPrefix(args[0], "+"):
		sub, rest = "build", args
	default:
		sub, rest = args[0], args[1:]
	}

	var err error
	switch sub {
	case "build":
		err = runBuild(ctx, *file, *artifact, defines, rest)
	case "internal-container-copy":
		err = runInternalContainerCopy(rest)
	case "internal-export":
		err = runInternalExport(rest)
	case "internal-import-tar":
		err = runInternalImportTar(rest)
	default:
		err = errors.Errorf("Unknown target %q", sub)
	}

	if err == nil {
		return
	}
	printError(err)
	os.Exit(exitCode(err))
}

func runBuild(ctx context.Context, file string, exportArtifact bool, defines defineFlagValue, targets []string) error {
	if len(targets) == 0 {
		return errors.New("Unknown target: no target given")
	}
	for _, t := range targets {
		if !strings.HasPrefix(t, "+") {
			return errors.Errorf("Unknown target %q", t)
		}
	}

	d := driver.NewSubprocess()
	cache := burtfile.NewCache()

	for _, t := range targets {
		env := template.NewEnv(nil)
		for k, v := range defines {
			env.Set(k, template.String(v))
		}

		e := engine.New(d, cache, env)
		name := strings.TrimPrefix(t, "+")
		logrus.WithField("target", name).Info("burt: building")
		if err := e.Build(ctx, file, name); err != nil {
			e.Close()
			return err
		}
		if exportArtifact {
			if err := e.Store.Export(ctx, "."); err != nil {
				e.Close()
				return err
			}
		}
		e.Close()
	}
	return nil
}

func runInternalContainerCopy(args []string) error {
	if len(args) != 2 {
		return errors.New("internal-container-copy: expected <src> <dest>")
	}
	return priv.RunContainerCopy(args[0], args[1])
}

func runInternalExport(args []string) error {
	if len(args) != 1 {
		return errors.New("internal-export: expected <path>")
	}
	return priv.RunExport(args[0], os.Stdout)
}

func runInternalImportTar(args []string) error {
	if len(args) != 1 {
		return errors.New("internal-import-tar: expected <path>")
	}
	return priv.RunImportTar(os.Stdin, args[0])
}

// printError prints a ParseError as "line:col: msg", anything else as the
// wrapped "Failed to ..." chain, coloring the prefix the way lazydocker
// colorizes its own command echo.
func printError(err error) {
	var perr *burtfile.ParseError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("%d:%d:", perr.Line, perr.Col), perr.Msg)
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("Failed:"), err.Error())
}

// exitCode returns the driver's captured exit code when err wraps one,
// else 1, per spec.md §6/§7.
func exitCode(err error) int {
	var derr *driver.Error
	if errors.As(err, &derr) && derr.ExitCode != 0 {
		return derr.ExitCode
	}
	return 1
}
