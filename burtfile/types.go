// Package burtfile implements the parser and in-memory representation for
// burt build scripts: an indentation-sensitive language of named targets,
// each an ordered list of commands that mutate a container.
package burtfile

import (
	"fmt"
	"strings"
)

// RootSection is the parsed form of an entire build script: a mapping from
// target name to its TargetSection. A duplicate target label is rejected at
// parse time rather than silently overwriting the earlier entry — see
// DESIGN.md for the resolution of this open question.
type RootSection struct {
	order   []string
	Targets map[string]*TargetSection
}

// NewRootSection returns an empty RootSection ready for AddTarget.
func NewRootSection() *RootSection {
	return &RootSection{Targets: map[string]*TargetSection{}}
}

// AddTarget registers a target, preserving the order targets were declared
// in for String(). It returns an error if name is already present.
func (r *RootSection) AddTarget(name string, t *TargetSection) error {
	if _, ok := r.Targets[name]; ok {
		return fmt.Errorf("duplicate target %q", name)
	}
	r.order = append(r.order, name)
	r.Targets[name] = t
	return nil
}

// Target looks up a target by name.
func (r *RootSection) Target(name string) (*TargetSection, bool) {
	t, ok := r.Targets[name]
	return t, ok
}

// String re-emits the script in canonical burt syntax. Re-parsing this
// output is a fixed point of the original AST's target list and command
// contents.
func (r *RootSection) String() string {
	var sb strings.Builder
	for i, name := range r.order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "TARGET %s:\n", name)
		t := r.Targets[name]
		for _, cmd := range t.Commands {
			sb.WriteString("    ")
			sb.WriteString(cmd.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// TargetSection is an ordered sequence of commands.
type TargetSection struct {
	Commands []*Command
}

// CommandTag identifies which variant of Command is populated.
type CommandTag int

const (
	CmdFrom CommandTag = iota
	CmdRun
	CmdWorkdir
	CmdSaveArtifact
	CmdCopy
	CmdSet
)

func (t CommandTag) String() string {
	switch t {
	case CmdFrom:
		return "FROM"
	case CmdRun:
		return "RUN"
	case CmdWorkdir:
		return "WORKDIR"
	case CmdSaveArtifact:
		return "SAVE ARTIFACT"
	case CmdCopy:
		return "COPY"
	case CmdSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// Command is a closed tagged-union over the six command shapes burt
// scripts can contain. Exactly the fields relevant to Tag are populated;
// this mirrors the pack's convention (see Azure/dalec's Source struct,
// whose Cmd/Build pointer fields are mutually exclusive) of representing a
// sum type as one struct with a discriminant rather than an interface with
// dynamic dispatch.
type Command struct {
	Tag CommandTag

	// FROM
	From *FromSrc

	// RUN
	RunList   []string // set when the RUN argument was a bracketed string list
	RunString string   // set when the RUN argument was a command-string (shell script)
	RunIsList bool

	// WORKDIR
	WorkdirPath string

	// SAVE ARTIFACT
	SaveSrc     string
	SaveDest    string // empty means "unset"; engine defaults to "/"
	SaveHasDest bool

	// COPY
	CopySrc  []CopySource
	CopyDest string

	// SET (also covers ARG, which is SET with Default=true)
	SetName     string
	SetValue    string
	SetHasValue bool
	SetDefault  bool
}

// FromKind discriminates FromSrc's two shapes.
type FromKind int

const (
	FromImageKind FromKind = iota
	FromTargetKind
)

// FromSrc is the argument to a FROM command: either a bare image name or a
// reference to another target.
type FromSrc struct {
	Kind  FromKind
	Image string    // set when Kind == FromImageKind
	Ref   *TargetRef // set when Kind == FromTargetKind
}

// CopySourceKind discriminates CopySource's two shapes.
type CopySourceKind int

const (
	CopyLocalPath CopySourceKind = iota
	CopyArtifact
)

// CopySource is one entry in a COPY command's source list.
type CopySource struct {
	Kind CopySourceKind
	Path string     // set when Kind == CopyLocalPath
	Ref  *TargetRef // set when Kind == CopyArtifact
}

// TargetRef identifies another target, optionally in a different script
// file, optionally with an artifact sub-path (when used as a COPY source).
//
//	[<path>]+<target>[/<artifact-subpath>]
type TargetRef struct {
	Path     string // empty means "same script"
	Target   string
	Artifact string // empty means "no artifact sub-path"
}

func (r *TargetRef) String() string {
	var sb strings.Builder
	sb.WriteString(r.Path)
	sb.WriteByte('+')
	sb.WriteString(r.Target)
	if r.Artifact != "" {
		sb.WriteByte('/')
		sb.WriteString(r.Artifact)
	}
	return sb.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"") {
		return quoteString(s)
	}
	return s
}

func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// String renders cmd back to burt syntax.
func (cmd *Command) String() string {
	switch cmd.Tag {
	case CmdFrom:
		if cmd.From.Kind == FromTargetKind {
			return "FROM " + cmd.From.Ref.String()
		}
		return "FROM " + quoteIfNeeded(cmd.From.Image)
	case CmdRun:
		if cmd.RunIsList {
			parts := make([]string, len(cmd.RunList))
			for i, a := range cmd.RunList {
				parts[i] = quoteString(a)
			}
			return "RUN [" + strings.Join(parts, ", ") + "]"
		}
		return "RUN " + cmd.RunString
	case CmdWorkdir:
		// The parser reads WORKDIR and SET/ARG values as raw template
		// tokens, so they are emitted verbatim rather than quoted.
		return "WORKDIR " + cmd.WorkdirPath
	case CmdSaveArtifact:
		s := "SAVE ARTIFACT " + quoteIfNeeded(cmd.SaveSrc)
		if cmd.SaveHasDest {
			s += " " + quoteIfNeeded(cmd.SaveDest)
		}
		return s
	case CmdCopy:
		parts := make([]string, 0, len(cmd.CopySrc)+1)
		for _, s := range cmd.CopySrc {
			if s.Kind == CopyArtifact {
				parts = append(parts, s.Ref.String())
			} else {
				parts = append(parts, quoteIfNeeded(s.Path))
			}
		}
		parts = append(parts, quoteIfNeeded(cmd.CopyDest))
		return "COPY " + strings.Join(parts, " ")
	case CmdSet:
		kw := "SET"
		if cmd.SetDefault {
			kw = "ARG"
		}
		if !cmd.SetHasValue {
			return kw + " " + cmd.SetName
		}
		return kw + " " + cmd.SetName + "=" + cmd.SetValue
	default:
		return ""
	}
}
