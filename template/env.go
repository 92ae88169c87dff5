package template

import (
	"github.com/pkg/errors"
)

// Env is the template environment: a mutable variable map plus the render
// entry point. A single Env is shared across every command in a target,
// accumulating SET/ARG assignments as the build engine walks the command
// list.
type Env struct {
	vars map[string]Value
}

// NewEnv returns an Env seeded with the given initial variables (typically
// from -D/--define CLI flags).
func NewEnv(initial map[string]string) *Env {
	e := &Env{vars: map[string]Value{}}
	for k, v := range initial {
		e.vars[k] = String(v)
	}
	return e
}

// IsSet reports whether name has been assigned a value.
func (e *Env) IsSet(name string) bool {
	_, ok := e.vars[name]
	return ok
}

// Set assigns name to value, overwriting any previous value.
func (e *Env) Set(name string, value Value) {
	e.vars[name] = value
}

// SetDefault assigns name to value only if it is not already set: the
// semantics of ARG, whose value is a default that CLI -D flags or an
// earlier SET may already have supplied. (The engine's ARG handling checks
// IsSet and calls Set itself rather than calling SetDefault.)
func (e *Env) SetDefault(name string, value Value) {
	if _, ok := e.vars[name]; ok {
		return
	}
	e.vars[name] = value
}

// Get returns the current value of name, or Undefined() if unset.
func (e *Env) Get(name string) Value {
	if v, ok := e.vars[name]; ok {
		return v
	}
	return Undefined()
}

// Render renders text, substituting {{ }} expressions and evaluating
// {% %} control blocks against the environment's current variables.
func (e *Env) Render(text string) (string, error) {
	tmpl, err := Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "parsing template")
	}
	out, err := tmpl.Render(e, e.vars)
	if err != nil {
		return "", errors.Wrapf(err, "rendering template")
	}
	return out, nil
}
