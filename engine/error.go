package engine

import "fmt"

// BuildError names the operation that failed, wrapping the underlying
// cause so callers can build a "Failed to X: Failed to Y: ..." chain that
// mirrors how each dispatch level adds its own context.
type BuildError struct {
	Op  string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("Failed to %s: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
