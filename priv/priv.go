// Package priv implements the four operations that run inside the
// container tool's privileged mount namespace (`<tool> unshare -m`): tree
// copy, tar export, tar import, and cross-container copy. Each reads its
// working prefix from an environment variable (PREFIX, or
// PREFIX_SRC/PREFIX_DEST for the cross-container case) and joins the path
// argument given on its command line beneath that prefix.
package priv

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// JoinPrefix joins path beneath prefix, treating path as rooted at
// prefix regardless of a leading "/".
func JoinPrefix(prefix, path string) string {
	return filepath.Join(prefix, strings.TrimPrefix(path, "/"))
}

// PrefixFromEnv reads name from the environment and errors if unset, since
// every privileged helper is meaningless without its mount prefix.
func PrefixFromEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", errors.Errorf("%s not set in privileged helper environment", name)
	}
	return v, nil
}
