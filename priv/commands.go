package priv

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	return nil
}

// RunContainerCopy implements `internal-container-copy <src> <dest>`: read
// PREFIX_SRC/PREFIX_DEST from the environment and replicate the tree.
func RunContainerCopy(srcPath, destPath string) error {
	srcPrefix, err := PrefixFromEnv("PREFIX_SRC")
	if err != nil {
		return err
	}
	destPrefix, err := PrefixFromEnv("PREFIX_DEST")
	if err != nil {
		return err
	}
	return ContainerCopy(srcPrefix, srcPath, destPrefix, destPath)
}

// RunExport implements `internal-export <path>`: read PREFIX from the
// environment and write the tree at PREFIX/path to w as a tar stream.
func RunExport(srcPath string, w io.Writer) error {
	prefix, err := PrefixFromEnv("PREFIX")
	if err != nil {
		return err
	}
	return ExportTar(JoinPrefix(prefix, srcPath), w)
}

// RunImportTar implements `internal-import-tar <path>`: read PREFIX from
// the environment and unpack r into PREFIX/path.
func RunImportTar(r io.Reader, destPath string) error {
	prefix, err := PrefixFromEnv("PREFIX")
	if err != nil {
		return err
	}
	dest := JoinPrefix(prefix, destPath)
	if err := ensureDir(dest); err != nil {
		return err
	}
	return ImportTar(r, dest)
}
