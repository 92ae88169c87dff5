package burtfile

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Cache memoizes parsed scripts by absolute path so that a FROM +target
// reference into a sibling script file only parses that file once per
// build, no matter how many targets reference it.
type Cache struct {
	mu    sync.Mutex
	roots map[string]*RootSection
}

// NewCache returns an empty script cache.
func NewCache() *Cache {
	return &Cache{roots: map[string]*RootSection{}}
}

// Load returns the parsed RootSection for path, parsing and caching it on
// first access. path is resolved to an absolute, cleaned path (against the
// process's current directory) before lookup so that spellings such as
// "./burt" and "burt" share an entry.
func (c *Cache) Load(path string) (*RootSection, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving path %q", path)
	}

	c.mu.Lock()
	if r, ok := c.roots[abs]; ok {
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", abs)
	}
	root, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", abs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.roots[abs]; ok {
		return r, nil
	}
	c.roots[abs] = root
	return root, nil
}
