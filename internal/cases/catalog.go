// Package cases holds the case catalog: the embedded interview scripts plus
// any scripts loaded from disk or uploaded at runtime.
package cases

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/casecoach/internal/interview"
)

//go:embed scripts/*.yaml
var embedded embed.FS

// ErrDuplicateCase is returned when a script id is already in the catalog.
var ErrDuplicateCase = errors.New("duplicate case")

// Parse decodes and compiles one YAML script. Unknown fields are rejected.
func Parse(data []byte) (*interview.Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc interview.Script
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if err := sc.Compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Category   string
	Difficulty string
}

func (f Filter) match(sc *interview.Script) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, sc.Category) {
		return false
	}
	if f.Difficulty != "" && !strings.EqualFold(f.Difficulty, sc.Difficulty) {
		return false
	}
	return true
}

// Catalog is a concurrency-safe set of compiled scripts keyed by id.
type Catalog struct {
	mu      sync.RWMutex
	scripts map[string]*interview.Script
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{scripts: make(map[string]*interview.Script)}
}

// Default returns a catalog with the embedded scripts loaded.
func Default() (*Catalog, error) {
	c := New()
	sub, err := fs.Sub(embedded, "scripts")
	if err != nil {
		return nil, fmt.Errorf("embedded scripts: %w", err)
	}
	if err := c.Load(sub); err != nil {
		return nil, err
	}
	return c, nil
}

// Load adds every *.yaml file at the root of fsys.
func (c *Catalog) Load(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return fmt.Errorf("list scripts: %w", err)
	}
	slices.Sort(names)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		sc, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := c.Add(sc); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// LoadFile adds a script from a file on disk.
func (c *Catalog) LoadFile(filename string) (*interview.Script, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path.Base(filename), err)
	}
	if err := c.Add(sc); err != nil {
		return nil, err
	}
	slog.Info("case loaded", "file", filename, "case_id", sc.ID, "sha256", fmt.Sprintf("%x", sha256.Sum256(data)))
	return sc, nil
}

// Add inserts a script. Uncompiled scripts are compiled first.
func (c *Catalog) Add(sc *interview.Script) error {
	if sc == nil {
		return fmt.Errorf("%w: nil script", interview.ErrInvalidScript)
	}
	if !sc.Compiled() {
		if err := sc.Compile(); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scripts[sc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCase, sc.ID)
	}
	c.scripts[sc.ID] = sc
	return nil
}

// Get returns a script by id.
func (c *Catalog) Get(id string) (*interview.Script, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sc, ok := c.scripts[id]
	return sc, ok
}

// List returns the scripts that pass the filter, sorted by title.
func (c *Catalog) List(f Filter) []*interview.Script {
	c.mu.RLock()
	out := make([]*interview.Script, 0, len(c.scripts))
	for _, sc := range c.scripts {
		if f.match(sc) {
			out = append(out, sc)
		}
	}
	c.mu.RUnlock()
	slices.SortFunc(out, func(a, b *interview.Script) int {
		return strings.Compare(a.Title, b.Title)
	})
	return out
}

// Categories returns the distinct categories in the catalog, sorted.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, sc := range c.scripts {
		if !slices.Contains(out, sc.Category) {
			out = append(out, sc.Category)
		}
	}
	slices.Sort(out)
	return out
}

// Len returns the number of scripts.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scripts)
}

// Difficulties returns the distinct difficulty levels in the catalog, sorted.
func (c *Catalog) Difficulties() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for _, sc := range c.scripts {
		if sc.Difficulty != "" && !slices.Contains(out, sc.Difficulty) {
			out = append(out, sc.Difficulty)
		}
	}
	slices.Sort(out)
	return out
}

// Remove deletes a script. It reports whether the id was present.
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scripts[id]
	delete(c.scripts, id)
	return ok
}
