// Package batchheaders discovers the headers that are compiled once per
// kernel batch and orders them so that every header follows the headers it
// includes.
package batchheaders

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emirpasic/gods/v2/sets/linkedhashset"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/fwessels/primdb/internal/preprocessor"
)

// Pattern selects batch headers inside their directory.
const Pattern = "*.cl"

// Graph is the include graph of a batch header directory. Nodes and edge
// targets are header base names.
type Graph struct {
	dir  string
	deps *orderedmap.OrderedMap[string, *linkedhashset.Set[string]]
}

func NewGraph(dir string) *Graph {
	return &Graph{dir: dir, deps: orderedmap.New[string, *linkedhashset.Set[string]]()}
}

// Discover scans every header of dir for #include lines. A missing dir
// yields an empty graph.
func Discover(dir string) (*Graph, error) {
	paths, err := filepath.Glob(filepath.Join(dir, Pattern))
	if err != nil {
		return nil, err
	}
	g := NewGraph(dir)
	for _, p := range paths {
		targets, err := scanIncludes(p)
		if err != nil {
			return nil, err
		}
		g.Add(filepath.Base(p), targets...)
	}
	return g, nil
}

// Add registers header name with the targets it includes. The header itself
// seeds its dependency set.
func (g *Graph) Add(name string, targets ...string) {
	set, ok := g.deps.Get(name)
	if !ok {
		set = linkedhashset.New(name)
		g.deps.Set(name, set)
	}
	set.Add(targets...)
}

func (g *Graph) Len() int { return g.deps.Len() }

// Resolve returns every header of the graph in dependency order.
//
// Include cycles are not an error: a header that is already on the
// traversal path is skipped, which orders the cycle best effort. Targets
// that are not headers of the graph are ignored.
func (g *Graph) Resolve() *Set {
	r := &resolver{
		g:        g,
		path:     linkedhashset.New[string](),
		finished: linkedhashset.New[string](),
	}
	for pair := g.deps.Oldest(); pair != nil; pair = pair.Next() {
		if !r.finished.Contains(pair.Key) {
			r.visit(pair.Key)
		}
	}
	slog.Debug("batch header order", "headers", r.finished.Values())
	return &Set{dir: g.dir, names: r.finished}
}

type resolver struct {
	g        *Graph
	path     *linkedhashset.Set[string]
	finished *linkedhashset.Set[string]
}

func (r *resolver) visit(name string) {
	r.path.Add(name)
	deps, _ := r.g.deps.Get(name)
	for _, dep := range deps.Values() {
		if _, ok := r.g.deps.Get(dep); !ok {
			continue
		}
		if r.path.Contains(dep) || r.finished.Contains(dep) {
			continue
		}
		r.visit(dep)
	}
	r.finished.Add(name)
	r.path.Remove(name)
}

// Set is the ordered result of Resolve.
type Set struct {
	dir   string
	names *linkedhashset.Set[string]
}

// Names returns the header base names in dependency order.
func (s *Set) Names() []string {
	if s == nil || s.names == nil {
		return nil
	}
	return s.names.Values()
}

// Contains reports whether name is a batch header.
func (s *Set) Contains(name string) bool {
	return s != nil && s.names != nil && s.names.Contains(name)
}

// Path returns the location of header name.
func (s *Set) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Set) Len() int {
	if s == nil || s.names == nil {
		return 0
	}
	return s.names.Size()
}

func scanIncludes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if !strings.HasPrefix(line, "#include") {
			continue
		}
		target, err := preprocessor.IncludeTarget(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filepath.Base(path), lineNo, err)
		}
		targets = append(targets, filepath.Base(filepath.FromSlash(target)))
	}
	return targets, scanner.Err()
}
