/*
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package primdb turns a directory of OpenCL kernels into two C++ sources:
// the primitive database, mapping every kernel name to its preprocessed
// text, and the batch headers, holding the shared headers the runtime
// compiles once per batch of kernels.
//
// A kernel's database name is its file name up to the first '.'; the rest
// is a tag that allows several implementations of one primitive.
package primdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwessels/primdb/internal/atomicfile"
	"github.com/fwessels/primdb/internal/batchheaders"
	"github.com/fwessels/primdb/internal/emit"
	"github.com/fwessels/primdb/internal/normalize"
	"github.com/fwessels/primdb/internal/preprocessor"
)

const (
	// KernelPattern selects kernels directly below the kernels directory.
	KernelPattern = "*.cl"
	// BatchHeadersDir holds, relative to the kernels directory, the headers
	// that are compiled once per batch instead of once per kernel.
	BatchHeadersDir = "include/batch_headers"
)

var ErrInvalidOptions = errors.New("invalid options")

type Options struct {
	KernelsDir       string
	OutDir           string
	PrimDBName       string
	BatchHeadersName string
	// Limits bounds the emitted string literals. nil selects
	// emit.DefaultLimits.
	Limits *emit.Limits
}

func (o Options) validate() error {
	switch {
	case strings.TrimSpace(o.KernelsDir) == "":
		return fmt.Errorf("%w: kernels directory is required", ErrInvalidOptions)
	case strings.TrimSpace(o.OutDir) == "":
		return fmt.Errorf("%w: output directory is required", ErrInvalidOptions)
	case strings.TrimSpace(o.PrimDBName) == "":
		return fmt.Errorf("%w: primitive database file name is required", ErrInvalidOptions)
	case strings.TrimSpace(o.BatchHeadersName) == "":
		return fmt.Errorf("%w: batch headers file name is required", ErrInvalidOptions)
	case o.PrimDBName == o.BatchHeadersName:
		return fmt.Errorf("%w: output file names must differ", ErrInvalidOptions)
	}
	if o.Limits != nil {
		if err := o.Limits.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	return nil
}

// Kernel describes one record of the primitive database.
type Kernel struct {
	Name     string
	Path     string
	Text     string
	Segments int
}

// Output is the rendered content of both generated files.
type Output struct {
	PrimitiveDB  []byte
	BatchHeaders []byte
	Kernels      []Kernel
	Headers      []string
}

type Generator struct {
	opts    Options
	limits  emit.Limits
	headers *batchheaders.Set
	inliner *preprocessor.Inliner
}

// New prepares a generator and resolves the batch header order.
func New(opts Options) (*Generator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	limits := emit.DefaultLimits()
	if opts.Limits != nil {
		limits = *opts.Limits
	}

	var err error
	if opts.KernelsDir, err = filepath.Abs(opts.KernelsDir); err != nil {
		return nil, err
	}
	if opts.OutDir, err = filepath.Abs(opts.OutDir); err != nil {
		return nil, err
	}
	if st, err := os.Stat(opts.KernelsDir); err != nil {
		return nil, err
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidOptions, opts.KernelsDir)
	}

	graph, err := batchheaders.Discover(filepath.Join(opts.KernelsDir, filepath.FromSlash(BatchHeadersDir)))
	if err != nil {
		return nil, fmt.Errorf("batch headers: %w", err)
	}
	headers := graph.Resolve()

	return &Generator{
		opts:    opts,
		limits:  limits,
		headers: headers,
		inliner: preprocessor.NewInliner(headers),
	}, nil
}

// BatchHeaders returns the batch header names in emission order.
func (g *Generator) BatchHeaders() []string {
	return g.headers.Names()
}

// KernelFiles lists the kernels of dir in lexical order.
func KernelFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, KernelPattern))
	if err != nil {
		return nil, err
	}
	files := matches[:0]
	for _, m := range matches {
		if st, err := os.Stat(m); err != nil {
			return nil, err
		} else if st.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files, nil
}

// KernelName returns the database key of the kernel at path.
func KernelName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// Generate renders both files in memory. Nothing is written.
func (g *Generator) Generate(ctx context.Context) (*Output, error) {
	files, err := KernelFiles(g.opts.KernelsDir)
	if err != nil {
		return nil, err
	}

	out := &Output{Headers: g.headers.Names()}

	var db strings.Builder
	db.WriteString(emit.Banner)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("processing kernel", "file", f)
		rec, k, err := g.Kernel(f)
		if err != nil {
			return nil, fmt.Errorf("kernel %s: %w", filepath.Base(f), err)
		}
		db.WriteString(rec.String())
		out.Kernels = append(out.Kernels, k)
	}
	out.PrimitiveDB = []byte(db.String())

	bh, err := g.renderBatchHeaders()
	if err != nil {
		return nil, err
	}
	out.BatchHeaders = []byte(bh)
	return out, nil
}

// Kernel runs the full pipeline for one kernel file: include expansion,
// macro pruning, undef guards, normalization and chunking.
func (g *Generator) Kernel(path string) (emit.Record, Kernel, error) {
	exp, err := g.inliner.Expand(path)
	if err != nil {
		return emit.Record{}, Kernel{}, err
	}
	undefs, err := exp.Undefs()
	if err != nil {
		return emit.Record{}, Kernel{}, err
	}
	text, err := normalize.Normalize(exp.Text + undefs)
	if err != nil {
		return emit.Record{}, Kernel{}, err
	}

	name := KernelName(path)
	rec := emit.NewRecord(name, text, g.limits)
	return rec, Kernel{Name: name, Path: exp.Origin, Text: text, Segments: len(rec.Segments)}, nil
}

func (g *Generator) renderBatchHeaders() (string, error) {
	headers := make([]emit.Header, 0, g.headers.Len())
	for _, name := range g.headers.Names() {
		src, err := os.ReadFile(g.headers.Path(name))
		if err != nil {
			return "", fmt.Errorf("batch header %s: %w", name, err)
		}
		if n := normalize.InvalidLine(string(src)); n > 0 {
			return "", fmt.Errorf("batch header %s:%d: %w", name, n, normalize.ErrInvalidUTF8)
		}
		headers = append(headers, emit.Header{Name: name, Lines: emit.SplitLines(string(src))})
	}
	text, err := normalize.Normalize(emit.BatchHeaders(headers, g.limits))
	if err != nil {
		return "", err
	}
	return emit.Banner + text, nil
}

// Run generates both files and writes them to the output directory. When
// any kernel fails no file is written.
func (g *Generator) Run(ctx context.Context) (*Output, error) {
	start := time.Now()
	out, err := g.Generate(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(g.opts.OutDir, 0o755); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{g.opts.PrimDBName, out.PrimitiveDB},
		{g.opts.BatchHeadersName, out.BatchHeaders},
	} {
		dest := filepath.Join(g.opts.OutDir, f.name)
		if err := atomicfile.WriteFile(dest, f.data, 0o644); err != nil {
			return nil, err
		}
		slog.Debug("wrote output", "file", dest, "bytes", len(f.data))
	}

	slog.Info("generated primitive database", "kernels", len(out.Kernels), "batch_headers", len(out.Headers), "elapsed", time.Since(start))
	return out, nil
}
