// Package loaders implements the transformers a descriptor rule can name. A
// rule's transformers form a pipeline that runs last to first over a source
// file before esbuild sees it.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

var (
	// ErrUnknownTransformer indicates a rule names a transformer that is not registered
	ErrUnknownTransformer = errors.New("unknown transformer")
	// ErrTransformFailed indicates a transformer rejected its input
	ErrTransformFailed = errors.New("transform failed")
	// ErrUnexpectedInput indicates a transformer received contents of the wrong kind
	ErrUnexpectedInput = errors.New("unexpected transformer input")
	// ErrExtractDisabled indicates stylesheet extraction was requested without the extraction plugin
	ErrExtractDisabled = errors.New("stylesheet extraction requires the css-extract plugin")
)

// Module is a source file on its way through a pipeline. Loader tells esbuild
// how to interpret Contents once the pipeline is done.
type Module struct {
	Path     string
	Contents string
	Loader   api.Loader
}

// Transformer rewrites a module.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, m Module) (Module, error)
}

// Options configures the transformers in a registry.
type Options struct {
	// Debug logs every transformer invocation at info level.
	Debug bool
	// Target is the language level babel-loader lowers scripts to.
	Target api.Target
	// Minify compacts stylesheets produced by css-loader.
	Minify bool
	// Extract enables mini-css-extract-loader.
	Extract bool
	// SassBinary is the Dart Sass executable used by sass-loader.
	SassBinary string
	// SassIncludePaths are extra load paths for sass-loader.
	SassIncludePaths []string
	// Observe, when set, is called after every transformer invocation.
	Observe func(transformer string, elapsed time.Duration, err error)
}

// DefaultOptions returns the options used when a build does not override them.
func DefaultOptions() Options {
	return Options{
		Target:     api.ES2015,
		SassBinary: "sass",
	}
}

// Factory constructs a transformer.
type Factory func(opts Options) (Transformer, error)

var factories = map[string]Factory{
	"babel-loader":            newBabel,
	"css-loader":              newCSS,
	"style-loader":            newStyle,
	"sass-loader":             newSass,
	"import-glob-loader":      newImportGlob,
	"mini-css-extract-loader": newExtract,
}

// Names returns the registered transformer identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry hands out one shared instance of each transformer a build uses.
type Registry struct {
	opts Options

	mu        sync.Mutex
	instances map[string]Transformer
}

// NewRegistry creates a registry configured with opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:      opts,
		instances: make(map[string]Transformer),
	}
}

// Get returns the transformer registered under name.
func (r *Registry) Get(name string) (Transformer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.instances[name]; ok {
		return t, nil
	}

	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownTransformer, name, strings.Join(Names(), ", "))
	}

	t, err := factory(r.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer %q: %w", name, err)
	}

	r.instances[name] = t
	return t, nil
}

// Pipeline builds the pipeline for the transformers named in use, given in
// declaration order.
func (r *Registry) Pipeline(use []string) (*Pipeline, error) {
	steps := make([]Transformer, 0, len(use))
	for _, name := range use {
		t, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		steps = append(steps, t)
	}
	return &Pipeline{steps: steps, opts: r.opts}, nil
}

// Close releases transformers that hold external resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, t := range r.instances {
		if c, ok := t.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close transformer %q: %w", name, err))
			}
		}
	}
	clear(r.instances)
	return errors.Join(errs...)
}

// Pipeline is an ordered list of transformers.
type Pipeline struct {
	steps []Transformer
	opts  Options
}

// Names returns the transformer identifiers in declaration order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.steps))
	for i, t := range p.steps {
		names[i] = t.Name()
	}
	return names
}

// Run passes m through the transformers, last declared first.
func (p *Pipeline) Run(ctx context.Context, m Module) (Module, error) {
	for _, t := range slices.Backward(p.steps) {
		if err := ctx.Err(); err != nil {
			return Module{}, err
		}

		started := time.Now()
		out, err := t.Transform(ctx, m)
		if p.opts.Observe != nil {
			p.opts.Observe(t.Name(), time.Since(started), err)
		}
		if err != nil {
			return Module{}, fmt.Errorf("%s: %s: %w", t.Name(), m.Path, err)
		}

		if p.opts.Debug {
			log.Info().
				Str("transformer", t.Name()).
				Str("path", m.Path).
				Int("bytes_in", len(m.Contents)).
				Int("bytes_out", len(out.Contents)).
				Str("loader", loaderName(out.Loader)).
				Dur("duration", time.Since(started)).
				Msg("Transformed module")
		}

		m = out
	}
	return m, nil
}

// LoaderFor guesses how esbuild should read a file from its extension.
func LoaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return api.LoaderJS
	case ".jsx":
		return api.LoaderJSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".css", ".scss", ".sass":
		return api.LoaderCSS
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderText
	}
}

func loaderName(l api.Loader) string {
	switch l {
	case api.LoaderJS:
		return "js"
	case api.LoaderJSX:
		return "jsx"
	case api.LoaderTS:
		return "ts"
	case api.LoaderTSX:
		return "tsx"
	case api.LoaderCSS:
		return "css"
	case api.LoaderJSON:
		return "json"
	case api.LoaderText:
		return "text"
	default:
		return fmt.Sprintf("loader(%d)", l)
	}
}

func isScript(l api.Loader) bool {
	return l == api.LoaderJS || l == api.LoaderJSX || l == api.LoaderTS || l == api.LoaderTSX
}

// messagesError flattens esbuild messages into one error wrapping ErrTransformFailed.
func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs)+1)
	errs = append(errs, ErrTransformFailed)
	for _, msg := range msgs {
		if msg.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}
