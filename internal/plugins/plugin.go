// Package plugins implements the build-wide behaviors a descriptor can list.
//
// A plugin takes part in a build through optional hooks, each called in the
// order plugins are declared:
//
//	ConfigureLoaders  before transformers are created
//	ConfigureBuild    before esbuild is invoked
//	BeforeEmit        after bundling, before outputs are written
//	AfterEmit         after outputs are written
package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/sitepack/internal/descriptor"
	"github.com/wolfeidau/sitepack/internal/loaders"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownPlugin indicates a descriptor names a plugin that is not registered
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrInvalidOptions indicates plugin options could not be decoded
	ErrInvalidOptions = errors.New("invalid plugin options")
	// ErrUnsafeClean indicates the clean plugin was pointed at a directory it must not clear
	ErrUnsafeClean = errors.New("refusing to clean directory")
)

// Asset kinds.
const (
	KindScript     = "script"
	KindStylesheet = "stylesheet"
	KindSourceMap  = "sourcemap"
	KindCompressed = "compressed"
	KindOther      = "other"
)

// Asset is an output file. Entry is empty for outputs that do not belong to
// a single entry point.
type Asset struct {
	Path     string
	Entry    string
	Kind     string
	Contents []byte
}

// Emit describes the outputs of one build.
type Emit struct {
	Context   string
	OutputDir string
	Assets    []Asset
}

// Plugin is a named build-wide behavior.
type Plugin interface {
	Name() string
}

// LoaderConfigurer adjusts the transformer options.
type LoaderConfigurer interface {
	ConfigureLoaders(opts *loaders.Options)
}

// BuildConfigurer adjusts the esbuild options.
type BuildConfigurer interface {
	ConfigureBuild(opts *api.BuildOptions)
}

// BeforeEmitter runs before outputs are written and may change emit.Assets.
type BeforeEmitter interface {
	BeforeEmit(ctx context.Context, emit *Emit) error
}

// AfterEmitter runs after outputs are written and may add to emit.Assets.
type AfterEmitter interface {
	AfterEmit(ctx context.Context, emit *Emit) error
}

// Factory constructs a plugin from its decoded options.
type Factory func(options map[string]any) (Plugin, error)

var factories = map[string]Factory{
	"debug":       newDebug,
	"css-extract": newExtract,
	"clean":       newClean,
	"compress":    newCompress,
}

// Names returns the registered plugin identifiers, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the plugin a spec declares.
func New(spec descriptor.PluginSpec) (Plugin, error) {
	factory, ok := factories[spec.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPlugin, spec.Name, strings.Join(Names(), ", "))
	}
	p, err := factory(spec.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin %q: %w", spec.Name, err)
	}
	return p, nil
}

// NewAll constructs the declared plugins, keeping their order.
func NewAll(specs []descriptor.PluginSpec) ([]Plugin, error) {
	out := make([]Plugin, 0, len(specs))
	for _, spec := range specs {
		p, err := New(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// decodeOptions maps free-form options onto a typed struct, rejecting unknown
// keys.
func decodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}

	raw, err := yaml.Marshal(options)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}
