package plugins

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/sitepack/internal/loaders"
)

// debug switches transformers and the bundler to verbose logging and keeps
// function and class names readable in the bundle. esbuild itself stays
// silent; its messages reach the log through the bundler.
type debug struct {
	enabled bool
}

type debugOptions struct {
	Debug bool `yaml:"debug"`
}

func newDebug(options map[string]any) (Plugin, error) {
	var opts debugOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &debug{enabled: opts.Debug}, nil
}

func (d *debug) Name() string { return "debug" }

func (d *debug) ConfigureLoaders(opts *loaders.Options) {
	opts.Debug = d.enabled
}

func (d *debug) ConfigureBuild(opts *api.BuildOptions) {
	if d.enabled {
		opts.KeepNames = true
	}
}
