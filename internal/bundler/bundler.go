// Package bundler executes a descriptor with esbuild.
//
// Every entry point becomes one esbuild entry whose module imports the
// entry's files in declaration order, so each entry name yields exactly one
// script bundle. Descriptor rules run inside an esbuild on-load hook and
// plugins are invoked around the emit step, which the bundler performs itself
// so that one-off builds and watch rebuilds share it.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/descriptor"
	"github.com/wolfeidau/sitepack/internal/loaders"
	"github.com/wolfeidau/sitepack/internal/plugins"
	"github.com/wolfeidau/sitepack/internal/telemetry"
)

var (
	// ErrBuildFailed indicates esbuild reported errors
	ErrBuildFailed = errors.New("build failed")
	// ErrNoResult indicates esbuild finished without reporting an outcome
	ErrNoResult = errors.New("build produced no result")
)

// Option customises a Bundler.
type Option func(*Bundler)

// WithMinify minifies scripts and stylesheets.
func WithMinify(minify bool) Option {
	return func(b *Bundler) {
		b.minify = minify
	}
}

// WithSourcemap writes linked source maps beside the bundles.
func WithSourcemap(sourcemap bool) Option {
	return func(b *Bundler) {
		b.sourcemap = sourcemap
	}
}

// WithTarget sets the language level babel-loader lowers scripts to.
func WithTarget(target api.Target) Option {
	return func(b *Bundler) {
		b.target = target
	}
}

// WithMetafile overrides the metafile named by the descriptor output.
func WithMetafile(name string) Option {
	return func(b *Bundler) {
		b.metafile = name
	}
}

// WithMetrics records builds and transformer invocations.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Bundler) {
		b.metrics = m
	}
}

// Bundler builds the bundles a descriptor declares.
type Bundler struct {
	desc      *descriptor.Descriptor
	plugins   []plugins.Plugin
	registry  *loaders.Registry
	pipelines map[int]*loaders.Pipeline

	minify    bool
	sourcemap bool
	target    api.Target
	metafile  string
	metrics   *telemetry.Metrics
	debug     bool
}

// New resolves the transformers and plugins desc names. It does not build.
func New(desc *descriptor.Descriptor, opts ...Option) (*Bundler, error) {
	dir, err := filepath.Abs(desc.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve context %s: %w", desc.Context(), err)
	}

	b := &Bundler{
		desc:      desc.WithContext(dir),
		pipelines: make(map[int]*loaders.Pipeline),
		metafile:  desc.Output().Metafile,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.plugins, err = plugins.NewAll(b.desc.Plugins())
	if err != nil {
		return nil, err
	}

	lopts := loaders.DefaultOptions()
	lopts.Minify = b.minify
	if b.target != api.DefaultTarget {
		lopts.Target = b.target
	}
	if b.metrics != nil {
		lopts.Observe = func(transformer string, elapsed time.Duration, err error) {
			b.metrics.RecordTransform(context.Background(), transformer, elapsed, err)
		}
	}
	for _, p := range b.plugins {
		if c, ok := p.(plugins.LoaderConfigurer); ok {
			c.ConfigureLoaders(&lopts)
		}
	}

	b.debug = lopts.Debug
	b.registry = loaders.NewRegistry(lopts)
	for _, r := range b.desc.Rules() {
		pipeline, err := b.registry.Pipeline(r.Use)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("rule %d: %w", r.Index, err), b.registry.Close())
		}
		b.pipelines[r.Index] = pipeline
	}

	return b, nil
}

// Descriptor returns the descriptor anchored at its absolute context.
func (b *Bundler) Descriptor() *descriptor.Descriptor {
	return b.desc
}

// Close releases transformer resources.
func (b *Bundler) Close() error {
	return b.registry.Close()
}

// Build validates the entry files and runs one build.
func (b *Bundler) Build(ctx context.Context) (*Result, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	var (
		res      *Result
		buildErr = ErrNoResult
	)
	ectx, err := b.context(ctx, func(r *Result, err error) {
		res, buildErr = r, err
	})
	if err != nil {
		return nil, err
	}
	defer ectx.Dispose()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ectx.Cancel()
		case <-done:
		}
	}()

	ectx.Rebuild()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, buildErr
}

// Watch builds, then rebuilds whenever an input changes, until ctx is
// cancelled. onBuild is called after every build.
func (b *Bundler) Watch(ctx context.Context, onBuild func(*Result, error)) error {
	if err := b.validate(); err != nil {
		return err
	}

	ectx, err := b.context(ctx, onBuild)
	if err != nil {
		return err
	}
	defer ectx.Dispose()

	if err := ectx.Watch(api.WatchOptions{}); err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	log.Info().Str("context", b.desc.Context()).Msg("Watching for changes")

	<-ctx.Done()
	return nil
}

func (b *Bundler) validate() error {
	fsys, ok := os.DirFS(b.desc.Context()).(fs.StatFS)
	if !ok {
		return fmt.Errorf("context %s cannot be inspected", b.desc.Context())
	}
	return b.desc.ValidateEntries(fsys)
}

func (b *Bundler) context(ctx context.Context, report func(*Result, error)) (api.BuildContext, error) {
	ectx, cerr := api.Context(b.buildOptions(ctx, report))
	if cerr != nil {
		logMessages(cerr.Errors)
		return nil, messagesError(cerr.Errors)
	}
	return ectx, nil
}

func (b *Bundler) buildOptions(ctx context.Context, report func(*Result, error)) api.BuildOptions {
	entries := b.desc.Entries()
	points := make([]api.EntryPoint, len(entries))
	for i, e := range entries {
		points[i] = api.EntryPoint{
			InputPath:  entryNamespace + ":" + e.Name,
			OutputPath: b.outputPath(e.Name),
		}
	}

	opts := api.BuildOptions{
		EntryPointsAdvanced: points,
		AbsWorkingDir:       b.desc.Context(),
		Outdir:              b.desc.OutputDir(),
		Bundle:              true,
		Write:               false,
		Metafile:            true,
		Format:              api.FormatIIFE,
		Target:              api.ESNext,
		MinifyWhitespace:    b.minify,
		MinifyIdentifiers:   b.minify,
		MinifySyntax:        b.minify,
		Sourcemap:           cond(b.sourcemap, api.SourceMapLinked, api.SourceMapNone),
		LogLevel:            api.LogLevelSilent,
		Plugins: []api.Plugin{
			b.entryPlugin(),
			b.rulesPlugin(ctx),
			b.emitPlugin(ctx, report),
		},
	}
	if ext := path.Ext(b.desc.Output().Filename); ext != "" && ext != ".js" {
		opts.OutExtension = map[string]string{".js": ext}
	}

	for _, p := range b.plugins {
		if c, ok := p.(plugins.BuildConfigurer); ok {
			c.ConfigureBuild(&opts)
		}
	}
	return opts
}

// outputPath is the bundle path for entry relative to the output directory,
// without its extension.
func (b *Bundler) outputPath(entry string) string {
	name := strings.ReplaceAll(b.desc.Output().Filename, descriptor.NamePlaceholder, entry)
	name = path.Clean(filepath.ToSlash(name))
	return strings.TrimSuffix(name, path.Ext(name))
}

func cond[T any](condition bool, trueVal, falseVal T) T {
	if condition {
		return trueVal
	}
	return falseVal
}
