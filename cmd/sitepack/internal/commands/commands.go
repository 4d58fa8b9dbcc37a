package commands

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/descriptor"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/telemetry"
)

type Globals struct {
	Debug   bool
	Version string
	// Config is the descriptor file. When empty the built-in descriptor is
	// used, anchored at Context.
	Config  string
	Context string
	// Stdout receives command output. Defaults to os.Stdout.
	Stdout  io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

func (g *Globals) setupLogging() {
	log.Logger = logger.Setup(g.Debug)
}

// descriptor loads the descriptor the globals select.
func (g *Globals) descriptor() (*descriptor.Descriptor, error) {
	if g.Config == "" {
		dir := g.Context
		if dir == "" {
			dir = "."
		}
		return descriptor.Default(dir)
	}

	desc, err := descriptor.Load(g.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptor: %w", err)
	}
	return desc, nil
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// BundleFlags configure the bundler for build and watch.
type BundleFlags struct {
	Minify    bool   `help:"minify scripts and stylesheets" env:"SITEPACK_MINIFY"`
	Sourcemap bool   `help:"write linked source maps" env:"SITEPACK_SOURCEMAP"`
	Target    string `help:"language level babel-loader lowers scripts to" default:"es2015" env:"SITEPACK_TARGET"`
	Metafile  string `help:"write the esbuild metafile to this path, relative to the output directory" env:"SITEPACK_METAFILE"`
	Telemetry bool   `help:"export build traces and metrics over OTLP" default:"false" env:"SITEPACK_TELEMETRY"`
}

func (f *BundleFlags) Validate() error {
	if _, ok := targets[strings.ToLower(f.Target)]; !ok {
		return fmt.Errorf("unknown target %q", f.Target)
	}
	if f.Metafile != "" && !fs.ValidPath(path.Clean(filepath.ToSlash(f.Metafile))) {
		return fmt.Errorf("metafile %q must be relative to the output directory", f.Metafile)
	}
	return nil
}

func (f *BundleFlags) options() []bundler.Option {
	opts := []bundler.Option{
		bundler.WithMinify(f.Minify),
		bundler.WithSourcemap(f.Sourcemap),
		bundler.WithTarget(targets[strings.ToLower(f.Target)]),
	}
	if f.Metafile != "" {
		opts = append(opts, bundler.WithMetafile(f.Metafile))
	}
	if f.Telemetry {
		opts = append(opts, bundler.WithMetrics(telemetry.GetMetrics()))
	}
	return opts
}

// startTelemetry installs the OTLP exporters when telemetry is enabled and
// returns a function flushing them.
func (f *BundleFlags) startTelemetry(ctx context.Context, version string) func() {
	if !f.Telemetry {
		return func() {}
	}

	log.Info().Msg("Telemetry is enabled")
	shutdown, err := telemetry.InitTelemetry(ctx, "sitepack", version)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
