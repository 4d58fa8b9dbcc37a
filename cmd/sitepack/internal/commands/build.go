package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/bundler"
)

type BuildCmd struct {
	BundleFlags `embed:""`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	globals.setupLogging()
	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting build")

	stop := c.startTelemetry(ctx, globals.Version)
	defer stop()

	desc, err := globals.descriptor()
	if err != nil {
		return err
	}

	b, err := bundler.New(desc, c.options()...)
	if err != nil {
		return fmt.Errorf("failed to create bundler: %w", err)
	}
	defer b.Close()

	res, err := b.Build(ctx)
	if err != nil {
		return err
	}

	printResult(globals, b, res)
	return nil
}

func printResult(globals *Globals, b *bundler.Bundler, res *bundler.Result) {
	out := globals.stdout()
	dir := b.Descriptor().Context()
	for _, a := range res.Outputs {
		rel, err := filepath.Rel(dir, a.Path)
		if err != nil {
			rel = a.Path
		}
		size := int64(len(a.Contents))
		if a.Contents == nil {
			if info, err := os.Stat(a.Path); err == nil {
				size = info.Size()
			}
		}
		fmt.Fprintf(out, "%-10s %8d  %s\n", a.Kind, size, filepath.ToSlash(rel))
	}
	fmt.Fprintf(out, "built %d files in %s\n", len(res.Outputs), res.Duration.Round(time.Millisecond))
}
