package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/logger"
	"github.com/wolfeidau/sitepack/internal/plugins"
	"github.com/wolfeidau/sitepack/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result describes one successful build.
type Result struct {
	BuildID  string
	Outputs  []plugins.Asset
	Metadata *Metadata
	Manifest Manifest
	Duration time.Duration
}

// finish emits a completed esbuild build and records it.
func (b *Bundler) finish(ctx context.Context, started time.Time, result *api.BuildResult) (*Result, error) {
	buildID := uuid.NewString()
	ctx, span := telemetry.Tracer().Start(ctx, "sitepack.build",
		trace.WithTimestamp(started),
		trace.WithAttributes(
			attribute.String("build_id", buildID),
			attribute.Int("entries", len(b.desc.Entries())),
		),
	)
	defer span.End()

	buildLog := log.With().Str("build_id", buildID).Logger()

	res, err := b.emit(ctx, buildLog, result)
	elapsed := time.Since(started)

	var (
		files int
		bytes int64
	)
	if res != nil {
		res.BuildID = buildID
		res.Duration = elapsed
		for _, a := range res.Outputs {
			files++
			bytes += int64(len(a.Contents))
		}
	}
	if b.metrics != nil {
		b.metrics.RecordBuild(ctx, elapsed, files, bytes, err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		buildLog.Error().Err(err).Dur("duration", elapsed).Msg("Build failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("outputs", files), attribute.Int64("bytes", bytes))
	buildLog.Info().
		Int("outputs", files).
		Int64("bytes", bytes).
		Dur("duration", elapsed).
		Msg("Build complete")
	return res, nil
}

func (b *Bundler) emit(ctx context.Context, buildLog zerolog.Logger, result *api.BuildResult) (*Result, error) {
	logger.LogMessages(buildLog, zerolog.WarnLevel, result.Warnings)
	if len(result.Errors) > 0 {
		logger.LogMessages(buildLog, zerolog.ErrorLevel, result.Errors)
		return nil, messagesError(result.Errors)
	}

	meta, err := parseMetadata(result.Metafile)
	if err != nil {
		return nil, err
	}
	if b.debug {
		for _, input := range slices.Sorted(maps.Keys(meta.Inputs)) {
			buildLog.Info().Str("input", input).Int("bytes", meta.Inputs[input].Bytes).Msg("Bundled input")
		}
	}

	contextDir, outputDir := b.desc.Context(), b.desc.OutputDir()
	emit := &plugins.Emit{
		Context:   contextDir,
		OutputDir: outputDir,
		Assets:    b.assets(result.OutputFiles, meta),
	}
	original := make([]string, len(emit.Assets))
	for i, a := range emit.Assets {
		original[i] = a.Path
	}

	for _, p := range b.plugins {
		if e, ok := p.(plugins.BeforeEmitter); ok {
			if err := e.BeforeEmit(ctx, emit); err != nil {
				return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
			}
		}
	}

	moved := make(map[string]string)
	for i, from := range original {
		if i < len(emit.Assets) && emit.Assets[i].Path != from {
			moved[from] = emit.Assets[i].Path
		}
	}

	var names []string
	for _, e := range b.desc.Entries() {
		names = append(names, e.Name)
	}
	manifest, err := buildManifest(meta, names, contextDir, outputDir, moved)
	if err != nil {
		return nil, err
	}

	if b.metafile != "" {
		emit.Assets = append(emit.Assets, plugins.Asset{
			Path:     filepath.Join(outputDir, filepath.FromSlash(b.metafile)),
			Kind:     plugins.KindOther,
			Contents: []byte(result.Metafile),
		})
	}
	if name := b.desc.Output().Manifest; name != "" {
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode manifest: %w", err)
		}
		emit.Assets = append(emit.Assets, plugins.Asset{
			Path:     filepath.Join(outputDir, filepath.FromSlash(name)),
			Kind:     plugins.KindOther,
			Contents: append(data, '\n'),
		})
	}

	for _, a := range emit.Assets {
		if err := writeAsset(a); err != nil {
			return nil, err
		}
		buildLog.Info().Str("file", a.Path).Str("entry", a.Entry).Int("bytes", len(a.Contents)).Msg("Built file")
	}

	for _, p := range b.plugins {
		if e, ok := p.(plugins.AfterEmitter); ok {
			if err := e.AfterEmit(ctx, emit); err != nil {
				return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
			}
		}
	}

	return &Result{
		Outputs:  emit.Assets,
		Metadata: meta,
		Manifest: manifest,
	}, nil
}

// assets classifies esbuild's output files and attributes them to entries.
func (b *Bundler) assets(files []api.OutputFile, meta *Metadata) []plugins.Asset {
	contextDir := b.desc.Context()
	assets := make([]plugins.Asset, 0, len(files))
	for _, f := range files {
		source := strings.TrimSuffix(f.Path, ".map")
		rel, err := filepath.Rel(contextDir, source)
		if err != nil {
			rel = source
		}
		entry, _ := meta.Entry(filepath.ToSlash(rel))

		assets = append(assets, plugins.Asset{
			Path:     f.Path,
			Entry:    entry,
			Kind:     kindOf(f.Path),
			Contents: f.Contents,
		})
	}
	return assets
}

func kindOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".mjs", ".cjs":
		return plugins.KindScript
	case ".css":
		return plugins.KindStylesheet
	case ".map":
		return plugins.KindSourceMap
	default:
		return plugins.KindOther
	}
}

func writeAsset(a plugins.Asset) error {
	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", a.Path, err)
	}
	if err := os.WriteFile(a.Path, a.Contents, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write %s: %w", a.Path, err)
	}
	return nil
}

// messagesError flattens esbuild messages into one error wrapping ErrBuildFailed.
func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs)+1)
	errs = append(errs, ErrBuildFailed)
	for _, msg := range msgs {
		errs = append(errs, errors.New(formatMessage(msg)))
	}
	return errors.Join(errs...)
}

func formatMessage(msg api.Message) string {
	text := msg.Text
	if msg.PluginName != "" {
		text = "[" + msg.PluginName + "] " + text
	}
	if loc := msg.Location; loc != nil {
		return fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, text)
	}
	return text
}

func logMessages(msgs []api.Message) {
	logger.LogMessages(log.Logger, zerolog.ErrorLevel, msgs)
}
