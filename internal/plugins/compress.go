package plugins

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Compression algorithms and the suffix of the files they write.
var algorithms = map[string]string{
	"gzip": ".gz",
	"zstd": ".zst",
}

// compress writes precompressed siblings of scripts and stylesheets so a
// static file server can hand them out directly.
type compress struct {
	algorithms []string
	threshold  int
}

type compressOptions struct {
	Algorithms []string `yaml:"algorithms"`
	Threshold  *int     `yaml:"threshold"`
}

func newCompress(options map[string]any) (Plugin, error) {
	var opts compressOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}

	c := &compress{algorithms: []string{"gzip"}, threshold: 1024}
	if len(opts.Algorithms) > 0 {
		c.algorithms = nil
		for _, a := range opts.Algorithms {
			if _, ok := algorithms[a]; !ok {
				return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidOptions, a)
			}
			if slices.Contains(c.algorithms, a) {
				return nil, fmt.Errorf("%w: algorithm %q listed twice", ErrInvalidOptions, a)
			}
			c.algorithms = append(c.algorithms, a)
		}
	}
	if opts.Threshold != nil {
		if *opts.Threshold < 0 {
			return nil, fmt.Errorf("%w: threshold must not be negative", ErrInvalidOptions)
		}
		c.threshold = *opts.Threshold
	}
	return c, nil
}

func (c *compress) Name() string { return "compress" }

func (c *compress) AfterEmit(ctx context.Context, emit *Emit) error {
	type job struct {
		asset     Asset
		algorithm string
	}

	var jobs []job
	for _, a := range emit.Assets {
		if a.Kind != KindScript && a.Kind != KindStylesheet {
			continue
		}
		if len(a.Contents) < c.threshold {
			continue
		}
		for _, alg := range c.algorithms {
			jobs = append(jobs, job{asset: a, algorithm: alg})
		}
	}

	results := make([]Asset, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := compressAsset(j.asset, j.algorithm)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	emit.Assets = append(emit.Assets, results...)
	return nil
}

func newEncoder(algorithm string, w io.Writer) (io.WriteCloser, error) {
	switch algorithm {
	case "gzip":
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case "zstd":
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidOptions, algorithm)
	}
}

// compressAsset writes a compressed copy of a next to it.
func compressAsset(a Asset, algorithm string) (Asset, error) {
	path := a.Path + algorithms[algorithm]

	dst, err := os.Create(path)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer dst.Close()

	enc, err := newEncoder(algorithm, dst)
	if err != nil {
		os.Remove(path)
		return Asset{}, fmt.Errorf("failed to create encoder: %w", err)
	}

	if _, err := io.Copy(enc, bytes.NewReader(a.Contents)); err != nil {
		if closeErr := enc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close encoder during error cleanup")
		}
		os.Remove(path)
		return Asset{}, fmt.Errorf("failed to compress %s: %w", a.Path, err)
	}

	// Close encoder to flush
	if err := enc.Close(); err != nil {
		os.Remove(path)
		return Asset{}, fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(path)
		return Asset{}, fmt.Errorf("failed to close %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	ratio := 0.0
	if len(a.Contents) > 0 {
		ratio = (1.0 - float64(info.Size())/float64(len(a.Contents))) * 100
	}

	log.Info().
		Str("file", path).
		Str("algorithm", algorithm).
		Int("original_bytes", len(a.Contents)).
		Int64("compressed_bytes", info.Size()).
		Float64("compression_ratio_pct", ratio).
		Msg("Compressed output")

	return Asset{Path: path, Entry: a.Entry, Kind: KindCompressed}, nil
}
