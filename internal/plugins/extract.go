package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/descriptor"
	"github.com/wolfeidau/sitepack/internal/loaders"
)

// extract enables mini-css-extract-loader and optionally renames the
// stylesheets it produces.
type extract struct {
	filename string
}

type extractOptions struct {
	// Filename is relative to the output directory and may contain [name].
	Filename string `yaml:"filename"`
}

func newExtract(options map[string]any) (Plugin, error) {
	var opts extractOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if opts.Filename != "" && (filepath.IsAbs(opts.Filename) || strings.Contains(opts.Filename, "..")) {
		return nil, fmt.Errorf("%w: filename %q must stay inside the output directory", ErrInvalidOptions, opts.Filename)
	}
	return &extract{filename: opts.Filename}, nil
}

func (e *extract) Name() string { return "css-extract" }

func (e *extract) ConfigureLoaders(opts *loaders.Options) {
	opts.Extract = true
}

func (e *extract) BeforeEmit(_ context.Context, emit *Emit) error {
	for i, a := range emit.Assets {
		if a.Kind != KindStylesheet || a.Entry == "" {
			continue
		}

		if e.filename != "" {
			name := strings.ReplaceAll(e.filename, descriptor.NamePlaceholder, a.Entry)
			emit.Assets[i].Path = filepath.Join(emit.OutputDir, filepath.FromSlash(name))
		}

		log.Info().
			Str("entry", a.Entry).
			Str("file", emit.Assets[i].Path).
			Int("bytes", len(a.Contents)).
			Msg("Extracted stylesheet")
	}
	return nil
}
