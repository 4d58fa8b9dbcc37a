package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

// sass compiles SCSS and indented Sass through an embedded Dart Sass process,
// started on first use and shared by every file in the build.
type sass struct {
	binary       string
	includePaths []string

	once       sync.Once
	transpiler *godartsass.Transpiler
	startErr   error
}

func newSass(opts Options) (Transformer, error) {
	binary := opts.SassBinary
	if binary == "" {
		binary = "sass"
	}
	return &sass{binary: binary, includePaths: opts.SassIncludePaths}, nil
}

func (s *sass) Name() string { return "sass-loader" }

func (s *sass) start() (*godartsass.Transpiler, error) {
	s.once.Do(func() {
		s.transpiler, s.startErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: s.binary,
			LogEventHandler: func(event godartsass.LogEvent) {
				log.Warn().Str("transformer", "sass-loader").Msg(event.Message)
			},
		})
		if s.startErr != nil {
			s.startErr = fmt.Errorf("failed to start dart sass %q: %w", s.binary, s.startErr)
		}
	})
	return s.transpiler, s.startErr
}

func (s *sass) Transform(_ context.Context, m Module) (Module, error) {
	if m.Loader != api.LoaderCSS {
		return Module{}, fmt.Errorf("%w: expected a stylesheet, got %s", ErrUnexpectedInput, loaderName(m.Loader))
	}

	transpiler, err := s.start()
	if err != nil {
		return Module{}, err
	}

	syntax := godartsass.SourceSyntaxSCSS
	switch strings.ToLower(filepath.Ext(m.Path)) {
	case ".sass":
		syntax = godartsass.SourceSyntaxSASS
	case ".css":
		syntax = godartsass.SourceSyntaxCSS
	}

	result, err := transpiler.Execute(godartsass.Args{
		Source:       m.Contents,
		SourceSyntax: syntax,
		OutputStyle:  godartsass.OutputStyleExpanded,
		IncludePaths: append([]string{filepath.Dir(m.Path)}, s.includePaths...),
	})
	if err != nil {
		return Module{}, fmt.Errorf("%w: %v", ErrTransformFailed, err)
	}

	return Module{
		Path:     m.Path,
		Contents: result.CSS,
		Loader:   api.LoaderCSS,
	}, nil
}

// Close stops the Dart Sass process if it was started.
func (s *sass) Close() error {
	if s.transpiler == nil {
		return nil
	}
	err := s.transpiler.Close()
	s.transpiler = nil
	return err
}
