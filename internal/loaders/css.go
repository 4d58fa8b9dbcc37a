package loaders

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

// assetLoaders inline the files a stylesheet references with url().
var assetLoaders = map[string]api.Loader{
	".png":   api.LoaderDataURL,
	".jpg":   api.LoaderDataURL,
	".jpeg":  api.LoaderDataURL,
	".gif":   api.LoaderDataURL,
	".webp":  api.LoaderDataURL,
	".svg":   api.LoaderDataURL,
	".woff":  api.LoaderDataURL,
	".woff2": api.LoaderDataURL,
	".ttf":   api.LoaderDataURL,
	".eot":   api.LoaderDataURL,
}

// cssLoader resolves a stylesheet's @import and url() references, producing a
// single self-contained stylesheet.
type cssLoader struct {
	minify bool
}

func newCSS(opts Options) (Transformer, error) {
	return &cssLoader{minify: opts.Minify}, nil
}

func (c *cssLoader) Name() string { return "css-loader" }

func (c *cssLoader) Transform(_ context.Context, m Module) (Module, error) {
	if m.Loader != api.LoaderCSS {
		return Module{}, fmt.Errorf("%w: expected a stylesheet, got %s", ErrUnexpectedInput, loaderName(m.Loader))
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   m.Contents,
			ResolveDir: filepath.Dir(m.Path),
			Sourcefile: m.Path,
			Loader:     api.LoaderCSS,
		},
		Bundle:           true,
		Write:            false,
		Loader:           assetLoaders,
		External:         []string{"/*"},
		MinifyWhitespace: c.minify,
		MinifySyntax:     c.minify,
		LogLevel:         api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return Module{}, messagesError(result.Errors)
	}
	if len(result.OutputFiles) == 0 {
		return Module{}, fmt.Errorf("%w: no stylesheet produced", ErrTransformFailed)
	}

	return Module{
		Path:     m.Path,
		Contents: string(result.OutputFiles[0].Contents),
		Loader:   api.LoaderCSS,
	}, nil
}
