package loaders

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// extract hands a stylesheet to esbuild as CSS so that it is written to a
// separate stylesheet beside the bundle instead of being injected.
type extract struct{}

func newExtract(opts Options) (Transformer, error) {
	if !opts.Extract {
		return nil, ErrExtractDisabled
	}
	return extract{}, nil
}

func (extract) Name() string { return "mini-css-extract-loader" }

func (extract) Transform(_ context.Context, m Module) (Module, error) {
	if m.Loader != api.LoaderCSS {
		return Module{}, fmt.Errorf("%w: expected a stylesheet, got %s", ErrUnexpectedInput, loaderName(m.Loader))
	}
	return m, nil
}
