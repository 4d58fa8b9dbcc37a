package loaders

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
)

// babel lowers modern script syntax to the configured target.
type babel struct {
	target api.Target
}

func newBabel(opts Options) (Transformer, error) {
	target := opts.Target
	if target == api.DefaultTarget {
		target = api.ES2015
	}
	return &babel{target: target}, nil
}

func (b *babel) Name() string { return "babel-loader" }

func (b *babel) Transform(_ context.Context, m Module) (Module, error) {
	if !isScript(m.Loader) {
		return Module{}, fmt.Errorf("%w: expected a script, got %s", ErrUnexpectedInput, loaderName(m.Loader))
	}

	result := api.Transform(m.Contents, api.TransformOptions{
		Loader:     m.Loader,
		Target:     b.target,
		Sourcefile: m.Path,
		JSX:        api.JSXAutomatic,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return Module{}, messagesError(result.Errors)
	}

	return Module{
		Path:     m.Path,
		Contents: string(result.Code),
		Loader:   api.LoaderJS,
	}, nil
}
