package loaders

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
)

const styleTemplate = `(function () {
  if (typeof document === "undefined") return;
  var style = document.createElement("style");
  style.setAttribute("data-sitepack", %s);
  style.appendChild(document.createTextNode(%s));
  document.head.appendChild(style);
})();
`

// style turns a stylesheet into a script that injects it into the page.
type style struct{}

func newStyle(Options) (Transformer, error) {
	return style{}, nil
}

func (style) Name() string { return "style-loader" }

func (style) Transform(_ context.Context, m Module) (Module, error) {
	if m.Loader != api.LoaderCSS {
		return Module{}, fmt.Errorf("%w: expected a stylesheet, got %s", ErrUnexpectedInput, loaderName(m.Loader))
	}

	id, err := json.Marshal(filepath.Base(m.Path))
	if err != nil {
		return Module{}, err
	}
	css, err := json.Marshal(m.Contents)
	if err != nil {
		return Module{}, err
	}

	return Module{
		Path:     m.Path,
		Contents: fmt.Sprintf(styleTemplate, id, css),
		Loader:   api.LoaderJS,
	}, nil
}
