package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/sitepack/internal/loaders"
)

// entryNamespace holds the synthetic modules that stand in for entry points.
const entryNamespace = "sitepack-entry"

// entryPlugin resolves each entry name to a module importing the entry files
// in declaration order.
func (b *Bundler) entryPlugin() api.Plugin {
	filter := "^" + regexp.QuoteMeta(entryNamespace) + ":"
	return api.Plugin{
		Name: entryNamespace,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: filter},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, entryNamespace+":"),
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents, err := b.entryModule(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: b.desc.Context(),
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

func (b *Bundler) entryModule(name string) (string, error) {
	for _, e := range b.desc.Entries() {
		if e.Name != name {
			continue
		}
		var sb strings.Builder
		for _, file := range e.Files {
			fmt.Fprintf(&sb, "import %q;\n", filepath.ToSlash(b.desc.Resolve(file)))
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("unknown entry point %q", name)
}

// rulesPlugin runs the pipeline of the first rule matching each loaded file.
// Files no rule applies to fall through to esbuild's own loaders.
func (b *Bundler) rulesPlugin(ctx context.Context) api.Plugin {
	return api.Plugin{
		Name: "sitepack-rules",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					rule, ok := b.desc.Match(args.Path)
					if !ok {
						return api.OnLoadResult{}, nil
					}

					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, fmt.Errorf("failed to read %s: %w", args.Path, err)
					}

					out, err := b.pipelines[rule.Index].Run(ctx, loaders.Module{
						Path:     args.Path,
						Contents: string(data),
						Loader:   loaders.LoaderFor(args.Path),
					})
					if err != nil {
						return api.OnLoadResult{}, fmt.Errorf("rule %d: %w", rule.Index, err)
					}

					return api.OnLoadResult{
						Contents:   &out.Contents,
						Loader:     out.Loader,
						ResolveDir: filepath.Dir(args.Path),
						WatchFiles: []string{args.Path},
					}, nil
				})
		},
	}
}

// emitPlugin hands every finished build to finish and reports the outcome.
func (b *Bundler) emitPlugin(ctx context.Context, report func(*Result, error)) api.Plugin {
	return api.Plugin{
		Name: "sitepack-emit",
		Setup: func(build api.PluginBuild) {
			var started time.Time
			build.OnStart(func() (api.OnStartResult, error) {
				started = time.Now()
				return api.OnStartResult{}, nil
			})
			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				res, err := b.finish(ctx, started, result)
				if report != nil {
					report(res, err)
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}
