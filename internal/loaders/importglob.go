package loaders

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

var (
	styleImport  = regexp.MustCompile(`(?m)^([ \t]*)@import[ \t]+["']([^"']+)["'][ \t]*;?[ \t]*$`)
	scriptImport = regexp.MustCompile(`(?m)^([ \t]*)import[ \t]+["']([^"']+)["'][ \t]*;?[ \t]*$`)
)

// importGlob expands side-effect imports whose path is a glob into one import
// per matching file, relative to the importing file.
//
//	@import "partials/*.scss";   ->   @import "partials/_a.scss"; @import "partials/_b.scss";
type importGlob struct{}

func newImportGlob(Options) (Transformer, error) {
	return importGlob{}, nil
}

func (importGlob) Name() string { return "import-glob-loader" }

func (importGlob) Transform(ctx context.Context, m Module) (Module, error) {
	re, keyword := styleImport, "@import"
	if isScript(m.Loader) {
		re, keyword = scriptImport, "import"
	}

	dir := filepath.Dir(m.Path)
	var (
		out  strings.Builder
		last int
	)
	for _, loc := range re.FindAllStringSubmatchIndex(m.Contents, -1) {
		if err := ctx.Err(); err != nil {
			return Module{}, err
		}

		indent := m.Contents[loc[2]:loc[3]]
		spec := m.Contents[loc[4]:loc[5]]
		if !hasMeta(spec) {
			continue
		}

		matches, err := expandGlob(dir, spec, m.Path)
		if err != nil {
			return Module{}, err
		}

		out.WriteString(m.Contents[last:loc[0]])
		for i, match := range matches {
			if i > 0 {
				out.WriteByte('\n')
			}
			fmt.Fprintf(&out, "%s%s %q;", indent, keyword, match)
		}
		last = loc[1]
	}

	if last == 0 {
		return m, nil
	}
	out.WriteString(m.Contents[last:])

	m.Contents = out.String()
	return m, nil
}

func hasMeta(spec string) bool {
	return strings.ContainsAny(spec, "*?[{")
}

// expandGlob returns the files under dir matching spec, sorted, written the
// way spec is written. self is never included.
func expandGlob(dir, spec, self string) ([]string, error) {
	prefix := ""
	pattern := spec
	if strings.HasPrefix(pattern, "./") {
		prefix = "./"
		pattern = strings.TrimPrefix(pattern, "./")
	}

	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: invalid glob %q: %v", ErrTransformFailed, spec, err)
	}

	root := filepath.Join(dir, filepath.FromSlash(staticPrefix(pattern)))
	var matches []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == self {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if g.Match(rel) {
			matches = append(matches, prefix+rel)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to expand glob %q: %w", spec, err)
	}

	sort.Strings(matches)
	return matches, nil
}

// staticPrefix returns the leading directories of pattern that contain no glob
// syntax.
func staticPrefix(pattern string) string {
	segments := strings.Split(pattern, "/")
	static := make([]string, 0, len(segments))
	for _, s := range segments[:len(segments)-1] {
		if hasMeta(s) {
			break
		}
		static = append(static, s)
	}
	if len(static) == 0 {
		return "."
	}
	return path.Join(static...)
}
