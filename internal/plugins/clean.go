package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// clean empties the output directory before a build writes to it. Files
// matching one of the keep globs, relative to the output directory, survive.
type clean struct {
	keep     []glob.Glob
	patterns []string
	dry      bool
}

type cleanOptions struct {
	Keep []string `yaml:"keep"`
	Dry  bool     `yaml:"dry"`
}

func newClean(options map[string]any) (Plugin, error) {
	var opts cleanOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}

	c := &clean{patterns: opts.Keep, dry: opts.Dry}
	for _, pattern := range opts.Keep {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: keep pattern %q: %v", ErrInvalidOptions, pattern, err)
		}
		c.keep = append(c.keep, g)
	}
	return c, nil
}

func (c *clean) Name() string { return "clean" }

func (c *clean) BeforeEmit(ctx context.Context, emit *Emit) error {
	dir := filepath.Clean(emit.OutputDir)
	if err := checkCleanable(dir, filepath.Clean(emit.Context)); err != nil {
		return err
	}

	var (
		removed int
		dirs    []string
	)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		if c.kept(filepath.ToSlash(rel)) {
			return nil
		}

		removed++
		if c.dry {
			log.Info().Str("file", p).Msg("Would remove stale output")
			return nil
		}
		log.Debug().Str("file", p).Msg("Removing stale output")
		return os.Remove(p)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to clean %s: %w", dir, err)
	}

	if !c.dry {
		// deepest first so parents are empty by the time they are visited
		slices.Reverse(dirs)
		for _, d := range dirs {
			entries, err := os.ReadDir(d)
			if err != nil || len(entries) > 0 {
				continue
			}
			if err := os.Remove(d); err != nil {
				return fmt.Errorf("failed to remove %s: %w", d, err)
			}
		}
	}

	log.Info().Str("dir", dir).Int("removed", removed).Strs("keep", c.patterns).Msg("Cleaned output directory")
	return nil
}

func (c *clean) kept(rel string) bool {
	for _, g := range c.keep {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// checkCleanable rejects the filesystem root, the context directory and any
// of its parents.
func checkCleanable(dir, context string) error {
	if dir == "" || dir == "." || dir == string(filepath.Separator) || filepath.Dir(dir) == dir {
		return fmt.Errorf("%w: %q", ErrUnsafeClean, dir)
	}
	if context == "" {
		return nil
	}
	if dir == context || strings.HasPrefix(context, dir+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s contains the build context %s", ErrUnsafeClean, dir, context)
	}
	return nil
}
