// Package descriptor declares a site build: the entry points to bundle, where
// the bundle is written, the ordered transformation rules applied to each
// source file and the ordered plugins applied to the whole build.
//
// A Descriptor is constructed once with New, which validates every field and
// compiles the rule patterns without touching the filesystem. After that it is
// read-only; accessors hand out copies.
package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// NamePlaceholder is substituted with the entry name in output filenames.
const NamePlaceholder = "[name]"

// Entry is a named bundle and the ordered source files it is built from.
type Entry struct {
	Name  string
	Files []string
}

// Output is where the bundle is written.
type Output struct {
	// Path is the output directory, relative to the context unless absolute.
	Path string `yaml:"path" json:"path"`
	// Filename is the bundle filename pattern, relative to Path.
	Filename string `yaml:"filename" json:"filename"`
	// Metafile optionally names a file, relative to Path, for esbuild's metafile.
	Metafile string `yaml:"metafile,omitempty" json:"metafile,omitempty"`
	// Manifest optionally names a file, relative to Path, mapping entries to outputs.
	Manifest string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
}

// RuleConfig declares a transformation rule.
type RuleConfig struct {
	Test    string   `yaml:"test" json:"test"`
	Include string   `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude string   `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	Use     []string `yaml:"use" json:"use"`
}

// PluginSpec names a plugin and the options it is constructed with.
type PluginSpec struct {
	Name    string         `yaml:"name" json:"name"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// Config is the raw, unvalidated declaration of a build.
type Config struct {
	Context string       `yaml:"context,omitempty" json:"context,omitempty"`
	Entry   Entries      `yaml:"entry" json:"entry"`
	Output  Output       `yaml:"output" json:"output"`
	Rules   []RuleConfig `yaml:"rules,omitempty" json:"rules,omitempty"`
	Plugins []PluginSpec `yaml:"plugins,omitempty" json:"plugins,omitempty"`
}

// Descriptor is a validated, immutable build declaration.
type Descriptor struct {
	context string
	entries []Entry
	output  Output
	rules   []Rule
	plugins []PluginSpec
}

// New validates cfg and returns the descriptor it declares.
func New(cfg Config) (*Descriptor, error) {
	if len(cfg.Entry) == 0 {
		return nil, ErrNoEntries
	}

	seen := make(map[string]bool, len(cfg.Entry))
	entries := make([]Entry, 0, len(cfg.Entry))
	for _, e := range cfg.Entry {
		if e.Name == "" || len(e.Files) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmptyEntry, e.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Name)
		}
		seen[e.Name] = true
		if slices.Contains(e.Files, "") {
			return nil, fmt.Errorf("%w: %q lists an empty path", ErrEmptyEntry, e.Name)
		}
		entries = append(entries, Entry{Name: e.Name, Files: slices.Clone(e.Files)})
	}

	if err := validateOutput(cfg.Output, len(entries)); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		r, err := compileRule(i, rc)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}

	plugins := make([]PluginSpec, 0, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: plugin %d", ErrUnnamedPlugin, i)
		}
		plugins = append(plugins, PluginSpec{Name: p.Name, Options: maps.Clone(p.Options)})
	}

	context := cfg.Context
	if context == "" {
		context = "."
	}

	return &Descriptor{
		context: filepath.Clean(context),
		entries: entries,
		output:  cfg.Output,
		rules:   rules,
		plugins: plugins,
	}, nil
}

func validateOutput(out Output, entries int) error {
	if out.Path == "" || out.Filename == "" {
		return ErrNoOutput
	}

	for _, name := range []string{out.Filename, out.Metafile, out.Manifest} {
		if name == "" {
			continue
		}
		if filepath.IsAbs(name) || !fs.ValidPath(path.Clean(filepath.ToSlash(name))) {
			return fmt.Errorf("%w: %q must be relative to the output path", ErrInvalidOutput, name)
		}
	}

	if entries > 1 && !strings.Contains(out.Filename, NamePlaceholder) {
		return fmt.Errorf("%w: filename %q must contain %s when %d entry points are declared",
			ErrInvalidOutput, out.Filename, NamePlaceholder, entries)
	}

	return nil
}

// WithContext returns a copy of the descriptor anchored at dir.
func (d *Descriptor) WithContext(dir string) *Descriptor {
	cp := *d
	cp.context = filepath.Clean(dir)
	return &cp
}

// Context returns the directory relative paths are resolved against.
func (d *Descriptor) Context() string {
	return d.context
}

// Entries returns the entry points in declaration order.
func (d *Descriptor) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	for i, e := range d.entries {
		out[i] = Entry{Name: e.Name, Files: slices.Clone(e.Files)}
	}
	return out
}

// Output returns the output location.
func (d *Descriptor) Output() Output {
	return d.output
}

// OutputDir returns the output directory resolved against the context.
func (d *Descriptor) OutputDir() string {
	return d.Resolve(d.output.Path)
}

// OutputFile returns the bundle path for the named entry.
func (d *Descriptor) OutputFile(entry string) string {
	name := strings.ReplaceAll(d.output.Filename, NamePlaceholder, entry)
	return filepath.Join(d.OutputDir(), filepath.FromSlash(name))
}

// Rules returns the transformation rules in declaration order.
func (d *Descriptor) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	for i, r := range d.rules {
		out[i] = r.clone()
	}
	return out
}

// Plugins returns the plugins in declaration order.
func (d *Descriptor) Plugins() []PluginSpec {
	out := make([]PluginSpec, len(d.plugins))
	for i, p := range d.plugins {
		out[i] = PluginSpec{Name: p.Name, Options: maps.Clone(p.Options)}
	}
	return out
}

// Config returns the declaration the descriptor was built from.
func (d *Descriptor) Config() Config {
	cfg := Config{
		Context: d.context,
		Entry:   d.Entries(),
		Output:  d.output,
		Plugins: d.Plugins(),
	}
	for _, r := range d.rules {
		cfg.Rules = append(cfg.Rules, RuleConfig{
			Test:    r.Test,
			Include: r.Include,
			Exclude: r.Exclude,
			Use:     slices.Clone(r.Use),
		})
	}
	return cfg
}

// Resolve joins a relative path onto the context directory.
func (d *Descriptor) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(d.context, filepath.FromSlash(p))
}

// Match returns the first rule that applies to p.
func (d *Descriptor) Match(p string) (Rule, bool) {
	rel := d.matchPath(p)
	for _, r := range d.rules {
		if r.applies(rel) {
			return r.clone(), true
		}
	}
	return Rule{}, false
}

// matchPath expresses p relative to the context with forward slashes. Paths
// outside the context keep their absolute form.
func (d *Descriptor) matchPath(p string) string {
	if !filepath.IsAbs(p) {
		return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "./")
	}

	rel, err := filepath.Rel(d.context, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(rel)
}

// ValidateEntries checks that every declared entry file exists in fsys, which
// is expected to be rooted at the context directory.
func (d *Descriptor) ValidateEntries(fsys fs.StatFS) error {
	var errs []error
	for _, e := range d.entries {
		for _, file := range e.Files {
			name := d.matchPath(file)
			if !fs.ValidPath(name) {
				errs = append(errs, fmt.Errorf("%w: %s (entry %q) is outside %s", ErrEntryNotFound, file, e.Name, d.context))
				continue
			}
			info, err := fsys.Stat(name)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s (entry %q)", ErrEntryNotFound, file, e.Name))
				continue
			}
			if info.IsDir() {
				errs = append(errs, fmt.Errorf("%w: %s (entry %q) is a directory", ErrEntryNotFound, file, e.Name))
			}
		}
	}
	return errors.Join(errs...)
}
