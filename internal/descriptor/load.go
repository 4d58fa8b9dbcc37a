package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// Load reads a descriptor file. The format is chosen by extension: .yaml, .yml
// and .json are decoded as YAML, .hcl as HCL. A relative or missing context is
// resolved against the file's directory.
func Load(filename string) (*Descriptor, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	cfg, err := Parse(filename, data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(filename)
	switch {
	case cfg.Context == "":
		cfg.Context = base
	case !filepath.IsAbs(cfg.Context):
		cfg.Context = filepath.Join(base, cfg.Context)
	}

	return New(cfg)
}

// Parse decodes descriptor file contents, using filename to pick the format.
func Parse(filename string, data []byte) (Config, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml", ".json":
		return parseYAML(filename, data)
	case ".hcl":
		return parseHCL(filename, data)
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

func parseYAML(filename string, data []byte) (Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode descriptor %s: %w", filename, err)
	}

	return cfg, nil
}

type hclFile struct {
	Context string      `hcl:"context,optional"`
	Entries []hclEntry  `hcl:"entry,block"`
	Output  *hclOutput  `hcl:"output,block"`
	Rules   []hclRule   `hcl:"rule,block"`
	Plugins []hclPlugin `hcl:"plugin,block"`
}

type hclEntry struct {
	Name  string   `hcl:"name,label"`
	Files []string `hcl:"files"`
}

type hclOutput struct {
	Path     string `hcl:"path"`
	Filename string `hcl:"filename"`
	Metafile string `hcl:"metafile,optional"`
	Manifest string `hcl:"manifest,optional"`
}

type hclRule struct {
	Test    string   `hcl:"test"`
	Include string   `hcl:"include,optional"`
	Exclude string   `hcl:"exclude,optional"`
	Use     []string `hcl:"use"`
}

type hclPlugin struct {
	Name    string         `hcl:"name,label"`
	Options hcl.Expression `hcl:"options,optional"`
}

func parseHCL(filename string, data []byte) (Config, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := Config{Context: parsed.Context}
	for _, e := range parsed.Entries {
		cfg.Entry = append(cfg.Entry, Entry{Name: e.Name, Files: e.Files})
	}
	if parsed.Output != nil {
		cfg.Output = Output{
			Path:     parsed.Output.Path,
			Filename: parsed.Output.Filename,
			Metafile: parsed.Output.Metafile,
			Manifest: parsed.Output.Manifest,
		}
	}
	for _, r := range parsed.Rules {
		cfg.Rules = append(cfg.Rules, RuleConfig(r))
	}
	for _, p := range parsed.Plugins {
		opts, err := pluginOptions(p.Options)
		if err != nil {
			return Config{}, fmt.Errorf("failed to decode options of plugin %q in %s: %w", p.Name, filename, err)
		}
		cfg.Plugins = append(cfg.Plugins, PluginSpec{Name: p.Name, Options: opts})
	}

	return cfg, nil
}

// pluginOptions converts an HCL object expression into plain Go values by way
// of its JSON form.
func pluginOptions(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsWhollyKnown() {
		return nil, fmt.Errorf("options must be known values")
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("options must be an object, got %s", val.Type().FriendlyName())
	}

	raw, err := ctyjson.SimpleJSONValue{Value: val}.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var opts map[string]any
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}
