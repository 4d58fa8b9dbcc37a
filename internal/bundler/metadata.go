package bundler

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
)

// Metadata is the part of esbuild's metafile the bundler reads.
type Metadata struct {
	Inputs  map[string]InputInfo  `json:"inputs"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

type InputInfo struct {
	Bytes int `json:"bytes"`
}

type OutputInfo struct {
	EntryPoint string       `json:"entryPoint"`
	CSSBundle  string       `json:"cssBundle"`
	Imports    []ImportInfo `json:"imports"`
	Bytes      int          `json:"bytes"`
}

type ImportInfo struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

func parseMetadata(metafile string) (*Metadata, error) {
	var meta Metadata
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return &meta, nil
}

// Entry returns the entry name an output belongs to. Output paths are
// relative to the build context, as esbuild writes them.
func (m *Metadata) Entry(output string) (string, bool) {
	for _, key := range slices.Sorted(maps.Keys(m.Outputs)) {
		info := m.Outputs[key]
		name, ok := strings.CutPrefix(info.EntryPoint, entryNamespace+":")
		if !ok {
			continue
		}
		if key == output || info.CSSBundle == output {
			return name, true
		}
	}
	return "", false
}

// Files returns the outputs needed for the named entry: its bundle first,
// then its stylesheet and the chunks it imports.
func (m *Metadata) Files(entry string) []string {
	for _, key := range slices.Sorted(maps.Keys(m.Outputs)) {
		info := m.Outputs[key]
		if info.EntryPoint != entryNamespace+":"+entry {
			continue
		}
		files := []string{key}
		visited := map[string]bool{key: true}
		if info.CSSBundle != "" {
			files = append(files, info.CSSBundle)
			visited[info.CSSBundle] = true
		}
		m.addDependencies(info, &files, visited)
		return files
	}
	return nil
}

func (m *Metadata) addDependencies(output OutputInfo, files *[]string, visited map[string]bool) {
	for _, imp := range output.Imports {
		if visited[imp.Path] {
			continue
		}
		visited[imp.Path] = true
		*files = append(*files, imp.Path)

		if chunk, ok := m.Outputs[imp.Path]; ok {
			m.addDependencies(chunk, files, visited)
		}
	}
}

// Manifest maps entry names to their output files, relative to the output
// directory. A file the emit step moved is listed at its final location.
type Manifest map[string][]string

func buildManifest(meta *Metadata, entries []string, contextDir, outputDir string, moved map[string]string) (Manifest, error) {
	manifest := make(Manifest, len(entries))
	for _, name := range entries {
		files := []string{}
		for _, f := range meta.Files(name) {
			abs := filepath.Join(contextDir, filepath.FromSlash(f))
			if to, ok := moved[abs]; ok {
				abs = to
			}
			rel, err := filepath.Rel(outputDir, abs)
			if err != nil {
				return nil, fmt.Errorf("failed to relate %s to %s: %w", abs, outputDir, err)
			}
			files = append(files, filepath.ToSlash(rel))
		}
		manifest[name] = files
	}
	return manifest, nil
}
