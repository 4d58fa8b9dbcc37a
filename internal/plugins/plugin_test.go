package plugins

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/sitepack/internal/descriptor"
	"github.com/wolfeidau/sitepack/internal/loaders"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewAllKeepsOrder(t *testing.T) {
	specs := []descriptor.PluginSpec{
		{Name: "clean"},
		{Name: "debug", Options: map[string]any{"debug": true}},
		{Name: "compress", Options: map[string]any{"algorithms": []any{"zstd"}}},
		{Name: "css-extract"},
	}

	ps, err := NewAll(specs)
	require.NoError(t, err)

	var names []string
	for _, p := range ps {
		names = append(names, p.Name())
	}
	require.Equal(t, []string{"clean", "debug", "compress", "css-extract"}, names)
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    descriptor.PluginSpec
		wantErr error
	}{
		{
			name:    "unknown plugin",
			spec:    descriptor.PluginSpec{Name: "html"},
			wantErr: ErrUnknownPlugin,
		},
		{
			name:    "unknown option",
			spec:    descriptor.PluginSpec{Name: "debug", Options: map[string]any{"verbose": true}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "wrong option type",
			spec:    descriptor.PluginSpec{Name: "debug", Options: map[string]any{"debug": "loud"}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "bad keep glob",
			spec:    descriptor.PluginSpec{Name: "clean", Options: map[string]any{"keep": []any{"[a-"}}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "unknown compression",
			spec:    descriptor.PluginSpec{Name: "compress", Options: map[string]any{"algorithms": []any{"brotli"}}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "duplicate compression",
			spec:    descriptor.PluginSpec{Name: "compress", Options: map[string]any{"algorithms": []any{"gzip", "zstd", "gzip"}}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "negative threshold",
			spec:    descriptor.PluginSpec{Name: "compress", Options: map[string]any{"threshold": -1}},
			wantErr: ErrInvalidOptions,
		},
		{
			name:    "extract filename escaping output",
			spec:    descriptor.PluginSpec{Name: "css-extract", Options: map[string]any{"filename": "../[name].css"}},
			wantErr: ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDebug(t *testing.T) {
	p, err := New(descriptor.PluginSpec{Name: "debug", Options: map[string]any{"debug": true}})
	require.NoError(t, err)

	lopts := loaders.DefaultOptions()
	p.(LoaderConfigurer).ConfigureLoaders(&lopts)
	require.True(t, lopts.Debug)

	bopts := api.BuildOptions{LogLevel: api.LogLevelSilent}
	p.(BuildConfigurer).ConfigureBuild(&bopts)
	require.Equal(t, api.LogLevelSilent, bopts.LogLevel)
	require.True(t, bopts.KeepNames)

	quiet, err := New(descriptor.PluginSpec{Name: "debug", Options: map[string]any{"debug": false}})
	require.NoError(t, err)
	lopts = loaders.Options{Debug: true}
	quiet.(LoaderConfigurer).ConfigureLoaders(&lopts)
	require.False(t, lopts.Debug)
	bopts = api.BuildOptions{LogLevel: api.LogLevelSilent}
	quiet.(BuildConfigurer).ConfigureBuild(&bopts)
	require.Equal(t, api.LogLevelSilent, bopts.LogLevel)
	require.False(t, bopts.KeepNames)
}

func TestExtract(t *testing.T) {
	p, err := New(descriptor.PluginSpec{Name: "css-extract", Options: map[string]any{"filename": "css/[name].css"}})
	require.NoError(t, err)

	lopts := loaders.DefaultOptions()
	p.(LoaderConfigurer).ConfigureLoaders(&lopts)
	require.True(t, lopts.Extract)

	emit := &Emit{
		OutputDir: "/site/dist",
		Assets: []Asset{
			{Path: "/site/dist/main.js", Entry: "main", Kind: KindScript},
			{Path: "/site/dist/main.css", Entry: "main", Kind: KindStylesheet},
			{Path: "/site/dist/chunk.css", Kind: KindStylesheet},
		},
	}
	require.NoError(t, p.(BeforeEmitter).BeforeEmit(context.Background(), emit))
	require.Equal(t, "/site/dist/main.js", emit.Assets[0].Path)
	require.Equal(t, filepath.Join("/site/dist", "css", "main.css"), emit.Assets[1].Path)
	require.Equal(t, "/site/dist/chunk.css", emit.Assets[2].Path)
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist")
	writeFile(t, filepath.Join(out, "old.js"), "old")
	writeFile(t, filepath.Join(out, "nested", "old.css"), "old")
	writeFile(t, filepath.Join(out, "index.html"), "<html>")
	writeFile(t, filepath.Join(out, "static", "robots.txt"), "")

	p, err := New(descriptor.PluginSpec{Name: "clean", Options: map[string]any{"keep": []any{"*.html", "static/**"}}})
	require.NoError(t, err)

	err = p.(BeforeEmitter).BeforeEmit(context.Background(), &Emit{Context: root, OutputDir: out})
	require.NoError(t, err)

	require.NoFileExists(t, filepath.Join(out, "old.js"))
	require.NoDirExists(t, filepath.Join(out, "nested"))
	require.FileExists(t, filepath.Join(out, "index.html"))
	require.FileExists(t, filepath.Join(out, "static", "robots.txt"))
	require.DirExists(t, out)
}

func TestCleanDryRun(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist")
	writeFile(t, filepath.Join(out, "old.js"), "old")

	p, err := New(descriptor.PluginSpec{Name: "clean", Options: map[string]any{"dry": true}})
	require.NoError(t, err)

	require.NoError(t, p.(BeforeEmitter).BeforeEmit(context.Background(), &Emit{Context: root, OutputDir: out}))
	require.FileExists(t, filepath.Join(out, "old.js"))
}

func TestCleanMissingDirectory(t *testing.T) {
	root := t.TempDir()

	p, err := New(descriptor.PluginSpec{Name: "clean"})
	require.NoError(t, err)

	require.NoError(t, p.(BeforeEmitter).BeforeEmit(context.Background(), &Emit{Context: root, OutputDir: filepath.Join(root, "dist")}))
}

func TestCleanRefusesUnsafeDirectories(t *testing.T) {
	root := t.TempDir()

	p, err := New(descriptor.PluginSpec{Name: "clean"})
	require.NoError(t, err)
	cleaner := p.(BeforeEmitter)

	for _, dir := range []string{root, filepath.Dir(root), string(filepath.Separator)} {
		err := cleaner.BeforeEmit(context.Background(), &Emit{Context: root, OutputDir: dir})
		require.ErrorIs(t, err, ErrUnsafeClean, dir)
	}
}

func TestCompress(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("console.log('sitepack');\n", 200)
	script := filepath.Join(root, "main.js")
	small := filepath.Join(root, "tiny.css")
	writeFile(t, script, big)
	writeFile(t, small, "a{}")

	p, err := New(descriptor.PluginSpec{Name: "compress", Options: map[string]any{
		"algorithms": []any{"gzip", "zstd"},
		"threshold":  512,
	}})
	require.NoError(t, err)

	emit := &Emit{
		OutputDir: root,
		Assets: []Asset{
			{Path: script, Entry: "main", Kind: KindScript, Contents: []byte(big)},
			{Path: small, Entry: "main", Kind: KindStylesheet, Contents: []byte("a{}")},
			{Path: script + ".map", Entry: "main", Kind: KindSourceMap, Contents: []byte(big)},
		},
	}
	require.NoError(t, p.(AfterEmitter).AfterEmit(context.Background(), emit))

	require.Len(t, emit.Assets, 5)
	require.Equal(t, script+".gz", emit.Assets[3].Path)
	require.Equal(t, script+".zst", emit.Assets[4].Path)
	require.Equal(t, KindCompressed, emit.Assets[3].Kind)
	require.NoFileExists(t, small+".gz")
	require.NoFileExists(t, script+".map.gz")

	gz, err := os.Open(script + ".gz")
	require.NoError(t, err)
	defer gz.Close()
	gr, err := gzip.NewReader(gz)
	require.NoError(t, err)
	plain, err := io.ReadAll(gr)
	require.NoError(t, err)
	require.Equal(t, big, string(plain))

	raw, err := os.ReadFile(script + ".zst")
	require.NoError(t, err)
	dec, err := zstd.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer dec.Close()
	plain, err = io.ReadAll(dec)
	require.NoError(t, err)
	require.Equal(t, big, string(plain))
}

func TestCompressDefaults(t *testing.T) {
	p, err := New(descriptor.PluginSpec{Name: "compress"})
	require.NoError(t, err)

	c := p.(*compress)
	require.Equal(t, []string{"gzip"}, c.algorithms)
	require.Equal(t, 1024, c.threshold)
}
