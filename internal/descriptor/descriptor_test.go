package descriptor

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Context: "/site",
		Entry: Entries{
			{Name: "main", Files: []string{"scripts/entry.js", "styles/entry.css"}},
		},
		Output: Output{Path: "dist", Filename: "bundle.js"},
		Rules: []RuleConfig{
			{Test: `\.css$`, Exclude: `node_modules|dist`, Use: []string{"style-loader", "css-loader"}},
			{Test: `\.js$`, Exclude: `vendor`, Use: []string{"babel-loader"}},
		},
		Plugins: []PluginSpec{
			{Name: "debug", Options: map[string]any{"debug": true}},
			{Name: "css-extract"},
			{Name: "clean"},
		},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "no entries",
			mutate:  func(cfg *Config) { cfg.Entry = nil },
			wantErr: ErrNoEntries,
		},
		{
			name:    "entry without files",
			mutate:  func(cfg *Config) { cfg.Entry[0].Files = nil },
			wantErr: ErrEmptyEntry,
		},
		{
			name:    "entry without name",
			mutate:  func(cfg *Config) { cfg.Entry[0].Name = "" },
			wantErr: ErrEmptyEntry,
		},
		{
			name:    "entry with empty path",
			mutate:  func(cfg *Config) { cfg.Entry[0].Files = []string{"scripts/entry.js", ""} },
			wantErr: ErrEmptyEntry,
		},
		{
			name: "duplicate entry",
			mutate: func(cfg *Config) {
				cfg.Output.Filename = "[name].js"
				cfg.Entry = append(cfg.Entry, Entry{Name: "main", Files: []string{"other.js"}})
			},
			wantErr: ErrDuplicateEntry,
		},
		{
			name:    "missing output path",
			mutate:  func(cfg *Config) { cfg.Output.Path = "" },
			wantErr: ErrNoOutput,
		},
		{
			name:    "missing output filename",
			mutate:  func(cfg *Config) { cfg.Output.Filename = "" },
			wantErr: ErrNoOutput,
		},
		{
			name:    "filename escapes output path",
			mutate:  func(cfg *Config) { cfg.Output.Filename = "../bundle.js" },
			wantErr: ErrInvalidOutput,
		},
		{
			name:    "absolute manifest",
			mutate:  func(cfg *Config) { cfg.Output.Manifest = "/etc/manifest.json" },
			wantErr: ErrInvalidOutput,
		},
		{
			name: "several entries need a name placeholder",
			mutate: func(cfg *Config) {
				cfg.Entry = append(cfg.Entry, Entry{Name: "admin", Files: []string{"admin.js"}})
			},
			wantErr: ErrInvalidOutput,
		},
		{
			name: "several entries with a name placeholder",
			mutate: func(cfg *Config) {
				cfg.Output.Filename = "[name].bundle.js"
				cfg.Entry = append(cfg.Entry, Entry{Name: "admin", Files: []string{"admin.js"}})
			},
		},
		{
			name:    "rule without test",
			mutate:  func(cfg *Config) { cfg.Rules[0].Test = "" },
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "rule with invalid test",
			mutate:  func(cfg *Config) { cfg.Rules[0].Test = `\.(css$` },
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "rule with invalid exclude",
			mutate:  func(cfg *Config) { cfg.Rules[1].Exclude = `vendor[` },
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "rule without transformers",
			mutate:  func(cfg *Config) { cfg.Rules[1].Use = nil },
			wantErr: ErrNoTransformers,
		},
		{
			name:    "rule with blank transformer",
			mutate:  func(cfg *Config) { cfg.Rules[1].Use = []string{"babel-loader", ""} },
			wantErr: ErrNoTransformers,
		},
		{
			name:    "rule excluding its own include",
			mutate:  func(cfg *Config) { cfg.Rules[1].Include = "vendor/scripts" },
			wantErr: ErrSelfDefeatingRule,
		},
		{
			name:   "rule including a directory it does not exclude",
			mutate: func(cfg *Config) { cfg.Rules[1].Include = "./src/" },
		},
		{
			name:    "unnamed plugin",
			mutate:  func(cfg *Config) { cfg.Plugins[1].Name = "" },
			wantErr: ErrUnnamedPlugin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			desc, err := New(cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				require.Nil(t, desc)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, desc)
		})
	}
}

func TestMatch(t *testing.T) {
	desc, err := New(validConfig())
	require.NoError(t, err)

	tests := []struct {
		name      string
		path      string
		wantMatch bool
		wantRule  int
	}{
		{name: "script", path: "src/app.js", wantMatch: true, wantRule: 1},
		{name: "script with dot prefix", path: "./src/app.js", wantMatch: true, wantRule: 1},
		{name: "absolute script in context", path: "/site/src/app.js", wantMatch: true, wantRule: 1},
		{name: "vendored script passes through", path: "vendor/lib.js", wantMatch: false},
		{name: "stylesheet", path: "styles/entry.css", wantMatch: true, wantRule: 0},
		{name: "stylesheet in dependency dir", path: "node_modules/pkg/reset.css", wantMatch: false},
		{name: "stylesheet in build output", path: "/site/dist/bundle.css", wantMatch: false},
		{name: "unmatched extension", path: "images/logo.png", wantMatch: false},
		{name: "outside the context", path: "/elsewhere/app.js", wantMatch: true, wantRule: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := desc.Match(tt.path)
			require.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				require.Equal(t, tt.wantRule, rule.Index)
			}

			again, okAgain := desc.Match(tt.path)
			require.Equal(t, ok, okAgain)
			require.Equal(t, rule.Index, again.Index)
			require.Equal(t, rule.Use, again.Use)
		})
	}
}

func TestMatchFirstRuleWins(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = []RuleConfig{
		{Test: `\.m?js$`, Use: []string{"babel-loader"}},
		{Test: `\.js$`, Use: []string{"import-glob-loader"}},
	}
	desc, err := New(cfg)
	require.NoError(t, err)

	rule, ok := desc.Match("src/app.js")
	require.True(t, ok)
	require.Equal(t, 0, rule.Index)
	require.Equal(t, []string{"babel-loader"}, rule.Use)
}

func TestMatchInclude(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = []RuleConfig{
		{Test: `\.js$`, Include: "src", Exclude: "vendor", Use: []string{"babel-loader"}},
	}
	desc, err := New(cfg)
	require.NoError(t, err)

	_, ok := desc.Match("src/app.js")
	require.True(t, ok)

	_, ok = desc.Match("srcs/app.js")
	require.False(t, ok)

	_, ok = desc.Match("src/vendor/lib.js")
	require.False(t, ok)
}

func TestPluginOrderPreserved(t *testing.T) {
	cfg := validConfig()
	cfg.Plugins = []PluginSpec{{Name: "clean"}, {Name: "compress"}, {Name: "debug"}, {Name: "css-extract"}}
	desc, err := New(cfg)
	require.NoError(t, err)

	var names []string
	for _, p := range desc.Plugins() {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"clean", "compress", "debug", "css-extract"}, names)
}

func TestDescriptorIsReadOnly(t *testing.T) {
	cfg := validConfig()
	desc, err := New(cfg)
	require.NoError(t, err)

	cfg.Entry[0].Files[0] = "changed.js"
	cfg.Plugins[0].Options["debug"] = false

	entries := desc.Entries()
	entries[0].Files[1] = "changed.css"
	rules := desc.Rules()
	rules[1].Use[0] = "sass-loader"
	plugins := desc.Plugins()
	plugins[0].Options["debug"] = false

	require.Equal(t, []string{"scripts/entry.js", "styles/entry.css"}, desc.Entries()[0].Files)
	require.Equal(t, []string{"babel-loader"}, desc.Rules()[1].Use)
	require.Equal(t, true, desc.Plugins()[0].Options["debug"])
}

func TestWithContext(t *testing.T) {
	desc, err := New(validConfig())
	require.NoError(t, err)

	moved := desc.WithContext("/other/")
	require.Equal(t, "/other", moved.Context())
	require.Equal(t, "/site", desc.Context())

	_, ok := moved.Match("/other/src/app.js")
	require.True(t, ok)
}

func TestOutputFile(t *testing.T) {
	cfg := validConfig()
	cfg.Output.Filename = "js/[name].js"
	cfg.Entry = append(cfg.Entry, Entry{Name: "admin", Files: []string{"admin.js"}})
	desc, err := New(cfg)
	require.NoError(t, err)

	require.Equal(t, filepath.Join("/site", "dist"), desc.OutputDir())
	require.Equal(t, filepath.Join("/site", "dist", "js", "main.js"), desc.OutputFile("main"))
	require.Equal(t, filepath.Join("/site", "dist", "js", "admin.js"), desc.OutputFile("admin"))
}

func TestValidateEntries(t *testing.T) {
	desc, err := New(validConfig())
	require.NoError(t, err)

	t.Run("all present", func(t *testing.T) {
		fsys := fstest.MapFS{
			"scripts/entry.js": {Data: []byte("console.log(1)")},
			"styles/entry.css": {Data: []byte("body{}")},
		}
		require.NoError(t, desc.ValidateEntries(fsys))
	})

	t.Run("missing stylesheet", func(t *testing.T) {
		fsys := fstest.MapFS{
			"scripts/entry.js": {Data: []byte("console.log(1)")},
		}
		err := desc.ValidateEntries(fsys)
		require.ErrorIs(t, err, ErrEntryNotFound)
		require.ErrorContains(t, err, "styles/entry.css")
		require.NotContains(t, err.Error(), "scripts/entry.js")
	})

	t.Run("directory instead of file", func(t *testing.T) {
		fsys := fstest.MapFS{
			"scripts/entry.js":       {Data: []byte("console.log(1)")},
			"styles/entry.css/x.css": {Data: []byte("body{}")},
		}
		require.ErrorIs(t, desc.ValidateEntries(fsys), ErrEntryNotFound)
	})

	t.Run("outside the context", func(t *testing.T) {
		cfg := validConfig()
		cfg.Entry[0].Files = []string{"../shared/entry.js"}
		outside, err := New(cfg)
		require.NoError(t, err)
		require.ErrorIs(t, outside.ValidateEntries(fstest.MapFS{}), ErrEntryNotFound)
	})
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := validConfig()
	desc, err := New(cfg)
	require.NoError(t, err)

	again, err := New(desc.Config())
	require.NoError(t, err)
	require.Equal(t, desc.Config(), again.Config())
	require.Equal(t, cfg.Rules, desc.Config().Rules)
}
