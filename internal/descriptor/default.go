package descriptor

// DefaultConfig returns the site's build: one bundle named main built from the
// site script and stylesheet, stylesheets injected at runtime by the script.
func DefaultConfig() Config {
	return Config{
		Entry: Entries{
			{
				Name: "main",
				Files: []string{
					"./source/javascripts/all.js",
					"./source/stylesheets/all.css.scss",
				},
			},
		},
		Output: Output{
			Path:     "tmp/dist",
			Filename: "source/javascripts/all.js",
		},
		Rules: []RuleConfig{
			{
				Test:    `\.(s*)css$`,
				Exclude: `node_modules|tmp|vendor`,
				Use:     []string{"style-loader", "css-loader"},
			},
			{
				Test:    `\.js?$`,
				Exclude: `node_modules`,
				Use:     []string{"babel-loader"},
			},
		},
		Plugins: []PluginSpec{
			{Name: "debug", Options: map[string]any{"debug": true}},
			{Name: "css-extract"},
			{Name: "clean"},
		},
	}
}

// Default returns the default descriptor anchored at context.
func Default(context string) (*Descriptor, error) {
	cfg := DefaultConfig()
	cfg.Context = context
	return New(cfg)
}
