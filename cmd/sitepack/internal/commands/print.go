package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type PrintCmd struct {
	Format string `help:"output format" default:"yaml" enum:"yaml,json" env:"SITEPACK_PRINT_FORMAT"`
}

func (c *PrintCmd) Run(ctx context.Context, globals *Globals) error {
	desc, err := globals.descriptor()
	if err != nil {
		return err
	}

	out := globals.stdout()
	cfg := desc.Config()
	switch c.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
	default:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
	}
	return nil
}
