package commands

import (
	"context"
	"fmt"
	"strings"
)

type MatchCmd struct {
	Paths []string `arg:"" help:"Paths to match, relative to the descriptor context"`
}

func (c *MatchCmd) Run(ctx context.Context, globals *Globals) error {
	desc, err := globals.descriptor()
	if err != nil {
		return err
	}

	out := globals.stdout()
	for _, p := range c.Paths {
		rule, ok := desc.Match(p)
		if !ok {
			fmt.Fprintf(out, "%s: no rule, esbuild default loader\n", p)
			continue
		}
		fmt.Fprintf(out, "%s: rule %d (test %s) -> %s\n", p, rule.Index, rule.Test, strings.Join(rule.Use, ", "))
	}
	return nil
}
