package commands

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/wolfeidau/sitepack/internal/bundler"
)

type CheckCmd struct{}

// Run validates the descriptor, the transformers and plugins it names and
// that every entry file exists, without building.
func (c *CheckCmd) Run(ctx context.Context, globals *Globals) error {
	globals.setupLogging()

	desc, err := globals.descriptor()
	if err != nil {
		return err
	}

	b, err := bundler.New(desc)
	if err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	defer b.Close()

	desc = b.Descriptor()
	fsys, ok := os.DirFS(desc.Context()).(fs.StatFS)
	if !ok {
		return fmt.Errorf("context %s cannot be inspected", desc.Context())
	}
	if err := desc.ValidateEntries(fsys); err != nil {
		return err
	}

	out := globals.stdout()
	for _, e := range desc.Entries() {
		fmt.Fprintf(out, "entry %s -> %s\n", e.Name, desc.OutputFile(e.Name))
	}
	fmt.Fprintf(out, "%d rules, %d plugins: ok\n", len(desc.Rules()), len(desc.Plugins()))
	return nil
}
