package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/sitepack/internal/bundler"
	"github.com/wolfeidau/sitepack/internal/descriptor"
)

type WatchCmd struct {
	BundleFlags `embed:""`

	ReloadTimeout time.Duration `help:"how long to retry loading a changed descriptor" default:"5s" env:"SITEPACK_RELOAD_TIMEOUT"`
}

func (c *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	globals.setupLogging()
	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting watch")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Received interrupt signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := c.startTelemetry(ctx, globals.Version)
	defer stop()

	desc, err := globals.descriptor()
	if err != nil {
		return err
	}

	var reloads <-chan *descriptor.Descriptor
	if globals.Config != "" {
		reloads, err = watchDescriptor(ctx, globals.Config, c.ReloadTimeout)
		if err != nil {
			return err
		}
	}

	for {
		next, err := c.watch(ctx, globals, desc, reloads)
		if err != nil || next == nil {
			return err
		}
		log.Info().Str("config", globals.Config).Msg("Descriptor changed, restarting")
		desc = next
	}
}

// watch runs the bundler in watch mode until ctx is done or a new descriptor
// arrives, which it returns.
func (c *WatchCmd) watch(ctx context.Context, globals *Globals, desc *descriptor.Descriptor, reloads <-chan *descriptor.Descriptor) (*descriptor.Descriptor, error) {
	b, err := bundler.New(desc, c.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bundler: %w", err)
	}
	defer b.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- b.Watch(watchCtx, func(res *bundler.Result, err error) {
			if err != nil {
				fmt.Fprintf(globals.stdout(), "build failed: %v\n", err)
				return
			}
			printResult(globals, b, res)
		})
	}()

	select {
	case err := <-errc:
		return nil, err
	case next := <-reloads:
		cancel()
		return next, <-errc
	case <-ctx.Done():
		cancel()
		return nil, <-errc
	}
}

// watchDescriptor reloads the descriptor at filename whenever it changes.
// Editors often replace files rather than writing them, so the parent
// directory is watched and a reload is retried until the file parses.
func watchDescriptor(ctx context.Context, filename string, timeout time.Duration) (<-chan *descriptor.Descriptor, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", filename, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	reloads := make(chan *descriptor.Descriptor)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Descriptor watcher error")
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}

				desc, err := reloadDescriptor(ctx, abs, timeout)
				if err != nil {
					log.Error().Err(err).Str("config", abs).Msg("Failed to reload descriptor, keeping the previous one")
					continue
				}

				select {
				case reloads <- desc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return reloads, nil
}

// reloadDescriptor retries loading filename while it is being written.
func reloadDescriptor(ctx context.Context, filename string, timeout time.Duration) (*descriptor.Descriptor, error) {
	return backoff.Retry(ctx, func() (*descriptor.Descriptor, error) {
		desc, err := descriptor.Load(filename)
		if errors.Is(err, descriptor.ErrUnsupportedFormat) {
			return nil, backoff.Permanent(err)
		}
		return desc, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("retry_in", next).Msg("Descriptor not ready")
		}),
	)
}
