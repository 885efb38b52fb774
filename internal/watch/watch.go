// Package watch re-runs a task whenever a file changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// Config controls File.
type Config struct {
	Path     string
	Debounce time.Duration
	Logger   *zerolog.Logger
}

// File watches cfg.Path and calls fn once changes to it have been quiet for
// the debounce interval. The parent directory is watched rather than the file
// so writers that replace the file by rename are still seen. fn runs on the
// watching goroutine, so calls never overlap; an error from fn is logged and
// watching continues. File returns nil when ctx is canceled.
func File(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if cfg.Path == "" {
		return errors.New("watch: empty path")
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	dir, base := filepath.Split(filepath.Clean(cfg.Path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Info().Str("path", cfg.Path).Dur("debounce", debounce).Msg("watching for changes")

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watch stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watch: events channel closed")
			}
			if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			log.Trace().Str("op", ev.Op.String()).Msg("change detected")
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}

		case <-fire:
			log.Debug().Str("path", cfg.Path).Msg("change settled, re-running")
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Msg("re-run failed")
			}

		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watch: errors channel closed")
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}
