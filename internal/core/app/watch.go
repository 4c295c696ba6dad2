package app

import (
	"context"
	"path/filepath"
	"time"

	"externaltypes/internal/core/errors"
	"externaltypes/internal/core/watcher"
	"externaltypes/internal/shared/observability"
	"externaltypes/internal/shared/util"
)

const (
	DefaultWatchDebounce = 250 * time.Millisecond
	// minRerunInterval bounds how often a burst of saves re-runs rustdoc.
	minRerunInterval = time.Second
)

// watch audits once and then again after every debounced change to the
// crate, its config or the doc JSON. Audit failures are logged and the loop
// keeps going; it returns the last successful outcome when ctx is done.
func (s *Service) watch(ctx context.Context, opts Options) (Outcome, error) {
	var last Outcome
	if outcome, err := s.audit(ctx, opts); err != nil {
		s.logger.Error("audit failed", "error", err)
	} else {
		last = outcome
	}

	debounce := opts.WatchDebounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	reruns := make(chan struct{}, 1)
	w, err := watcher.NewWatcher(debounce, watcher.DefaultExcludeDirs, nil, func(paths []string) {
		s.logger.Debug("change detected", "paths", paths)
		select {
		case reruns <- struct{}{}:
		default:
			observability.WatcherRunsSkippedTotal.Inc()
		}
	})
	if err != nil {
		return last, err
	}
	defer w.Close()

	paths := watchPaths(opts)
	if len(paths) == 0 {
		return last, errors.New(errors.CodeValidationError, "nothing to watch: no manifest, config or doc JSON was found")
	}
	if err := w.Watch(paths); err != nil {
		return last, err
	}
	s.logger.Info("watching for changes")

	limiter := util.Every(minRerunInterval)
	for {
		select {
		case <-ctx.Done():
			return last, nil
		case <-reruns:
			if err := limiter.Wait(ctx, 1); err != nil {
				return last, nil
			}
			outcome, err := s.audit(ctx, opts)
			if err != nil {
				s.logger.Error("audit failed", "error", err)
				continue
			}
			last = outcome
		}
	}
}

// watchPaths picks what can change the audit result. With a prebuilt doc
// JSON only that file and the config inputs matter; otherwise the whole
// crate is watched so source edits rebuild the docs.
func watchPaths(opts Options) []string {
	var paths []string
	if opts.DocJSON != "" {
		paths = append(paths, opts.DocJSON)
		if opts.ManifestPath != "" {
			paths = append(paths, opts.ManifestPath)
		}
	} else if opts.ManifestPath != "" {
		paths = append(paths, filepath.Dir(opts.ManifestPath))
	}
	if opts.ConfigPath != "" {
		paths = append(paths, opts.ConfigPath)
	}
	return paths
}
