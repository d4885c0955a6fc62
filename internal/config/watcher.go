package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

const defaultDebounce = 100 * time.Millisecond

// JobChange is a schedule change of one job found in the config file
type JobChange struct {
	Name    string
	Cron    string
	Misfire bool
}

// Watcher monitors the config file via fsnotify and reports schedule
// changes of jobs that existed at start. Added or removed jobs need a
// restart and are only logged.
type Watcher struct {
	path     string
	onChange func(context.Context, []JobChange)
	logger   *logger.Logger
	debounce time.Duration

	mu    sync.Mutex
	jobs  map[string]JobConfig
	timer *time.Timer
}

// NewWatcher creates a watcher over the config file at path. jobs is the
// job list the process started with.
func NewWatcher(path string, jobs []JobConfig, onChange func(context.Context, []JobChange), log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	known := make(map[string]JobConfig, len(jobs))
	for _, job := range jobs {
		known[job.Name] = job
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		logger:   log,
		debounce: defaultDebounce,
		jobs:     known,
	}
}

// Run watches the directory of the config file until ctx is done. The
// directory is watched so editors that replace the file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().
				Err(err).
				Str("action", "config_watch_error").
				Msg("Config watcher error")
		}
	}
}

func (w *Watcher) debounceReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.reload(ctx)
	})
}

// reload re-reads the file and reports jobs whose schedule changed
func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	jobs, err := LoadJobs(w.path)
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("action", "config_reload_failed").
			Str("path", w.path).
			Msg("Failed to reload config file")
		return
	}

	changes := w.diff(jobs)
	if len(changes) == 0 {
		return
	}
	w.logger.Info().
		Str("action", "config_reloaded").
		Int("changed_jobs", len(changes)).
		Msg("Job schedules changed in config file")
	w.onChange(ctx, changes)
}

func (w *Watcher) diff(jobs []JobConfig) []JobChange {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []JobChange
	for _, job := range jobs {
		prev, ok := w.jobs[job.Name]
		if !ok {
			w.logger.Warn().
				Str("action", "config_job_added").
				Str("job_name", job.Name).
				Msg("New job in config file is ignored until restart")
			continue
		}
		if prev.Cron == job.Cron && prev.Misfire == job.Misfire {
			continue
		}
		prev.Cron, prev.Misfire = job.Cron, job.Misfire
		w.jobs[job.Name] = prev
		changes = append(changes, JobChange{Name: job.Name, Cron: job.Cron, Misfire: job.Misfire})
	}
	return changes
}
