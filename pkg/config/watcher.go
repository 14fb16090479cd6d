package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// DefaultDebounce coalesces bursts of editor writes into one reload.
const DefaultDebounce = 300 * time.Millisecond

// Watch calls onChange after any of paths is written, created, renamed or
// removed, debounced. Directories are watched with all their subdirectories.
// Files are watched through their parent directory so that editors that
// replace files on save are followed. Watch blocks until ctx is done.
func Watch(ctx context.Context, paths []string, debounce time.Duration, logger *telemetry.Logger, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	log := logger.NewComponentLogger("config-watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	var roots []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			log.WithError(err).WithField("path", abs).Warn("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			roots = append(roots, abs)
			err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					dirs[p] = true
					return watcher.Add(p)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", abs, err)
			}
			continue
		}

		files[abs] = true
		parent := filepath.Dir(abs)
		if !dirs[parent] {
			if err := watcher.Add(parent); err != nil {
				return fmt.Errorf("failed to watch %s: %w", parent, err)
			}
			dirs[parent] = true
		}
	}

	log.WithField("paths", len(paths)).Debug("Started watching configuration")

	relevant := func(name string) bool {
		if files[name] {
			return true
		}
		for _, root := range roots {
			if strings.HasPrefix(name, root+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !relevant(event.Name) {
				continue
			}
			log.WithField("file", event.Name).WithField("op", event.Op.String()).Debug("Configuration changed")

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() == nil {
					onChange()
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("Watcher error")
		}
	}
}
