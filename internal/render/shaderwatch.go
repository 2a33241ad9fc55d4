package render

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"otter/internal/frame"
)

// shaderSettle is how long the shader directory must stay quiet before a
// change is reported. A compiler truncates and then writes its output, and
// the first event would otherwise catch an empty file.
const shaderSettle = 150 * time.Millisecond

// shaderWatcher marks the pipeline stale whenever a compiled shader in dir
// changes, so the next frame rebuilds it.
type shaderWatcher struct {
	watcher *fsnotify.Watcher
	invalid *frame.Invalidation
	log     *slog.Logger
	settle  time.Duration
	done    chan struct{}
}

func watchShaders(dir string, invalid *frame.Invalidation, log *slog.Logger) (*shaderWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	sw := &shaderWatcher{watcher: w, invalid: invalid, log: log, settle: shaderSettle, done: make(chan struct{})}
	go sw.run()
	return sw, nil
}

func isShaderChange(ev fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".spv") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (s *shaderWatcher) run() {
	defer close(s.done)
	settled := time.NewTimer(s.settle)
	settled.Stop()
	defer settled.Stop()
	var changed []string
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if isShaderChange(ev) {
				if name := filepath.Base(ev.Name); !slices.Contains(changed, name) {
					changed = append(changed, name)
				}
				settled.Reset(s.settle)
			}
		case <-settled.C:
			s.log.Info("shaders changed", "files", changed)
			s.invalid.Mark(frame.ShadersChanged)
			changed = changed[:0]
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("shader watcher", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (s *shaderWatcher) Close() error {
	if s == nil {
		return nil
	}
	err := s.watcher.Close()
	<-s.done
	return err
}
