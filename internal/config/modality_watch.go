package config

import (
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

// ModalityConfigWatcher reloads a GR00T-style modality config JSON document
// whenever its file changes on disk, so a long-running orchestrator process
// can pick up a revised joint-name mapping without a restart.
type ModalityConfigWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(jsonDoc string)
}

// NewModalityConfigWatcher starts watching path and invokes onLoad once
// immediately with the current contents (if the file exists), then again
// on every subsequent write.
func NewModalityConfigWatcher(path string, onLoad func(jsonDoc string)) (*ModalityConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	mw := &ModalityConfigWatcher{path: path, watcher: w, onLoad: onLoad}

	if data, err := os.ReadFile(path); err == nil {
		onLoad(string(data))
	}

	if err := w.Add(path); err != nil {
		// Some filesystems require watching the parent directory instead
		// of a not-yet-existing file; best-effort only, never fatal.
		logger.Warn("config: modality config watch failed, continuing without hot-reload", "path", path, "err", err)
	}

	go mw.run()
	return mw, nil
}

func (mw *ModalityConfigWatcher) run() {
	for {
		select {
		case event, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			data, err := os.ReadFile(mw.path)
			if err != nil {
				logger.Warn("config: modality config reload failed", "path", mw.path, "err", err)
				continue
			}
			mw.onLoad(string(data))
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config: modality config watcher error", "err", err)
		}
	}
}

func (mw *ModalityConfigWatcher) Close() error {
	return mw.watcher.Close()
}
