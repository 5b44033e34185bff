package registry

import (
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"modeld/pkg/types"
)

// Watcher re-scans a models directory with LoadDir whenever fsnotify
// observes a create/remove/rename/write event in it, and hands the refreshed
// asset list to onChange. Grounded on the fsnotify.Watcher wiring in the
// AleutianLocal reference's file-lock manager, adapted from "watch a lock
// directory for external changes" to "watch a models directory for asset
// changes".
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func([]types.ModelAssets)
	done     chan struct{}
}

// NewWatcher starts watching dir and invokes onChange with a freshly loaded
// asset list on every create, remove, rename or write event; other event
// kinds (such as chmod) are ignored. The initial scan is performed
// synchronously before NewWatcher returns.
func NewWatcher(dir string, onChange func([]types.ModelAssets)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{dir: dir, watcher: fw, onChange: onChange, done: make(chan struct{})}

	if assets, err := LoadDir(dir); err == nil {
		onChange(assets)
	} else {
		log.Warn().Err(err).Str("dir", dir).Msg("registry: initial scan failed")
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			assets, err := LoadDir(w.dir)
			if err != nil {
				log.Warn().Err(err).Str("dir", w.dir).Msg("registry: rescan failed")
				continue
			}
			w.onChange(assets)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("dir", w.dir).Msg("registry: watcher error")
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
