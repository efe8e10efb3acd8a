package bot

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher reloads script modules when their files change on disk. It
// watches the containing directories rather than the files themselves:
// most editors replace a file on save, which kills a per-file watch.
type Watcher struct {
	bot *Bot
	log *log.Logger
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	modules map[string]string // absolute script path -> module name
	pending map[string]*time.Timer
}

func NewWatcher(b *Bot) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		bot:     b,
		log:     b.log.WithPrefix("watch"),
		fsw:     fsw,
		modules: make(map[string]string),
		pending: make(map[string]*time.Timer),
	}
	go w.run()
	return w, nil
}

// Watch ties a script file to the module it loaded.
func (w *Watcher) Watch(path, module string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	w.mu.Lock()
	w.modules[abs] = module
	w.mu.Unlock()
	return nil
}

// Forget drops the association for a script file. The directory watch
// stays; other scripts may live there.
func (w *Watcher) Forget(path string) {
	if abs, err := filepath.Abs(path); err == nil {
		w.mu.Lock()
		delete(w.modules, abs)
		w.mu.Unlock()
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			module, tracked := w.modules[abs]
			if tracked {
				// Editors emit bursts of writes; reload once the file
				// has been quiet for a moment.
				if t, ok := w.pending[abs]; ok {
					t.Stop()
				}
				w.pending[abs] = time.AfterFunc(watchDebounce, func() {
					w.mu.Lock()
					delete(w.pending, abs)
					w.mu.Unlock()
					w.reload(module)
				})
			}
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) reload(module string) {
	w.bot.Do(func() {
		if _, loaded := w.bot.modules[module]; !loaded {
			return
		}
		w.log.Info("script changed, reloading", "module", module)
		if err := w.bot.Reload(module); err != nil {
			w.log.Error("reload failed", "module", module, "err", err)
		}
	})
}
