package config

import (
	"sync"

	"github.com/delciotorres/pyroute2/log"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher loads a configuration file and reloads it whenever it changes.
type Watcher struct {
	sync.Mutex

	file            string
	watcher         *fsnotify.Watcher
	monitorExitChan chan bool

	// subscribe to this channel to receive the reloaded configuration.
	// Files that fail to parse or validate are logged and never sent.
	ReloadConfChan chan *Config
}

// NewWatcher prepares a watcher for the given file.
func NewWatcher(file string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warning("Error creating config watcher: %s", err)
		return nil, errors.Wrap(err, "creating config watcher")
	}
	return &Watcher{
		file:            file,
		watcher:         watcher,
		monitorExitChan: make(chan bool, 1),
		ReloadConfChan:  make(chan *Config, 1),
	}, nil
}

// File returns the watched path.
func (w *Watcher) File() string {
	return w.file
}

// Start loads the configuration for the first time and begins monitoring
// the file. The first load must succeed.
func (w *Watcher) Start() (*Config, error) {
	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	go w.monitorConfigWorker()
	return cfg, nil
}

func (w *Watcher) load() (*Config, error) {
	w.Lock()
	defer w.Unlock()

	if w.watcher == nil {
		return nil, errors.New("config watcher stopped")
	}
	cfg, err := Load(w.file)
	// the file is monitored regardless of whether it's valid or not,
	// giving the user a chance to fix it.
	w.watcher.Remove(w.file)
	if werr := w.watcher.Add(w.file); werr != nil {
		log.Error("Could not watch configuration %s: %s", w.file, werr)
		if err == nil {
			err = errors.Wrapf(werr, "watching %s", w.file)
		}
	}
	return cfg, err
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		log.Error("Error reloading configuration: %s", err)
		return
	}
	log.Info("configuration %s reloaded, %d sets", w.file, len(cfg.Sets))

	// keep only the newest configuration
	select {
	case <-w.ReloadConfChan:
	default:
	}
	w.ReloadConfChan <- cfg
}

// Stop ends the monitoring. ReloadConfChan is closed once the worker exits.
func (w *Watcher) Stop() {
	w.Lock()
	defer w.Unlock()

	if w.monitorExitChan != nil {
		w.monitorExitChan <- true
		w.monitorExitChan = nil
	}
	if w.watcher != nil {
		w.watcher.Remove(w.file)
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *Watcher) monitorConfigWorker() {
	w.Lock()
	exit := w.monitorExitChan
	events := w.watcher.Events
	errs := w.watcher.Errors
	w.Unlock()

	defer close(w.ReloadConfChan)
	for {
		select {
		case <-exit:
			goto Exit
		case event, ok := <-events:
			if !ok {
				goto Exit
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.reload()
			}
		case err, ok := <-errs:
			if !ok {
				goto Exit
			}
			log.Warning("config watcher error: %s", err)
		}
	}
Exit:
	log.Debug("stop monitoring config file %s", w.file)
}
