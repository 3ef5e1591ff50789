package am

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
)

// ConfigWatcher watches config files for changes and triggers reload callbacks
type ConfigWatcher struct {
	configPath      string
	watcher         *fsnotify.Watcher
	logger          *zap.SugaredLogger
	callbacks       []ReloadCallback
	mu              sync.RWMutex
	debounceTimer   *time.Timer
	debouncePeriod  time.Duration
	isOwnWrite      bool // Flag to prevent reload loops
	isOwnWriteMutex sync.Mutex
	done            chan struct{}
}

// ReloadCallback is called when config is reloaded
// Receives the new config and returns any error
type ReloadCallback func(*Config) error

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher creates a new config file watcher.
// The parent directory is watched so editors that replace the file are seen.
func NewConfigWatcher(configPath string, logger *zap.SugaredLogger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		return nil, errors.Wrapf(err, "failed to watch config directory for %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		watcher:        watcher,
		logger:         logger,
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}, nil
}

// SetDebounce overrides the default 500ms debounce window
func (cw *ConfigWatcher) SetDebounce(d time.Duration) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.debouncePeriod = d
}

// OnReload registers a callback to be called when config is reloaded
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite marks the next write as coming from us (prevents reload loops)
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()
	cw.isOwnWrite = true
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.isOwnWriteMutex.Lock()
	defer cw.isOwnWriteMutex.Unlock()

	if cw.isOwnWrite {
		cw.isOwnWrite = false
		return true
	}
	return false
}

// Start begins watching for config file changes
func (cw *ConfigWatcher) Start() {
	go cw.watchLoop()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath || isBackupFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if cw.checkOwnWrite() {
				cw.logger.Debugw("Config watcher ignoring own write", "file", event.Name)
				continue
			}

			cw.logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces rapid file changes and triggers reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}

	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			cw.logger.Errorw("Config reload failed", "error", err)
		}
	})
}

// reload reloads the configuration and calls all callbacks
func (cw *ConfigWatcher) reload() error {
	Reset()

	newConfig, err := Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := newConfig.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid, keeping previous settings")
	}

	cw.logger.Infow("Config reloaded successfully", "path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(newConfig); err != nil {
			// Continue calling other callbacks even if one fails
			cw.logger.Warnw("Config reload callback error", "error", err)
		}
	}

	return nil
}

// Stop stops watching for config changes
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()

	select {
	case <-cw.done:
	default:
		close(cw.done)
	}
	return cw.watcher.Close()
}

// isBackupFile checks if the file is a backup file (.back1, .back2, .back3)
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back")
}

// SetGlobalWatcher sets the global watcher instance (used to prevent reload loops)
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
