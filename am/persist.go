package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/teranos/notify/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string, log *zap.SugaredLogger) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Stale backups never block a save
		log.Warnw("Failed to delete old config backup", "path", back3, "error", err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// SetValue writes a dotted key into the TOML file at configPath, creating the
// file and intermediate tables as needed. The previous file is kept as .back1.
func SetValue(configPath, key string, value interface{}, log *zap.SugaredLogger) error {
	if configPath == "" {
		return errors.New("no config path to write")
	}
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return errors.NewInvalidRequestError("invalid config key %q", key)
		}
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	doc := map[string]interface{}{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configPath)
		}
	}

	table := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := table[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			table[p] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value

	if err := createBackup(configPath, log); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}

	log.Infow("Config value written", "key", key, "path", configPath)
	return nil
}
