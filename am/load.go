package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/notify/errors"
)

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
)

// ConfigSources records which file supplied each flattened key during the last load
var ConfigSources = map[string]SourceInfo{}

// Load reads the notify configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing and reloads)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold loadMu.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindEnvVars(v)

	SetDefaults(v)

	// system -> user -> project; env vars win over all of them
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// UserConfigDir returns ~/.notify
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".notify")
}

// UserConfigPath returns ~/.notify/am.toml
func UserConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "am.toml")
}

// FindProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

type configLayer struct {
	source ConfigSource
	path   string
}

// configLayers lists candidate files in precedence order (lowest first)
func configLayers() []configLayer {
	layers := []configLayer{{SourceSystem, "/etc/notify/am.toml"}}
	if p := UserConfigPath(); p != "" {
		layers = append(layers, configLayer{SourceUser, p})
	}
	if p := FindProjectConfig(); p != "" && p != UserConfigPath() {
		layers = append(layers, configLayer{SourceProject, p})
	}
	return layers
}

// mergeConfigFiles manually merges configuration files in the correct precedence order
func mergeConfigFiles(v *viper.Viper) {
	ConfigSources = map[string]SourceInfo{}

	for _, layer := range configLayers() {
		if _, err := os.Stat(layer.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(layer.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// MergeConfigMap keeps file values below env vars in viper's precedence
		if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range tempViper.AllKeys() {
			ConfigSources[key] = SourceInfo{Source: layer.source, Path: layer.path}
		}
	}
}

// ActiveConfigFiles returns the config files that exist, lowest precedence first
func ActiveConfigFiles() []string {
	var files []string
	for _, layer := range configLayers() {
		if _, err := os.Stat(layer.path); err == nil {
			files = append(files, layer.path)
		}
	}
	return files
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	return GetViper().GetInt(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.GetDatabasePath(), nil
}
