package am

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/notify/am.toml
	SourceUser        ConfigSource = "user"        // ~/.notify/am.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // NOTIFY_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// GetConfigIntrospection returns every effective setting with the layer it came from
func GetConfigIntrospection() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, err
	}

	v := GetViper()
	keys := v.AllKeys()
	sort.Strings(keys)

	loadMu.Lock()
	sources := ConfigSources
	loadMu.Unlock()

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[key]; ok {
			info = si
		}

		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, ok := os.LookupEnv(envKey); ok {
			info = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		settings = append(settings, SettingInfo{
			Key:        key,
			Value:      v.Get(key),
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
	return settings, nil
}
