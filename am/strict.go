package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/notify/errors"
)

// CheckUnknownKeys decodes a TOML file strictly and returns every key that
// does not map onto Config, sorted. Typos like "timer.minimum_periodicity_minutes"
// would otherwise be ignored silently by viper.
func CheckUnknownKeys(path string) ([]string, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, key.String())
	}
	sort.Strings(unknown)
	return unknown, nil
}
