package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// writeFormatted renders v as json, yaml or toml
func writeFormatted(w io.Writer, format string, v interface{}) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case "json":
		data, err = json.MarshalIndent(v, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case "yaml":
		data, err = yaml.Marshal(v)
	case "toml":
		data, err = toml.Marshal(v)
	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal to %s: %w", format, err)
	}
	_, err = w.Write(data)
	return err
}
