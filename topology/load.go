package topology

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a scenario file encoding.
type Format string

// Supported formats.
const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	default:
		return "", fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}
}

// Load reads a scenario file. The format follows the file extension.
func Load(path string) (Spec, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Spec{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}

	spec, err := Decode(bytes.NewReader(data), format)
	if err != nil {
		return Spec{}, fmt.Errorf("%s: %w", path, err)
	}

	return spec, nil
}

// Decode parses a scenario. Unknown fields are rejected.
func Decode(r io.Reader, format Format) (Spec, error) {
	var spec Spec

	switch format {
	case YAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return Spec{}, err
		}
	case JSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return Spec{}, err
		}
	default:
		return Spec{}, fmt.Errorf("unsupported scenario format %q", format)
	}

	return spec, nil
}

// Encode writes a scenario.
func Encode(w io.Writer, spec Spec, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(spec); err != nil {
			return err
		}

		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(spec)
	default:
		return fmt.Errorf("unsupported scenario format %q", format)
	}
}

// Save writes a scenario file. The format follows the file extension.
func Save(path string, spec Spec) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Encode(f, spec, format); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
