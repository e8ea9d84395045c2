// Package output renders API payloads for the command line.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatRaw  = "raw"
)

// Formatter renders a JSON payload.
type Formatter interface {
	Format(payload json.RawMessage) (string, error)
}

// NewFormatter returns a Formatter for the given format name.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return &JSONFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatRaw:
		return &RawFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want json, yaml or raw)", format)
	}
}

// JSONFormatter renders the payload as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(payload json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return "", fmt.Errorf("format json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.String(), nil
}

// YAMLFormatter renders the payload as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(payload json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("format yaml: %w", err)
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("format yaml: %w", err)
	}
	return string(b), nil
}

// RawFormatter writes the payload exactly as received.
type RawFormatter struct{}

func (f *RawFormatter) Format(payload json.RawMessage) (string, error) {
	return string(payload) + "\n", nil
}
