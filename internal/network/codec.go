package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// Format is a network document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported network file extension %q", filepath.Ext(path))
	}
}

// Decode parses a network document.
func Decode(data []byte, format Format) (models.NetworkDocument, error) {
	var doc models.NetworkDocument
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return doc, fmt.Errorf("decode json network: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return doc, fmt.Errorf("decode yaml network: %w", err)
		}
	default:
		return doc, fmt.Errorf("unsupported network format %q", format)
	}
	return doc, nil
}

// Encode serializes a network document.
func Encode(doc models.NetworkDocument, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode yaml network: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported network format %q", format)
	}
}

// LoadFile reads, decodes and builds a network from a .json or .yaml file.
func LoadFile(path string) (*Network, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	n, err := FromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// WriteFile serializes n to path in the format implied by its extension.
func WriteFile(path string, n *Network) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Encode(n.Document(), format)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
