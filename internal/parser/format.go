package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// Valid serialization formats
var validFormats = map[string]Format{
	"yaml": FormatYAML,
	"yml":  FormatYAML,
	"json": FormatJSON,
	"toml": FormatTOML,
}

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	format, ok := validFormats[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unsupported format: %s (supported: yaml, json, toml)", name)
	}
	return format, nil
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	format, ok := validFormats[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file format: .%s (supported: .yaml, .yml, .json, .toml)", ext)
	}
	return format, nil
}

// readDocument decodes a declarative document into a generic tree. Key
// case is preserved.
func readDocument(reader io.Reader, format Format) (map[string]any, error) {
	switch format {
	case FormatYAML:
		return readYAMLDocument(reader)
	case FormatJSON:
		return readJSONDocument(reader)
	case FormatTOML:
		return readTOMLDocument(reader)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func readDocumentFile(path string) (map[string]any, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	doc, err := readDocument(file, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

func readDocumentBytes(data []byte, format Format) (map[string]any, error) {
	return readDocument(bytes.NewReader(data), format)
}
