package parser

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/imishinist/ddppo-cli/internal/models"
)

func readYAMLDocument(reader io.Reader) (map[string]any, error) {
	doc := make(map[string]any)
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML document: %w", err)
	}

	return doc, nil
}

func ParseYAMLTrace(reader io.Reader) (*models.Trace, error) {
	var data models.Trace
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse YAML trace: %w", err)
	}

	return &data, nil
}
