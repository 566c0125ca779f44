package parser

import (
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
)

func readTOMLDocument(reader io.Reader) (map[string]any, error) {
	doc := make(map[string]any)
	decoder := toml.NewDecoder(reader)

	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse TOML document: %w", err)
	}

	return doc, nil
}
