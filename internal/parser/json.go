package parser

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/imishinist/ddppo-cli/internal/models"
)

func readJSONDocument(reader io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON document: %w", err)
	}

	doc := make(map[string]any)
	if len(data) == 0 {
		return doc, nil
	}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON document: %w", err)
	}

	return doc, nil
}

func ParseJSONTrace(reader io.Reader) (*models.Trace, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON trace: %w", err)
	}

	var trace models.Trace
	if err := sonic.Unmarshal(data, &trace); err != nil {
		return nil, fmt.Errorf("failed to parse JSON trace: %w", err)
	}

	return &trace, nil
}
