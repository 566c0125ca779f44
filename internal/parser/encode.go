package parser

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/imishinist/ddppo-cli/internal/models"
)

// Marshal serializes cfg. Unmarshal of the output yields an equal record.
func Marshal(cfg *models.TrainerConfig, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		encoder := yaml.NewEncoder(&buf)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode YAML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := sonic.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode JSON: %w", err)
		}
		return append(data, '\n'), nil
	case FormatTOML:
		data, err := toml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode TOML: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// Unmarshal loads a single serialized record. TASK_CONFIG is taken from
// the document as is; BASE_TASK_CONFIG_PATH is not followed.
func Unmarshal(data []byte, format Format, opts ...LoadOption) (*models.TrainerConfig, error) {
	o := loadOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.loadTask = false

	doc, err := readDocumentBytes(data, format)
	if err != nil {
		return nil, err
	}
	return build([]map[string]any{doc}, nil, o)
}

// Flatten renders cfg as dotted key/value parameters. Lists are joined
// with commas.
func Flatten(cfg *models.TrainerConfig) (map[string]string, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to flatten configuration: %w", err)
	}

	params := make(map[string]string)
	for key, value := range flattenTree(tree) {
		params[key] = formatLeaf(value)
	}
	return params, nil
}
