package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override replaces a single setting after all documents are merged.
type Override struct {
	Key   string
	Value any
}

// ParseOverrides parses KEY=value pairs. Values are read as YAML, so
// "1e-4" is a float, "[disk]" a list and "NCCL" a string.
func ParseOverrides(args []string) ([]Override, error) {
	overrides := make([]Override, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, fmt.Errorf("invalid override format: %s (expected KEY=value)", arg)
		}

		key := strings.TrimSpace(parts[0])
		value, err := parseOverrideValue(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		overrides = append(overrides, Override{Key: key, Value: value})
	}
	return overrides, nil
}

func parseOverrideValue(raw string) (any, error) {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return nil, err
	}
	if value == nil {
		return "", nil
	}
	return value, nil
}

// taskPath splits a TASK_CONFIG.* key into its path inside the task
// document.
func taskPath(key string) ([]string, bool) {
	parts := strings.Split(key, ".")
	if len(parts) < 2 || !strings.EqualFold(parts[0], taskConfigKey) {
		return nil, false
	}
	return parts[1:], true
}
