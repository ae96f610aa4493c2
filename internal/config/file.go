package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ApplyFile 读取 YAML 配置文件，并把其中尚未由环境变量设置的键写入环境。
// 文件的键与环境变量同名，例如：
//
//	LLM_MODEL: mistralai/mixtral-8x7b-instruct
//	CLASSIFY_THRESHOLD: 3
func ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	for key, raw := range values {
		key = strings.TrimSpace(key)
		if key == "" || raw == nil {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}

		var value string
		switch v := raw.(type) {
		case string:
			value = v
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, fmt.Sprint(item))
			}
			value = strings.Join(items, ",")
		case map[string]any:
			return fmt.Errorf("config key %s: nested values are not supported", key)
		default:
			value = fmt.Sprint(v)
		}

		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("apply config key %s: %w", key, err)
		}
	}
	return nil
}
