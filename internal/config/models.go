package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// modelsFile is the on-disk shape of a model chain override.
type modelsFile struct {
	Models []string `yaml:"models"`
}

// ResolveModels returns the fallback model chain in priority order. When
// MODELS_FILE is set the file contents replace the env-configured list, so
// operators can swap chains without re-deploying.
func (c Config) ResolveModels() ([]string, error) {
	if c.ModelsFile == "" {
		return c.Models, nil
	}
	b, err := os.ReadFile(c.ModelsFile)
	if err != nil {
		return nil, fmt.Errorf("op=config.resolve_models: %w", err)
	}
	var mf modelsFile
	if err := yaml.Unmarshal(b, &mf); err != nil {
		return nil, fmt.Errorf("op=config.resolve_models: %w", err)
	}
	if len(mf.Models) == 0 {
		return nil, fmt.Errorf("op=config.resolve_models: %s lists no models", c.ModelsFile)
	}
	return mf.Models, nil
}
