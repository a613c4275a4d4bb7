package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/virtual-companion/internal/domain"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// LoadSeed reads a hand-written persona file and overlays it on the
// built-in default persona. JSON files may carry comments and trailing
// commas; .yaml/.yml files are parsed as YAML. An empty path returns the
// default persona.
func LoadSeed(path string) (domain.Persona, error) {
	persona := domain.DefaultPersona()
	if path == "" {
		return persona, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Persona{}, fmt.Errorf("read persona seed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &persona); err != nil {
			return domain.Persona{}, fmt.Errorf("parse persona seed %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &persona); err != nil {
			return domain.Persona{}, fmt.Errorf("parse persona seed %s: %w", path, err)
		}
	}

	if persona.ContextMode != "" && !persona.ContextMode.Valid() {
		return domain.Persona{}, fmt.Errorf("persona seed %s: unknown context mode %q", path, persona.ContextMode)
	}
	persona.Normalize()
	return persona, nil
}
