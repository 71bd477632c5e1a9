// Package promptoverride reads prompts/<ProducerAlias>.toml (§6.1 storage
// layout), parsed with github.com/pelletier/go-toml/v2. A live-mode
// handler consults this before falling back to the payload-shaped prompt,
// letting an operator hand-tune one producer's wording without touching
// the blueprint.
package promptoverride

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Override is the parsed contents of one prompts/<alias>.toml file.
type Override struct {
	Prompt string `toml:"prompt"`
	Model  string `toml:"model,omitempty"`
}

// Load reads promptsRoot/<alias>.toml. ok is false (no error) when the file
// does not exist — an override is optional per producer.
func Load(promptsRoot, alias string) (ov Override, ok bool, err error) {
	if promptsRoot == "" || alias == "" {
		return Override{}, false, nil
	}
	path := filepath.Join(promptsRoot, alias+".toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Override{}, false, nil
		}
		return Override{}, false, fmt.Errorf("promptoverride: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &ov); err != nil {
		return Override{}, false, fmt.Errorf("promptoverride: parsing %s: %w", path, err)
	}
	if ov.Prompt == "" {
		return Override{}, false, fmt.Errorf("promptoverride: %s: prompt is required", path)
	}
	return ov, true, nil
}
