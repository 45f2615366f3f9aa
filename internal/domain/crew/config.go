package crew

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// Config is the per-member LLM configuration document.
type Config struct {
	ID           string                   `json:"id"`
	SystemPrompt string                   `json:"system_prompt"`
	Model        string                   `json:"model"`
	Temperature  float64                  `json:"temperature"`
	MaxTokens    int                      `json:"max_tokens"`
	TieredModels map[tier.CostTier]string `json:"tiered_models,omitempty"`
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrValidation)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("%w: %s: system_prompt is required", domain.ErrValidation, c.ID)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: %s: model is required", domain.ErrValidation, c.ID)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %s: temperature %v out of range [0,2]", domain.ErrValidation, c.ID, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %s: max_tokens must be positive", domain.ErrValidation, c.ID)
	}
	for t, m := range c.TieredModels {
		if !t.Valid() {
			return fmt.Errorf("%w: %s: unknown tier %q in tiered_models", domain.ErrValidation, c.ID, t)
		}
		if m == "" {
			return fmt.Errorf("%w: %s: empty model for tier %q", domain.ErrValidation, c.ID, t)
		}
	}
	return nil
}

// ModelForTier returns the config's model for t, falling back to Model.
func (c *Config) ModelForTier(t tier.CostTier) (string, bool) {
	if m, ok := c.TieredModels[t]; ok && m != "" {
		return m, true
	}
	return c.Model, false
}

// ParseConfig decodes a config document, rejecting unknown fields, and validates it.
func ParseConfig(data []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: decode crew config: %v", domain.ErrValidation, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
