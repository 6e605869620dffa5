package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema describes the environment variables Load understands.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true, AllowAdditionalProperties: true}
	schema := reflector.Reflect(&Config{})
	schema.Title = "voiceturns environment"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode config schema: %w", err)
	}
	return data, nil
}
