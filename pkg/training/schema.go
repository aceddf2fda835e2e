package training

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema guards against hand-edited or truncated persisted records:
// a configuration that fails this schema is treated as absent, never
// trusted to skip setup.
const recordSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["snapshot_hash", "answers", "trained_at"],
	"properties": {
		"snapshot_hash": {"type": "string", "minLength": 1},
		"answers": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"special_case_guards": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		},
		"rule_count": {"type": "integer", "minimum": 0},
		"trained_at": {"type": "string", "minLength": 1}
	}
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func validateRecord(data []byte) error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://arbiter.schemas.local/training_configuration.schema.json"
		if err := c.AddResource(url, strings.NewReader(recordSchema)); err != nil {
			compileErr = fmt.Errorf("training: load record schema: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(url)
	})
	if compileErr != nil {
		return compileErr
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("training: record is not valid JSON: %w", err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return fmt.Errorf("training: record schema validation: %w", err)
	}
	return nil
}
