package escconf

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema is the structural contract for the escalation config
// document. Semantic checks (rule actions, exit-code keys) happen during
// decoding; the schema catches shape errors with a usable diagnostic before
// any field is read.
const configSchema = `{
	"type": "object",
	"required": ["levels"],
	"properties": {
		"levels": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["mem", "time"],
				"properties": {
					"partition": {"type": "string"},
					"mem": {"type": "string"},
					"time": {"type": "string"}
				}
			}
		},
		"state_handling": {"type": "object"},
		"timeout": {
			"type": "object",
			"properties": {"sacct_delay": {"type": "integer", "minimum": 0}}
		},
		"tracker": {"type": "object"},
		"logging": {"type": "object"},
		"max_array_spec_len": {"type": "integer", "minimum": 1},
		"cluster": {"type": "object"}
	}
}`

func compileConfigSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return nil, err
	}
	return c.Compile("config.schema.json")
}

func validateSchema(doc []byte) error {
	schema, err := compileConfigSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return err
	}
	// Round-trip through encoding/json so the validator sees JSON-typed
	// values (string keys, float64 numbers) regardless of what yaml gave us.
	b, err := json.Marshal(stringifyKeys(raw))
	if err != nil {
		return err
	}
	var jsonDoc any
	if err := json.Unmarshal(b, &jsonDoc); err != nil {
		return err
	}
	return schema.Validate(jsonDoc)
}

// stringifyKeys rewrites yaml's map[any]any mappings (produced for
// non-string keys such as exit codes) into JSON-encodable maps.
func stringifyKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = stringifyKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = stringifyKeys(val)
		}
		return out
	default:
		return v
	}
}
