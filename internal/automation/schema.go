package automation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// treeSchema is a structural JSON Schema for the automations block (the
// bindings array stored verbatim in Workflow.Automations), checked before
// the semantic Parse/Validate pass so malformed trees (wrong types, unknown
// top-level shape) are rejected with a schema-level message rather than a
// Go unmarshal error.
const treeSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["trigger", "phase", "actions"],
    "properties": {
      "trigger": {"enum": ["on_enter", "on_exit"]},
      "phase": {"type": "string", "minLength": 1},
      "actions": {"type": "array"}
    }
  }
}`

var compiledTreeSchema *gojsonschema.Schema

func init() {
	loader := gojsonschema.NewStringLoader(treeSchema)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("automation: invalid embedded schema: %v", err))
	}
	compiledTreeSchema = schema
}

// ValidateSchema checks raw against the structural automation schema. It
// returns the list of schema validation error messages, if any.
func ValidateSchema(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	result, err := compiledTreeSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return msgs, nil
}
