package llm

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return eris.Wrap(err, "llm: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return eris.Wrap(err, "llm: add schema")
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return eris.Wrap(err, "llm: compile schema")
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "llm: unmarshal data")
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "llm: json does not match schema")
	}
	return nil
}
