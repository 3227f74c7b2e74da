package canonical

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"vitae/internal/services"
)

//go:embed record.schema.json
var recordSchema []byte

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.schema.json", bytes.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("record.schema.json")
})

// Schema returns the embedded JSON schema describing a canonical record.
func Schema() []byte {
	return append([]byte(nil), recordSchema...)
}

// Validate checks r against the record schema. Records produced by
// Canonicalize always pass.
func Validate(r Record) error {
	schema, err := compiledSchema()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "canonical", "compile schema", "record schema is invalid", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return services.Wrap(services.ErrValidation, "canonical", "encode record", "record is not serializable", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return services.Wrap(services.ErrValidation, "canonical", "decode record", "record is not serializable", err)
	}
	if err := schema.Validate(doc); err != nil {
		return services.Wrap(services.ErrValidation, "canonical", "validate record", "record does not match schema", err)
	}
	return nil
}
