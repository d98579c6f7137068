package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map // shape name -> *jsonschema.Schema

// validateSchema validates a parsed document against the shape schema,
// compiling and caching the schema on first use per shape name.
func validateSchema(name string, schemaRaw json.RawMessage, doc any) error {
	if len(schemaRaw) == 0 {
		return nil
	}

	compiled, err := compiledSchema(name, schemaRaw)
	if err != nil {
		return err
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", name, err)
	}
	return nil
}

func compiledSchema(name string, schemaRaw json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(schemaRaw)); err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", name, err)
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}

	schemaCache.Store(name, compiled)
	return compiled, nil
}
