package wleappcam

import (
	"context"
	_ "embed" // config schema
	"encoding/json"
	"fmt"
	"sync"

	"github.com/qri-io/jsonschema"
)

//go:embed config.schema.json
var configSchema []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func setupSchemaValidation() {
	s := &jsonschema.Schema{}
	if err := json.Unmarshal(configSchema, s); err != nil {
		schemaErr = err
		return
	}
	schema = s
}

// validateSchema checks a configuration file against the embedded schema.
func validateSchema(config []byte) (flaws []string, err error) {
	schemaOnce.Do(setupSchemaValidation)
	if schemaErr != nil {
		return nil, fmt.Errorf("invalid config schema: %w", schemaErr)
	}

	errs, err := schema.ValidateBytes(context.Background(), config)
	if err != nil {
		return nil, err
	}
	for _, verr := range errs {
		flaws = append(flaws, fmt.Sprintf("failed to validate config: %s", verr))
	}
	return flaws, nil
}
