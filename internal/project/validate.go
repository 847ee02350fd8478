package project

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

func schema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaVal = ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		schemaErr = schemaVal.Err()
	})
	return schemaVal, schemaErr
}

// validateDocument checks a YAML document against one of the embedded
// schema definitions ("#ModelFile" or "#ParametersFile") before it is
// decoded into Go structs, so structural mistakes surface with schema
// paths instead of zero values.
func validateDocument(data []byte, definition string) error {
	root, err := schema()
	if err != nil {
		return fmt.Errorf("compiling embedded schema: %w", err)
	}
	def := root.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema definition %s not found", definition)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document is empty")
	}

	val := def.Context().Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return fmt.Errorf("schema validation: %s", errors.Details(err, nil))
	}
	return nil
}
