package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema/application.json
var applicationSchemaJSON []byte

var applicationSchema = mustLoadSchema(applicationSchemaJSON)

// ErrSchemaMismatch возвращается, если тело запроса не соответствует JSON-схеме.
var ErrSchemaMismatch = errors.New("payload does not match schema")

func mustLoadSchema(raw []byte) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("load embedded schema: %v", err))
	}
	return schema
}

// ValidateApplicationPayload проверяет сырое тело запроса с анкетой заявления по JSON-схеме.
func ValidateApplicationPayload(payload []byte) error {
	result, err := applicationSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(errs, "; "))
	}

	return nil
}
