package users

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// createPayloadSchema constrains the data bag of a user-create request.
// The email format check mirrors what the relay's clients sign against.
const createPayloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "email": {
      "type": "string",
      "pattern": "^\\S+@\\S+\\.\\S+$",
      "maxLength": 320
    }
  },
  "required": ["email"]
}`

func compileCreatePayloadSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("user-create.schema.json", strings.NewReader(createPayloadSchema)); err != nil {
		panic(fmt.Sprintf("users: add schema resource: %v", err))
	}
	schema, err := compiler.Compile("user-create.schema.json")
	if err != nil {
		panic(fmt.Sprintf("users: compile schema: %v", err))
	}
	return schema
}

var createSchema = compileCreatePayloadSchema()

// ValidateCreatePayload checks a user-create data bag against the
// payload schema.
func ValidateCreatePayload(data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	return createSchema.Validate(map[string]any(data))
}
