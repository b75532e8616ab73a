package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema rejects documents whose top-level shapes are wrong (a
// numeric name, a string where services should be, …) before decoding.
// It deliberately requires nothing: missing fields are scored by the
// metadata checks, not treated as parse failures.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "type": {"type": "string"},
    "name": {"type": "string"},
    "description": {"type": "string"},
    "image": {"type": "string"},
    "active": {"type": "boolean"},
    "x402Support": {"type": "boolean"},
    "updatedAt": {"type": "integer", "minimum": 0},
    "supportedTrust": {"type": "array", "items": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "services": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "endpoint": {"type": "string"},
          "version": {"type": "string"},
          "a2aSkills": {"type": "array", "items": {"type": "string"}},
          "mcpTools": {"type": "array", "items": {"type": "string"}},
          "mcpPrompts": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "registrations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["agentId", "agentRegistry"],
        "properties": {
          "agentId": {"type": "integer", "minimum": 1},
          "agentRegistry": {"type": "string"}
        }
      }
    },
    "author": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "url": {"type": "string"},
        "twitter": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("registration-v1.json", bytes.NewReader([]byte(documentSchema))); err != nil {
		panic(err)
	}
	return c.MustCompile("registration-v1.json")
}

func validateDocument(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("metadata: invalid JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("metadata: document failed structural validation: %w", err)
	}
	return nil
}
