package shopify

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const webhookOrderSchemaURL = "https://dupeguard.local/schemas/webhook-order.json"

// Only the fields the detector reads are constrained. Shopify sends many more
// and is free to add new ones.
const webhookOrderSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {
      "anyOf": [
        {"type": "integer", "minimum": 1},
        {"type": "string", "pattern": "^[0-9]+$"}
      ]
    },
    "name": {"type": ["string", "null"]},
    "phone": {"type": ["string", "null"]},
    "created_at": {"type": ["string", "null"], "minLength": 1},
    "fulfillment_status": {"type": ["string", "null"]},
    "tags": {"type": ["string", "null"]},
    "note": {"type": ["string", "null"]},
    "customer": {"$ref": "#/$defs/withPhone"},
    "billing_address": {"$ref": "#/$defs/withPhone"},
    "shipping_address": {"$ref": "#/$defs/withPhone"}
  },
  "$defs": {
    "withPhone": {
      "type": ["object", "null"],
      "properties": {"phone": {"type": ["string", "null"]}}
    }
  }
}`

var compileWebhookOrderSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookOrderSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource(webhookOrderSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("webhook schema load failed: %w", err)
	}
	return compiler.Compile(webhookOrderSchemaURL)
})

func validateWebhookOrder(data []byte) error {
	schema, err := compileWebhookOrderSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}
