package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

var ErrInvalidPatch = errors.New("invalid settings patch")

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	SearchDays     *int    `json:"searchDays,omitempty"`
	TagName        *string `json:"tagName,omitempty"`
	TagColor       *string `json:"tagColor,omitempty"`
	AutoCancel     *bool   `json:"autoCancel,omitempty"`
	WebhookEnabled *bool   `json:"webhookEnabled,omitempty"`
}

func (p Patch) Empty() bool {
	return p.SearchDays == nil && p.TagName == nil && p.TagColor == nil && p.AutoCancel == nil && p.WebhookEnabled == nil
}

func (p Patch) Apply(current dupes.Settings) dupes.Settings {
	next := current
	if p.SearchDays != nil {
		next.SearchDays = *p.SearchDays
	}
	if p.TagName != nil {
		next.TagName = *p.TagName
	}
	if p.TagColor != nil {
		next.TagColor = *p.TagColor
	}
	if p.AutoCancel != nil {
		next.AutoCancel = *p.AutoCancel
	}
	if p.WebhookEnabled != nil {
		next.WebhookEnabled = *p.WebhookEnabled
	}
	return next.Normalize()
}

const patchSchemaURL = "https://dupeguard.local/schemas/settings-patch.json"

// Tag limits follow Shopify's 40 character tag length.
const patchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "searchDays": {"type": "integer", "minimum": 1, "maximum": 365},
    "tagName": {"type": "string", "minLength": 1, "maxLength": 40, "pattern": "^[^,]+$"},
    "tagColor": {"type": "string", "minLength": 1, "maxLength": 32},
    "autoCancel": {"type": "boolean"},
    "webhookEnabled": {"type": "boolean"}
  }
}`

var compilePatchSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(patchSchema))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource(patchSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("settings schema load failed: %w", err)
	}
	return compiler.Compile(patchSchemaURL)
})

// DecodePatch validates a JSON settings patch and decodes it. Validation
// failures wrap ErrInvalidPatch.
func DecodePatch(data []byte) (Patch, error) {
	schema, err := compilePatchSchema()
	if err != nil {
		return Patch{}, err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if err := schema.Validate(instance); err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	var patch Patch
	if err := json.Unmarshal(data, &patch); err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return patch, nil
}
