package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

func TestDecodePatchAcceptsPartialPatch(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"searchDays": 30, "webhookEnabled": false}`))
	require.NoError(t, err)
	require.NotNil(t, patch.SearchDays)
	assert.Equal(t, 30, *patch.SearchDays)
	require.NotNil(t, patch.WebhookEnabled)
	assert.False(t, *patch.WebhookEnabled)
	assert.Nil(t, patch.TagName)

	next := patch.Apply(dupes.DefaultSettings())
	assert.Equal(t, 30, next.SearchDays)
	assert.False(t, next.WebhookEnabled)
	assert.True(t, next.AutoCancel)
}

func TestDecodePatchRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"not an object":    `[1,2]`,
		"days too small":   `{"searchDays": 0}`,
		"days too large":   `{"searchDays": 366}`,
		"days not integer": `{"searchDays": "14"}`,
		"empty tag":        `{"tagName": ""}`,
		"comma in tag":     `{"tagName": "a,b"}`,
		"unknown field":    `{"autoCancle": true}`,
		"bool as string":   `{"autoCancel": "yes"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodePatch([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidPatch)
		})
	}
}

func TestEmptyPatch(t *testing.T) {
	patch, err := DecodePatch([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, patch.Empty())
	assert.Equal(t, dupes.DefaultSettings(), patch.Apply(dupes.DefaultSettings()))
}
