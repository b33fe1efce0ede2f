package service_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/storecast-backend/internal/errors"
	"github.com/unclebandit/storecast-backend/internal/service"
)

func TestRenderFlexTemplate(t *testing.T) {
	vars := map[string]string{
		service.VarMediaURL:  "https://x/a",
		service.VarStoreName: "Shibuya",
	}

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "embedded placeholders",
			doc:  `{"text":"Visit {{media_url}} - {{store_name}}"}`,
			want: `{"text":"Visit https://x/a - Shibuya"}`,
		},
		{
			name: "repeated and nested",
			doc:  `{"type":"bubble","body":{"contents":[{"text":"{{store_name}}"},{"action":{"uri":"{{media_url}}","label":"{{store_name}} / {{store_name}}"}}]}}`,
			want: `{"type":"bubble","body":{"contents":[{"text":"Shibuya"},{"action":{"uri":"https://x/a","label":"Shibuya / Shibuya"}}]}}`,
		},
		{
			name: "unmapped placeholder survives",
			doc:  `{"text":"{{store_name}} {{coupon}}"}`,
			want: `{"text":"Shibuya {{coupon}}"}`,
		},
		{
			name: "keys and non-string values untouched",
			doc:  `{"{{store_name}}":1,"flex":1.50,"wrap":true,"size":null}`,
			want: `{"{{store_name}}":1,"flex":1.50,"wrap":true,"size":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.RenderFlexTemplate(json.RawMessage(tt.doc), vars)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestRenderFlexTemplate_NoMappedPlaceholderRemains(t *testing.T) {
	doc := `{"a":"{{media_url}}{{media_url}}","b":["{{store_name}}",{"c":"x{{media_url}}y"}]}`
	got, err := service.RenderFlexTemplate(json.RawMessage(doc), map[string]string{
		service.VarMediaURL:  "u",
		service.VarStoreName: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, strings.Count(string(got), "{{media_url}}"))
	assert.Equal(t, 0, strings.Count(string(got), "{{store_name}}"))
}

func TestRenderFlexTemplate_EscapesReplacementValues(t *testing.T) {
	got, err := service.RenderFlexTemplate(json.RawMessage(`{"text":"{{store_name}}"}`), map[string]string{
		service.VarStoreName: `Bar "Quote" \ <&>`,
	})
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(got, &decoded))
	assert.Equal(t, `Bar "Quote" \ <&>`, decoded["text"])
	assert.Contains(t, string(got), "<&>")
}

func TestRenderFlexTemplate_InvalidDocument(t *testing.T) {
	for _, doc := range []string{``, `   `, `{"text":`, `{"a":1} {"b":2}`} {
		_, err := service.RenderFlexTemplate(json.RawMessage(doc), nil)
		require.Error(t, err, "doc %q", doc)
		assert.True(t, appErrors.IsRender(err), "doc %q", doc)
	}
}
