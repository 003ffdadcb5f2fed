package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 { return &f }

func testModel() Model {
	return Model{
		ID:       "test",
		Endpoint: "fal-ai/test",
		Parameters: []Parameter{
			{Name: "prompt", Type: "string", Required: true},
			{Name: "steps", Type: "integer", Default: 28, Min: floatPtr(1), Max: floatPtr(50)},
			{Name: "guidance", Type: "number", Default: 3.5, Min: floatPtr(0), Max: floatPtr(20)},
			{Name: "size", Type: "enum", Default: "square", Options: []interface{}{"square", "portrait"}},
			{Name: "safety", Type: "boolean", Default: true},
			{Name: "seed", Type: "integer"},
		},
	}
}

func TestValidateParamsFillsDefaults(t *testing.T) {
	out, err := testModel().ValidateParams(map[string]interface{}{"prompt": "a cat"})
	require.NoError(t, err)

	assert.Equal(t, "a cat", out["prompt"])
	assert.Equal(t, 28, out["steps"])
	assert.Equal(t, 3.5, out["guidance"])
	assert.Equal(t, "square", out["size"])
	assert.Equal(t, true, out["safety"])
	// No default, not provided: absent rather than zero-valued.
	_, ok := out["seed"]
	assert.False(t, ok)
}

func TestValidateParamsCoercesStrings(t *testing.T) {
	out, err := testModel().ValidateParams(map[string]interface{}{
		"prompt":   "a cat",
		"steps":    "12",
		"guidance": "7.5",
		"safety":   "false",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12), out["steps"])
	assert.Equal(t, 7.5, out["guidance"])
	assert.Equal(t, false, out["safety"])
}

func TestValidateParamsAcceptsJSONNumbers(t *testing.T) {
	// encoding/json decodes all numbers as float64.
	out, err := testModel().ValidateParams(map[string]interface{}{
		"prompt": "a cat",
		"steps":  float64(30),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), out["steps"])
}

func TestValidateParamsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]interface{}
	}{
		{"missing required", map[string]interface{}{}},
		{"unknown parameter", map[string]interface{}{"prompt": "x", "bogus": 1}},
		{"below minimum", map[string]interface{}{"prompt": "x", "steps": 0}},
		{"above maximum", map[string]interface{}{"prompt": "x", "steps": 99}},
		{"bad enum value", map[string]interface{}{"prompt": "x", "size": "panorama"}},
		{"non-integer", map[string]interface{}{"prompt": "x", "steps": 2.5}},
		{"bad boolean", map[string]interface{}{"prompt": "x", "safety": "maybe"}},
		{"non-string prompt", map[string]interface{}{"prompt": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testModel().ValidateParams(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestValidateParamsNumericEnum(t *testing.T) {
	m := Model{Parameters: []Parameter{
		{Name: "steps", Type: "enum", Options: []interface{}{float64(1), float64(2), float64(4)}},
	}}

	out, err := m.ValidateParams(map[string]interface{}{"steps": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, float64(4), out["steps"])

	// String form of a numeric option is accepted and normalized.
	out, err = m.ValidateParams(map[string]interface{}{"steps": "2"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), out["steps"])

	_, err = m.ValidateParams(map[string]interface{}{"steps": float64(3)})
	assert.Error(t, err)
}

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, c.All())

	m, ok := c.Get("flux-dev")
	require.True(t, ok)
	assert.Equal(t, "fal-ai/flux/dev", m.Endpoint)
	assert.Equal(t, "image", m.Kind)

	_, ok = c.Get("nope")
	assert.False(t, ok)

	// Every model must name its prompt parameter and an endpoint.
	for _, m := range c.All() {
		assert.NotEmpty(t, m.Endpoint, m.ID)
		found := false
		for _, p := range m.Parameters {
			if p.Name == "prompt" {
				found = true
			}
		}
		assert.True(t, found, "model %s has no prompt parameter", m.ID)
	}
}
