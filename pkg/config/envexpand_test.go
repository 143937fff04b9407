package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "api_key_env: {{.LLM_API_KEY}}",
			env:   map[string]string{"LLM_API_KEY": "secret123"},
			want:  "api_key_env: secret123",
		},
		{
			name:  "literal ${VAR} is NOT expanded (no collision)",
			input: "condition: spent ${AMOUNT} on diamonds",
			env:   map[string]string{"AMOUNT": "50"},
			want:  "condition: spent ${AMOUNT} on diamonds",
		},
		{
			name:  "literal $ in condition text preserved",
			input: "condition: price drops below $10",
			env:   map[string]string{},
			want:  "condition: price drops below $10",
		},
		{
			name:  "multiple substitutions in one line",
			input: "base_url: {{.PROTOCOL}}://{{.HOST}}:{{.PORT}}",
			env: map[string]string{
				"PROTOCOL": "http",
				"HOST":     "llm.internal",
				"PORT":     "11434",
			},
			want: "base_url: http://llm.internal:11434",
		},
		{
			name:  "missing variable expands to empty",
			input: "address: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "address: ",
		},
		{
			name:  "no substitution when no variables",
			input: "static: value",
			env:   map[string]string{"UNUSED": "value"},
			want:  "static: value",
		},
		{
			name:  "variables in nested YAML structure",
			input: "memory:\n  embedding_url: {{.EMBED_URL}}\n  embedding_model: {{.EMBED_MODEL}}",
			env: map[string]string{
				"EMBED_URL":   "http://localhost:11434",
				"EMBED_MODEL": "nomic-embed-text",
			},
			want: "memory:\n  embedding_url: http://localhost:11434\n  embedding_model: nomic-embed-text",
		},
		{
			name:  "special characters in expanded value",
			input: "password: {{.PASSWORD}}",
			env:   map[string]string{"PASSWORD": "p@ssw0rd!#$%"},
			want:  "password: p@ssw0rd!#$%",
		},
		{
			name:  "empty string variable",
			input: "value: {{.EMPTY}}",
			env:   map[string]string{"EMPTY": ""},
			want:  "value: ",
		},
		{
			name: "complex YAML with multiple variables",
			input: `
decision:
  base_url: {{.LLM_HOST}}
  model: {{.LLM_MODEL}}
  api_key_env: {{.KEY_VAR}}
`,
			env: map[string]string{
				"LLM_HOST":  "http://localhost:11434",
				"LLM_MODEL": "llama3.2",
				"KEY_VAR":   "GLADYS_LLM_KEY",
			},
			want: `
decision:
  base_url: http://localhost:11434
  model: llama3.2
  api_key_env: GLADYS_LLM_KEY
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v) // Automatic cleanup after test
			}

			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnvPreservesOriginalWhenNoVariables(t *testing.T) {
	input := `
# This is a comment
key: value
nested:
  field: "string value"
  number: 123
  boolean: true
array:
  - item1
  - item2
`

	result := ExpandEnv([]byte(input))
	assert.Equal(t, input, string(result), "Content without variables should be unchanged")
}

// TestExpandEnvMalformedTemplates verifies that malformed template syntax
// is passed through unchanged rather than causing errors. This allows the
// YAML parser to handle the content or fail with a clearer error message.
func TestExpandEnvMalformedTemplates(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "unclosed template - missing closing braces",
			input: "api_key_env: {{.LLM_API_KEY",
		},
		{
			name:  "incomplete template - only opening braces",
			input: "api_key_env: {{",
		},
		{
			name:  "reversed template syntax",
			input: "api_key_env: }}.LLM_API_KEY{{",
		},
		{
			name:  "template with undefined function",
			input: `api_key_env: {{.LLM_API_KEY | upper}}`,
		},
		{
			name:  "multiple malformed templates",
			input: "key1: {{.VAR1\nkey2: {{.VAR2}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LLM_API_KEY", "should-not-appear")
			t.Setenv("VAR1", "should-not-appear")
			t.Setenv("VAR2", "should-not-appear")

			result := ExpandEnv([]byte(tt.input))

			assert.Equal(t, tt.input, string(result),
				"Malformed template should be passed through unchanged")
			assert.NotContains(t, string(result), "should-not-appear",
				"Malformed template should not expand environment variables")
		})
	}
}

// TestExpandEnvPassThroughToYAMLParser verifies that when ExpandEnv returns
// original data due to template errors, the YAML parser can still process it.
func TestExpandEnvPassThroughToYAMLParser(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectYAMLErr bool
	}{
		{
			name: "valid YAML without templates passes through successfully",
			input: `
host: localhost
port: 50050
`,
			expectYAMLErr: false,
		},
		{
			name: "malformed template but valid YAML structure",
			input: `
host: localhost
api_key_env: "{{.LLM_API_KEY"
port: 50050
`,
			expectYAMLErr: false,
		},
		{
			name: "malformed template with invalid YAML",
			input: `
host: localhost
api_key_env: {{.LLM_API_KEY
  invalid: indentation
port: 50050
`,
			expectYAMLErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expanded := ExpandEnv([]byte(tt.input))

			var result map[string]any
			err := yaml.Unmarshal(expanded, &result)

			if tt.expectYAMLErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, result)
			}
		})
	}
}
