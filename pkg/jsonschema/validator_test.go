package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const stageSchema = `{
	"type": "object",
	"properties": {
		"duration": { "type": "string", "minLength": 1 },
		"target": { "type": "integer", "minimum": 0 }
	},
	"required": ["duration", "target"],
	"additionalProperties": false
}`

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		schema        string
		json          string
		expectedValid bool
		expectedError bool
	}{
		{
			name:          "Valid stage",
			schema:        stageSchema,
			json:          `{"duration": "10s", "target": 20}`,
			expectedValid: true,
		},
		{
			name:          "Missing target",
			schema:        stageSchema,
			json:          `{"duration": "10s"}`,
			expectedValid: false,
		},
		{
			name:          "Invalid JSON",
			schema:        stageSchema,
			json:          `{"duration": `,
			expectedError: true,
		},
		{
			name:          "Invalid schema",
			schema:        `{"type": 12}`,
			json:          `{}`,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := Validate(tt.json, tt.schema)

			if tt.expectedError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if valid != tt.expectedValid {
				t.Errorf("Expected valid=%v, got %v", tt.expectedValid, valid)
			}
		})
	}
}

func TestSchema_ValidateJSON(t *testing.T) {
	schema := MustCompile(stageSchema)

	if err := schema.ValidateJSON([]byte(`{"duration": "1m", "target": 0}`)); err != nil {
		t.Errorf("Expected valid document, got %v", err)
	}

	err := schema.ValidateJSON([]byte(`{"duration": "", "target": -1, "extra": true}`))
	if err == nil {
		t.Fatal("Expected validation errors")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected ValidationErrors, got %T", err)
	}
	if len(verrs) < 3 {
		t.Errorf("Expected at least 3 errors, got %d: %v", len(verrs), verrs)
	}

	msg := err.Error()
	for _, want := range []string{"/duration", "/target"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in %q", want, msg)
		}
	}
}

func TestSchema_ValidateDecodedYAMLShapes(t *testing.T) {
	schema := MustCompile(stageSchema)

	// yaml.v3 decodes integers as int, not float64.
	doc := map[string]interface{}{"duration": "30s", "target": 400}
	if err := schema.Validate(doc); err != nil {
		t.Errorf("Expected valid document, got %v", err)
	}

	doc["target"] = "many"
	if err := schema.Validate(doc); err == nil {
		t.Error("Expected type error for string target")
	}
}

func TestMustCompile_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for invalid schema")
		}
	}()
	MustCompile(`not a schema`)
}
