package configutil

import (
	"strings"
	"testing"
	"time"
)

func TestValidator_RequiredString(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "valid_string", value: "mock", wantError: false},
		{name: "empty_string", value: "", wantError: true},
		{name: "whitespace_only", value: "   ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator().RequiredString("responder.provider", tt.value).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for value %q, but got none", tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for value %q, but got: %v", tt.value, result)
			}
		})
	}
}

func TestValidator_IntRange(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{name: "valid_range", value: 8080, wantError: false},
		{name: "below_min", value: 0, wantError: true},
		{name: "above_max", value: 70000, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator().IntRange("server.port", tt.value, 1, 65535).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for value %d, but got none", tt.value)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for value %d, but got: %v", tt.value, result)
			}
		})
	}
}

func TestValidator_FloatRange(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		wantError bool
	}{
		{name: "zero", value: 0, wantError: false},
		{name: "one", value: 1, wantError: false},
		{name: "negative", value: -0.1, wantError: true},
		{name: "too_large", value: 1.5, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator().FloatRange("responder.failure_rate", tt.value, 0, 1).Result()

			if tt.wantError != (result != nil) {
				t.Errorf("FloatRange(%v) error = %v, wantError %v", tt.value, result, tt.wantError)
			}
		})
	}
}

func TestValidator_OneOf(t *testing.T) {
	allowed := []string{"mock", "openai"}

	if err := NewValidator().OneOf("responder.provider", "mock", allowed).Result(); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := NewValidator().OneOf("responder.provider", "grpc", allowed).Result(); err == nil {
		t.Errorf("Expected error for unknown provider, got none")
	}
}

func TestValidator_ValidateURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantError bool
	}{
		{name: "valid_http_url", url: "http://localhost:11434/v1", wantError: false},
		{name: "valid_https_url", url: "https://api.openai.com/v1", wantError: false},
		{name: "invalid_url", url: "not-a-url", wantError: true},
		{name: "wrong_scheme", url: "nats://localhost:4222", wantError: true},
		{name: "empty_url", url: "", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewValidator().ValidateURL("llm.base_url", tt.url).Result()

			if tt.wantError && result == nil {
				t.Errorf("Expected error for URL %s, but got none", tt.url)
			}
			if !tt.wantError && result != nil {
				t.Errorf("Expected no error for URL %s, but got: %v", tt.url, result)
			}
		})
	}
}

func TestValidator_ValidateURLScheme(t *testing.T) {
	if err := NewValidator().ValidateURLScheme("nats.url", "nats://localhost:4222", "nats", "tls").Result(); err != nil {
		t.Errorf("Expected nats URL to pass, got %v", err)
	}
	if err := NewValidator().ValidateURLScheme("nats.url", "http://localhost:4222", "nats", "tls").Result(); err == nil {
		t.Errorf("Expected http URL to fail nats scheme check")
	}
}

func TestValidator_Durations(t *testing.T) {
	tests := []struct {
		name      string
		check     func(v *Validator) *Validator
		wantError bool
	}{
		{
			name:      "non_negative_zero",
			check:     func(v *Validator) *Validator { return v.NonNegativeDuration("responder.await_timeout", 0) },
			wantError: false,
		},
		{
			name:      "non_negative_negative",
			check:     func(v *Validator) *Validator { return v.NonNegativeDuration("responder.await_timeout", -time.Second) },
			wantError: true,
		},
		{
			name:      "required_zero",
			check:     func(v *Validator) *Validator { return v.RequiredDuration("responder.poll_interval", 0) },
			wantError: true,
		},
		{
			name: "range_inside",
			check: func(v *Validator) *Validator {
				return v.DurationRange("timeout", 10*time.Second, time.Second, time.Minute)
			},
			wantError: false,
		},
		{
			name: "range_outside",
			check: func(v *Validator) *Validator {
				return v.DurationRange("timeout", 2*time.Minute, time.Second, time.Minute)
			},
			wantError: true,
		},
		{
			name:      "order_ok",
			check:     func(v *Validator) *Validator { return v.DurationOrder("responder.result_delay", time.Second, 4*time.Second) },
			wantError: false,
		},
		{
			name:      "order_inverted",
			check:     func(v *Validator) *Validator { return v.DurationOrder("responder.result_delay", 4*time.Second, time.Second) },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.check(NewValidator()).Result()
			if tt.wantError != (result != nil) {
				t.Errorf("error = %v, wantError %v", result, tt.wantError)
			}
		})
	}
}

func TestValidator_ChainedValidation(t *testing.T) {
	result := NewValidator().
		RequiredString("server.host", "localhost").
		IntRange("server.port", 8080, 1, 65535).
		OneOf("logging.level", "info", []string{"debug", "info", "warn", "error"}).
		ValidateURL("llm.base_url", "https://api.example.com").
		Result()

	if result != nil {
		t.Errorf("Expected no errors from chained validation, but got: %v", result)
	}

	result2 := NewValidator().
		RequiredString("server.host", "").
		IntRange("server.port", 0, 1, 65535).
		OneOf("logging.level", "invalid", []string{"debug", "info", "warn", "error"}).
		Result()

	validationErrors, ok := result2.(ValidationErrors)
	if !ok {
		t.Fatalf("Expected ValidationErrors type, but got %T", result2)
	}
	if len(validationErrors) != 3 {
		t.Errorf("Expected 3 validation errors, but got %d", len(validationErrors))
	}
}

func TestValidator_ErrorCount(t *testing.T) {
	validator := NewValidator()

	validator.RequiredString("field1", "")
	validator.IntRange("field2", 0, 1, 10)
	validator.OneOf("field3", "invalid", []string{"valid"})

	if validator.ErrorCount() != 3 {
		t.Errorf("Expected error count 3, but got %d", validator.ErrorCount())
	}
	if !validator.HasErrors() {
		t.Errorf("Expected HasErrors() to return true, but got false")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	singleError := ValidationErrors{
		ValidationError{Field: "test", Message: "is required"},
	}
	expected := "validation error for field 'test': is required"
	if singleError.Error() != expected {
		t.Errorf("Expected single error message '%s', but got '%s'", expected, singleError.Error())
	}

	multipleErrors := ValidationErrors{
		ValidationError{Field: "field1", Message: "is required"},
		ValidationError{Field: "field2", Message: "is invalid"},
	}
	msg := multipleErrors.Error()
	if !strings.HasPrefix(msg, "multiple validation errors: 2 errors found") {
		t.Errorf("Unexpected multiple error message '%s'", msg)
	}
	if !strings.Contains(msg, "field1, field2") {
		t.Errorf("Expected field names in message, got '%s'", msg)
	}

	if (ValidationErrors{}).Error() != "no validation errors" {
		t.Errorf("Unexpected empty message")
	}
}
