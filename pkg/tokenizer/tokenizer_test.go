package tokenizer

import (
	"testing"
)

func TestEncodingFor(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4o-mini", "o200k_base"},
		{"gpt-4-turbo", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"gpt-3-davinci", "p50k_base"},
		{"llama3.2", "cl100k_base"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := EncodingFor(tt.model); got != tt.want {
				t.Errorf("EncodingFor(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimateResponseTokens(t *testing.T) {
	tok := &Tokenizer{}

	tests := []struct {
		name string
		max  int
		used int
		want int
	}{
		{"plenty_left", 4096, 96, 3990},
		{"exhausted", 100, 100, 0},
		{"over_budget", 100, 150, 0},
		{"within_reserve", 100, 95, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tok.EstimateResponseTokens(tt.max, tt.used); got != tt.want {
				t.Errorf("EstimateResponseTokens(%d, %d) = %d, want %d", tt.max, tt.used, got, tt.want)
			}
		})
	}
}

func TestCountTokens_Empty(t *testing.T) {
	tok := &Tokenizer{}
	if got := tok.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
}
