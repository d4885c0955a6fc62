package utils

import (
	"strings"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Basic text with spaces",
			input:    "Hello World",
			expected: "hello-world",
		},
		{
			name:     "Turkish characters",
			input:    "İstanbul Başakşehir",
			expected: "istanbul-basaksehir",
		},
		{
			name:     "German special characters",
			input:    "Bayern München",
			expected: "bayern-munchen",
		},
		{
			name:     "Multiple spaces and hyphens",
			input:    "Test    ---    Multiple   Spaces",
			expected: "test-multiple-spaces",
		},
		{
			name:     "Leading and trailing spaces",
			input:    "   Test Text   ",
			expected: "test-text",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeSlug(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestInstanceID(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		expected string
	}{
		{
			name:     "Plain host",
			hostname: "worker1",
			expected: "worker1",
		},
		{
			name:     "Upper case host",
			hostname: "Worker-01",
			expected: "worker-01",
		},
		{
			name:     "Host with spaces",
			hostname: "Build Server",
			expected: "build-server",
		},
		{
			name:     "Empty host",
			hostname: "",
			expected: "instance",
		},
		{
			name:     "Only special characters",
			hostname: "///",
			expected: "instance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InstanceID(tt.hostname)
			if result != tt.expected {
				t.Errorf("InstanceID(%q) = %q, want %q", tt.hostname, result, tt.expected)
			}
		})
	}
}

func TestDefaultInstanceID(t *testing.T) {
	id := DefaultInstanceID()
	if id == "" || strings.Contains(id, "/") {
		t.Errorf("DefaultInstanceID() = %q, want a non-empty id without slashes", id)
	}
}

func TestIsValidJobName(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"reports-export", true},
		{"backup", true},
		{"", false},
		{"Reports Export", false},
		{"reports/export", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidJobName(tt.input); got != tt.expected {
				t.Errorf("IsValidJobName(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
