package sanitize

import (
	"regexp"
	"strings"
	"testing"
)

var validNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]*[a-z0-9])?$`)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "already valid",
			input:    "filesystem",
			expected: "filesystem",
		},
		{
			name:     "upper case lowered",
			input:    "GitHub",
			expected: "github",
		},
		{
			name:     "spaces become hyphens",
			input:    "my server",
			expected: "my-server",
		},
		{
			name:     "invalid characters stripped",
			input:    "My Server!! 2",
			expected: "my-server-2",
		},
		{
			name:     "repeated hyphens collapsed",
			input:    "a -- b",
			expected: "a-b",
		},
		{
			name:     "repeated dots collapsed",
			input:    "a..b",
			expected: "a.b",
		},
		{
			name:     "leading and trailing separators trimmed",
			input:    "--hello--",
			expected: "hello",
		},
		{
			name:     "tabs and newlines treated as whitespace",
			input:    "a\tb\nc",
			expected: "a-b-c",
		},
		{
			name:     "unicode stripped",
			input:    "héllo",
			expected: "hllo",
		},
		{
			name:     "fully invalid input yields empty string",
			input:    "!!!",
			expected: "",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Name(tt.input)
			if result != tt.expected {
				t.Errorf("Name(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestWorkloadName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name gets prefix",
			input:    "filesystem",
			expected: "mcp-filesystem",
		},
		{
			name:     "user-supplied display name",
			input:    "My Server!! 2",
			expected: "mcp-my-server-2",
		},
		{
			name:     "fully invalid input yields empty string",
			input:    "!!!",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WorkloadName(tt.input)
			if result != tt.expected {
				t.Errorf("WorkloadName(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestWorkloadNameDeterministicAndValid(t *testing.T) {
	inputs := []string{
		"filesystem",
		"My Server!! 2",
		"a b c",
		strings.Repeat("very-long-name-", 30),
		"UPPER case WITH   spaces",
	}

	for _, input := range inputs {
		first := WorkloadName(input)
		second := WorkloadName(input)
		if first != second {
			t.Errorf("WorkloadName(%q) not deterministic: %q vs %q", input, first, second)
		}
		if first == "" {
			t.Errorf("WorkloadName(%q) unexpectedly empty", input)
			continue
		}
		if !validNamePattern.MatchString(first) {
			t.Errorf("WorkloadName(%q) = %q does not match %s", input, first, validNamePattern)
		}
		if len(first) > MaxResourceNameLen {
			t.Errorf("WorkloadName(%q) exceeds %d characters: %d", input, MaxResourceNameLen, len(first))
		}
	}
}

func TestSecretNameStableAcrossRenames(t *testing.T) {
	// The secret name is keyed only by id, so two workloads with the same id
	// but different display names must map to the same secret.
	id := "3f2a9c14-7d14-4a14-9a61-000000000001"
	if SecretName(id) != SecretName(id) {
		t.Error("SecretName is not deterministic")
	}
	expected := "mcp-3f2a9c14-7d14-4a14-9a61-000000000001-secrets"
	if got := SecretName(id); got != expected {
		t.Errorf("SecretName(%q) = %q, expected %q", id, got, expected)
	}
}

func TestLabels(t *testing.T) {
	// The separator sits exactly at the truncation boundary, so a naive cut
	// would leave a trailing "-".
	longValue := strings.Repeat("x", 62) + "-" + strings.Repeat("y", 20)

	result := Labels(map[string]string{
		"app":        "My Server!! 2",
		"long":       longValue,
		"!!!":        "dropped entirely",
		"Mixed Case": "Mixed Value",
	})

	if result["app"] != "my-server-2" {
		t.Errorf("app label = %q, expected %q", result["app"], "my-server-2")
	}
	if _, exists := result[""]; exists {
		t.Error("empty key should have been dropped")
	}
	if result["mixed-case"] != "mixed-value" {
		t.Errorf("mixed-case label = %q, expected %q", result["mixed-case"], "mixed-value")
	}

	long := result["long"]
	if len(long) > MaxLabelValueLen {
		t.Errorf("long label value is %d characters, limit is %d", len(long), MaxLabelValueLen)
	}
	if long == "" {
		t.Fatal("long label value unexpectedly empty")
	}
	last := long[len(long)-1]
	if !(last >= 'a' && last <= 'z') && !(last >= '0' && last <= '9') {
		t.Errorf("truncated label value %q ends in non-alphanumeric %q", long, string(last))
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"api-key", "API_KEY"},
		{"apiKey", "APIKEY"},
		{"data dir", "DATA_DIR"},
		{"TOKEN", "TOKEN"},
		{"a.b.c", "A_B_C"},
	}

	for _, tt := range tests {
		if got := EnvKey(tt.input); got != tt.expected {
			t.Errorf("EnvKey(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
