package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"toolpod/internal/catalog"
)

func plainDef(key, value string) catalog.EnvVarDef {
	return catalog.EnvVarDef{Key: key, Type: catalog.EnvPlainText, Value: value}
}

func TestAssembleSecretReference(t *testing.T) {
	a := &Assembler{SecretName: "mcp-wl-1-secrets"}

	entries, secretData, err := a.Assemble(
		[]catalog.EnvVarDef{{Key: "API_TOKEN", Type: catalog.EnvSecret}},
		nil, nil,
		map[string]string{"API_TOKEN": "s3cret"},
	)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "API_TOKEN", entry.Name)
	// The value must never appear as a literal in the pod spec.
	assert.Empty(t, entry.Value)
	require.NotNil(t, entry.ValueFrom)
	require.NotNil(t, entry.ValueFrom.SecretKeyRef)
	assert.Equal(t, "mcp-wl-1-secrets", entry.ValueFrom.SecretKeyRef.Name)
	assert.Equal(t, "API_TOKEN", entry.ValueFrom.SecretKeyRef.Key)

	assert.Equal(t, map[string]string{"API_TOKEN": "s3cret"}, secretData)
}

func TestAssembleEmptySecretOmitted(t *testing.T) {
	a := &Assembler{SecretName: "mcp-wl-1-secrets"}

	entries, secretData, err := a.Assemble(
		[]catalog.EnvVarDef{{Key: "API_TOKEN", Type: catalog.EnvSecret, Required: true}},
		nil, nil,
		map[string]string{},
	)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, secretData)
}

func TestAssemblePromptedValue(t *testing.T) {
	a := &Assembler{}

	entries, _, err := a.Assemble(
		[]catalog.EnvVarDef{{Key: "DATA_DIR", Type: catalog.EnvPlainText, PromptOnInstallation: true}},
		map[string]string{"DATA_DIR": "/srv/data"},
		nil, nil,
	)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, corev1.EnvVar{Name: "DATA_DIR", Value: "/srv/data"}, entries[0])
}

func TestAssemblePlaceholderSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		prompted map[string]string
		config   map[string]string
		expected string
	}{
		{
			name:     "substituted from prompted map",
			value:    "--root=${user_config.root_dir}",
			prompted: map[string]string{"root_dir": "/srv"},
			expected: "--root=/srv",
		},
		{
			name:     "prompted wins over config",
			value:    "${user_config.key}",
			prompted: map[string]string{"key": "from-prompted"},
			config:   map[string]string{"key": "from-config"},
			expected: "from-prompted",
		},
		{
			name:     "falls back to config map",
			value:    "${user_config.key}",
			config:   map[string]string{"key": "from-config"},
			expected: "from-config",
		},
		{
			name:     "unresolved placeholder left verbatim",
			value:    "--root=${user_config.missing}",
			expected: "--root=${user_config.missing}",
		},
		{
			name:     "multiple placeholders",
			value:    "${user_config.a}:${user_config.b}",
			config:   map[string]string{"a": "1", "b": "2"},
			expected: "1:2",
		},
	}

	a := &Assembler{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, _, err := a.Assemble(
				[]catalog.EnvVarDef{plainDef("VAR", tt.value)},
				tt.prompted, tt.config, nil,
			)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expected, entries[0].Value)
		})
	}
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello world"`, "hello world"},
		{`'hello world'`, "hello world"},
		{`plain`, "plain"},
		{`"mismatched'`, `"mismatched'`},
		// A single quote character is not a quoted empty string.
		{`"`, `"`},
		{`'`, `'`},
		{`""`, ""},
		{`"inner "quotes" kept"`, `inner "quotes" kept`},
	}

	for _, tt := range tests {
		if got := stripQuotes(tt.input); got != tt.expected {
			t.Errorf("stripQuotes(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestAssembleLocalhostRewrite(t *testing.T) {
	tests := []struct {
		name     string
		rewrite  bool
		value    string
		expected string
	}{
		{
			name:     "localhost URL rewritten",
			rewrite:  true,
			value:    "http://localhost:3000/api",
			expected: "http://host.docker.internal:3000/api",
		},
		{
			name:     "127.0.0.1 rewritten",
			rewrite:  true,
			value:    "http://127.0.0.1:8080",
			expected: "http://host.docker.internal:8080",
		},
		{
			name:     "IPv6 loopback rewritten",
			rewrite:  true,
			value:    "http://[::1]:9000",
			expected: "http://host.docker.internal:9000",
		},
		{
			name:     "no port",
			rewrite:  true,
			value:    "https://localhost/path",
			expected: "https://host.docker.internal/path",
		},
		{
			name:     "non-loopback host untouched",
			rewrite:  true,
			value:    "http://db.internal:5432",
			expected: "http://db.internal:5432",
		},
		{
			name:     "non-URL value untouched",
			rewrite:  true,
			value:    "/data/files",
			expected: "/data/files",
		},
		{
			name:     "in-cluster mode never rewrites",
			rewrite:  false,
			value:    "http://localhost:3000",
			expected: "http://localhost:3000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Assembler{RewriteLocalhost: tt.rewrite}
			entries, _, err := a.Assemble(
				[]catalog.EnvVarDef{plainDef("URL", tt.value)},
				nil, nil, nil,
			)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, tt.expected, entries[0].Value)
		})
	}
}

func TestAssembleGenericConfigFallback(t *testing.T) {
	a := &Assembler{}

	// No declared schema: every config value becomes a normalized plain entry,
	// in sorted key order.
	entries, _, err := a.Assemble(
		nil, nil,
		map[string]string{"api-key": "abc", "data dir": "/data"},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, corev1.EnvVar{Name: "API_KEY", Value: "abc"}, entries[0])
	assert.Equal(t, corev1.EnvVar{Name: "DATA_DIR", Value: "/data"}, entries[1])
}

func TestAssembleDeclaredKeysNotDuplicated(t *testing.T) {
	a := &Assembler{}

	entries, _, err := a.Assemble(
		[]catalog.EnvVarDef{plainDef("MODE", "fast")},
		nil,
		map[string]string{"MODE": "ignored", "EXTRA": "kept"},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "MODE", entries[0].Name)
	assert.Equal(t, "fast", entries[0].Value)
	assert.Equal(t, "EXTRA", entries[1].Name)
}

func TestAssembleRequiredPlainTextMissing(t *testing.T) {
	a := &Assembler{}

	_, _, err := a.Assemble(
		[]catalog.EnvVarDef{{Key: "DATA_DIR", Type: catalog.EnvPlainText, PromptOnInstallation: true, Required: true}},
		map[string]string{}, nil, nil,
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATA_DIR")
}
