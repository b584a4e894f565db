package sanitize

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxResourceNameLen is the Kubernetes limit for most resource names (RFC 1123 subdomain).
const MaxResourceNameLen = 253

// MaxLabelValueLen is the Kubernetes limit for label values, which is stricter
// than the resource name limit.
const MaxLabelValueLen = 63

// workloadNamePrefix is prepended to every derived workload resource name so
// that orchestrator-owned resources are recognizable in the cluster.
const workloadNamePrefix = "mcp-"

// Name converts an arbitrary user-supplied string into a cluster-legal
// resource name fragment: lower-cased, whitespace replaced with "-", anything
// outside [a-z0-9.-] stripped, repeated "-" and "." collapsed, and leading or
// trailing non-alphanumerics trimmed.
//
// Name never fails; fully-invalid input yields the empty string. Callers must
// treat an empty derived name as a fatal configuration error.
func Name(input string) string {
	s := strings.ToLower(input)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('-')
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.':
			b.WriteRune(r)
		}
	}
	s = b.String()

	// Collapse runs of separators so "a--b" and "a..b" normalize to "a-b"/"a.b".
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	for strings.Contains(s, "..") {
		s = strings.ReplaceAll(s, "..", ".")
	}

	return strings.Trim(s, "-.")
}

// WorkloadName derives the deterministic cluster resource name for a workload
// from its human-readable name. The result is stable for a given input, so the
// orchestrator can always re-derive the name of a pod it created earlier and
// adopt it without persisting cluster-side identifiers.
func WorkloadName(name string) string {
	derived := workloadNamePrefix + Name(name)
	if derived == workloadNamePrefix {
		return ""
	}
	return truncateName(derived, MaxResourceNameLen)
}

// SecretName derives the cluster Secret name for a workload. It is keyed only
// by the workload id so the name survives renames of the workload.
func SecretName(id string) string {
	derived := Name(id)
	if derived == "" {
		return ""
	}
	return truncateName(fmt.Sprintf("mcp-%s-secrets", derived), MaxResourceNameLen)
}

// Labels sanitizes a label map per the same rule as Name, additionally
// truncating each value to the 63-character label limit. Keys that sanitize to
// the empty string are dropped.
func Labels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		key := Name(k)
		if key == "" {
			continue
		}
		out[key] = truncateName(Name(v), MaxLabelValueLen)
	}
	return out
}

// EnvKey normalizes an arbitrary configuration key into an environment
// variable name: upper-cased, with every non-alphanumeric character replaced
// by "_".
func EnvKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// truncateName cuts s to maxLen and re-trims trailing separators, since a cut
// can land on a "-" or "." and leave an illegal trailing character.
func truncateName(s string, maxLen int) string {
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.TrimRight(s, "-.")
}
