package env

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"

	corev1 "k8s.io/api/core/v1"

	"toolpod/internal/catalog"
	"toolpod/pkg/logging"
	"toolpod/pkg/sanitize"
)

// DefaultHostAlias is the container-side name for the machine running the
// orchestrator when it executes outside the cluster.
const DefaultHostAlias = "host.docker.internal"

// placeholderPattern matches ${user_config.KEY} references in template values.
var placeholderPattern = regexp.MustCompile(`\$\{user_config\.([^}]+)\}`)

// Assembler turns a template's environment schema plus install-time values
// into pod env entries and the key/value data for the backing cluster Secret.
type Assembler struct {
	// SecretName is the derived cluster Secret name referenced by secret-typed
	// entries.
	SecretName string

	// RewriteLocalhost enables rewriting localhost URLs to HostAlias. It must
	// only be set when the orchestrator runs outside the cluster; in-cluster,
	// localhost values are left alone.
	RewriteLocalhost bool

	// HostAlias overrides DefaultHostAlias.
	HostAlias string
}

// Assemble applies the per-definition rules in template order, then appends
// config values not covered by the schema as upper-cased plain entries.
//
// The second return value is the data the cluster Secret must contain; it is
// non-empty exactly when at least one secret-typed entry was emitted, and the
// caller must write the Secret before creating the pod.
func (a *Assembler) Assemble(
	defs []catalog.EnvVarDef,
	prompted map[string]string,
	config map[string]string,
	secretValues map[string]string,
) ([]corev1.EnvVar, map[string]string, error) {
	var entries []corev1.EnvVar
	secretData := make(map[string]string)
	declared := make(map[string]bool, len(defs))

	for _, def := range defs {
		declared[def.Key] = true

		switch def.Type {
		case catalog.EnvSecret:
			value := secretValues[def.Key]
			if value == "" {
				// No secret entry is created for an empty value; the variable
				// is omitted entirely rather than exported empty.
				if def.Required {
					logging.Warn("EnvAssembler", "Required secret variable %s has no resolved value, omitting", def.Key)
				}
				continue
			}
			secretData[def.Key] = value
			entries = append(entries, corev1.EnvVar{
				Name: def.Key,
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: a.SecretName},
						Key:                  def.Key,
					},
				},
			})

		case catalog.EnvPlainText:
			var value string
			if def.PromptOnInstallation {
				value = prompted[def.Key]
			} else {
				value = substitutePlaceholders(def.Value, prompted, config)
			}
			value = stripQuotes(value)
			value = a.rewriteLocalhost(value)

			if value == "" && def.Required {
				return nil, nil, fmt.Errorf("required environment variable %s has no value", def.Key)
			}
			entries = append(entries, corev1.EnvVar{Name: def.Key, Value: value})

		default:
			return nil, nil, fmt.Errorf("environment variable %s has unsupported type %s", def.Key, def.Type)
		}
	}

	// Config values the template does not declare are passed through as plain
	// entries with normalized names. For templates with no environment schema
	// at all, this is the only path.
	extra := make([]string, 0, len(config))
	for key := range config {
		if !declared[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		value := stripQuotes(config[key])
		value = a.rewriteLocalhost(value)
		entries = append(entries, corev1.EnvVar{Name: sanitize.EnvKey(key), Value: value})
	}

	return entries, secretData, nil
}

// substitutePlaceholders replaces ${user_config.KEY} references. The prompted
// map wins over the generic config map; unresolved placeholders are left
// verbatim so a missing value is visible in the container rather than
// silently blanked.
func substitutePlaceholders(value string, prompted, config map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, exists := prompted[key]; exists {
			return v
		}
		if v, exists := config[key]; exists {
			return v
		}
		return match
	})
}

// stripQuotes removes one pair of surrounding matching quote characters.
// Installers quote values containing spaces in the UI; the quotes are a UI
// convention, not part of the value. A bare quote character is left unchanged.
func stripQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	first := value[0]
	if (first == '\'' || first == '"') && value[len(value)-1] == first {
		return value[1 : len(value)-1]
	}
	return value
}

// rewriteLocalhost maps loopback URLs to the host alias so services running
// on the developer machine remain reachable from inside the pod.
func (a *Assembler) rewriteLocalhost(value string) string {
	if !a.RewriteLocalhost {
		return value
	}

	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return value
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
	default:
		return value
	}

	alias := a.HostAlias
	if alias == "" {
		alias = DefaultHostAlias
	}
	if port := parsed.Port(); port != "" {
		parsed.Host = alias + ":" + port
	} else {
		parsed.Host = alias
	}
	rewritten := parsed.String()
	logging.Debug("EnvAssembler", "Rewrote loopback URL %s to %s", value, rewritten)
	return rewritten
}

