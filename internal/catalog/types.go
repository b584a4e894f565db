package catalog

import (
	"fmt"
)

// TransportMode describes how the platform talks to a workload.
type TransportMode string

const (
	// TransportStdio is a workload driven over attached process streams.
	TransportStdio TransportMode = "stdio"

	// TransportStreamableHTTP is a workload exposing a networked HTTP endpoint.
	TransportStreamableHTTP TransportMode = "streamable-http"
)

// IsNetworked returns true for transport modes that require a Service and an
// HTTP endpoint.
func (m TransportMode) IsNetworked() bool {
	return m == TransportStreamableHTTP
}

// ServerType distinguishes workloads the runtime is responsible for running
// ("local", containerized in the cluster) from servers the platform merely
// connects to ("remote").
type ServerType string

const (
	ServerTypeLocal  ServerType = "local"
	ServerTypeRemote ServerType = "remote"
)

// EnvVarType describes how an environment variable definition is materialized.
type EnvVarType string

const (
	// EnvPlainText variables are inlined into the pod spec as literal values.
	EnvPlainText EnvVarType = "plain_text"

	// EnvSecret variables are injected by reference into the cluster Secret
	// and never appear as literals in the pod spec.
	EnvSecret EnvVarType = "secret"
)

// EnvVarDef is one entry of a template's environment variable schema.
type EnvVarDef struct {
	Key                  string     `yaml:"key"`
	Type                 EnvVarType `yaml:"type"`
	Value                string     `yaml:"value,omitempty"`
	PromptOnInstallation bool       `yaml:"promptOnInstallation,omitempty"`
	Required             bool       `yaml:"required,omitempty"`
}

// Transport is the tagged transport variant of a template. Mode selects which
// of the optional fields are meaningful; Validate pins that down once at the
// catalog boundary so the orchestrator never branches on field presence.
type Transport struct {
	Mode TransportMode `yaml:"mode"`

	// Port and Path apply to streamable-http only.
	Port int32  `yaml:"port,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// DefaultHTTPPath is used when a streamable-http template omits the path.
const DefaultHTTPPath = "/mcp"

// Template is the reusable definition a workload is instantiated from.
// Templates are owned by the Catalog Store and read-only to the runtime.
type Template struct {
	ID         string     `yaml:"id"`
	ServerType ServerType `yaml:"serverType,omitempty"`

	Image   string   `yaml:"image"`
	Command []string `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`

	Transport Transport `yaml:"transport"`

	Env []EnvVarDef `yaml:"env,omitempty"`

	// ServiceAccount optionally pins the pod to a cluster service account.
	ServiceAccount string `yaml:"serviceAccount,omitempty"`
}

// Validate checks the template once at the store boundary. Templates that pass
// validation can be consumed by the runtime without re-checking optional field
// presence.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Image == "" {
		return fmt.Errorf("template %s: image is required", t.ID)
	}

	switch t.Transport.Mode {
	case TransportStdio:
		if len(t.Command) == 0 {
			return fmt.Errorf("template %s: command is required for stdio transport", t.ID)
		}
	case TransportStreamableHTTP:
		if t.Transport.Port <= 0 {
			return fmt.Errorf("template %s: port is required for streamable-http transport", t.ID)
		}
		if t.Transport.Path == "" {
			t.Transport.Path = DefaultHTTPPath
		}
	default:
		return fmt.Errorf("template %s: unsupported transport mode: %s (supported: %s, %s)",
			t.ID, t.Transport.Mode, TransportStdio, TransportStreamableHTTP)
	}

	for i, def := range t.Env {
		if def.Key == "" {
			return fmt.Errorf("template %s: env definition %d has empty key", t.ID, i)
		}
		switch def.Type {
		case EnvPlainText, EnvSecret:
		default:
			return fmt.Errorf("template %s: env %s has unsupported type: %s", t.ID, def.Key, def.Type)
		}
	}

	if t.ServerType == "" {
		t.ServerType = ServerTypeLocal
	}

	return nil
}

// HasSecretEnv reports whether any environment definition is secret-typed,
// which decides whether a cluster Secret is provisioned at all.
func (t *Template) HasSecretEnv() bool {
	for _, def := range t.Env {
		if def.Type == EnvSecret {
			return true
		}
	}
	return false
}

// DesiredWorkload is the persisted record declaring that a workload should
// exist. It is owned by the install/uninstall flow; the runtime reads it and
// writes back installation status through the Store.
type DesiredWorkload struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	TemplateID string `yaml:"templateId"`

	// SecretRef optionally names an entry in the Secret Store whose key/value
	// contents populate secret-typed environment variables.
	SecretRef string `yaml:"secretRef,omitempty"`

	// Team is the declared owner, carried into cluster labels.
	Team string `yaml:"team,omitempty"`

	// UserConfig holds the values supplied at install time for prompted
	// variables and ${user_config.KEY} placeholder substitution.
	UserConfig map[string]string `yaml:"userConfig,omitempty"`
}
