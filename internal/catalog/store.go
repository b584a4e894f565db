package catalog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups for unknown ids. The runtime treats
// a missing template as a fatal configuration error, never a retryable one.
var ErrNotFound = errors.New("not found")

// Store is the read side of the Catalog Store plus the narrow write-back the
// runtime needs for installation status. The full catalog (install flows,
// policy, ownership) lives outside this module.
type Store interface {
	// ListDesiredWorkloads returns every persisted workload record.
	ListDesiredWorkloads(ctx context.Context) ([]DesiredWorkload, error)

	// GetDesiredWorkload returns one record by id, or ErrNotFound.
	GetDesiredWorkload(ctx context.Context, id string) (*DesiredWorkload, error)

	// GetTemplate returns a validated template by id, or ErrNotFound.
	GetTemplate(ctx context.Context, id string) (*Template, error)

	// SetRuntimeStatus records the runtime's view of a workload (running,
	// failed, tool discovery outcome) on the desired-state record so the rest
	// of the platform can surface it. Best effort; the runtime logs but does
	// not fail operations on status write errors.
	SetRuntimeStatus(ctx context.Context, id, status, message string) error
}

// SecretResolver resolves a named secret's key/value contents from the
// platform Secret Store. The values populate secret-typed environment
// variables before the cluster Secret is written.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, name string) (map[string]string, error)
}
