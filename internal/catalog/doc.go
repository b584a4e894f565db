// Package catalog defines the desired-state data model the runtime consumes:
// workload records, the templates they are instantiated from, and the store
// interfaces that back them.
//
// The runtime is read-only against the catalog except for one narrow write
// path, SetRuntimeStatus, used to surface installation and tool-discovery
// outcomes on the workload record.
//
// Templates carry a tagged transport variant (stdio or streamable-http) that
// is validated exactly once, at the store boundary. Code downstream of
// Template.Validate never has to branch on optional field presence: a
// streamable-http template always has a port and a path, a stdio template
// always has a command.
//
// FileStore is the YAML-directory implementation used in local development
// and tests. It can additionally watch its directories with fsnotify and emit
// debounced change events.
package catalog
