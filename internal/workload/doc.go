// Package workload implements the per-workload lifecycle unit of the runtime.
//
// A Unit owns exactly one desired workload's cluster footprint: a pod with a
// deterministic derived name, an optional secret (only when the template
// declares secret-typed environment variables), and an optional service (only
// for streamable-http transports). Because every resource name is a pure
// function of the workload's identity, a unit can always re-derive and adopt
// resources left behind by a previous orchestrator process instead of
// recreating them.
//
// # State machine
//
// A unit moves not_created -> pending -> running. Any state can fall to
// failed on an unrecoverable cluster error, and failed units stay failed
// until an explicit restart - there is no automatic recovery. Stop returns
// the unit to not_created from any state and treats an already-absent pod as
// success.
//
// # Ordering
//
// Within one unit all cluster calls are strictly sequential: secret before
// pod (the pod spec references the secret by name), pod before service,
// service before endpoint resolution. Concurrency exists only across units
// and is owned by the runtime manager.
//
// # Create-path rollback
//
// If service creation or endpoint resolution fails after the pod was
// created, the pod is deleted before the error propagates. A networked
// workload is never left half-created.
package workload
