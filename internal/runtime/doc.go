// Package runtime hosts the Manager that turns the catalog's desired
// workloads into managed workload units.
//
// The Manager is the programmatic surface the surrounding platform calls:
// bulk Start at boot, StartServer/StopServer/RestartServer/RemoveServer for
// individual installs and uninstalls, log access, and a cheap in-memory
// StatusSummary. It keeps one workload.Unit per desired workload id and
// serializes lifecycle operations per id with a keyed mutex, while different
// ids proceed in parallel.
//
// Bulk Start settles all units rather than aborting on the first failure:
// every unit ends up running or registered as failed with its error retained,
// and the ready callback fires once with the final counts.
package runtime
