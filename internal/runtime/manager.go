package runtime

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"toolpod/internal/catalog"
	"toolpod/internal/workload"
	"toolpod/pkg/logging"
)

// ErrUnknownWorkload is returned when an operation names a workload id the
// manager has no unit for.
var ErrUnknownWorkload = fmt.Errorf("unknown workload")

// Status is a point-in-time view of one managed workload. It is assembled
// from in-memory unit state only, so it stays available when the cluster is
// unreachable.
type Status struct {
	State     workload.State
	Error     string
	Endpoint  string
	Discovery workload.DiscoveryStatus
}

// Manager owns the id to unit map and serializes lifecycle operations per
// workload id. Operations on different ids run fully in parallel; a stop
// racing a start on the same id queues behind it instead.
type Manager struct {
	deps workload.Deps

	mu    sync.RWMutex
	units map[string]*workload.Unit

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager builds a manager around explicit dependencies. There is no
// process-wide instance; hosts and tests construct their own.
func NewManager(deps workload.Deps) (*Manager, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("runtime manager requires a cluster connection")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("runtime manager requires a catalog store")
	}
	return &Manager{
		deps:  deps,
		units: make(map[string]*workload.Unit),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// idLock returns the mutex serializing operations for one workload id,
// creating it on first use. Locks are never discarded; the set of ids a
// process manages is small and stable.
func (m *Manager) idLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, exists := m.locks[id]
	if !exists {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

func (m *Manager) unit(id string) (*workload.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, exists := m.units[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkload, id)
	}
	return u, nil
}

// Start brings up every desired workload whose template runs locally in the
// cluster. Units are started in parallel and failures are settled, not
// propagated: a misconfigured workload ends up registered in failed state
// while its siblings keep starting. onReady, if non-nil, fires exactly once
// after the whole batch settles, with the started and failed counts.
//
// Start itself errors only when the cluster is unreachable or the desired
// set cannot be listed.
func (m *Manager) Start(ctx context.Context, onReady func(started, failed int)) error {
	if err := m.deps.Conn.Probe(ctx); err != nil {
		return fmt.Errorf("cluster connectivity probe failed: %w", err)
	}

	desired, err := m.deps.Store.ListDesiredWorkloads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list desired workloads: %w", err)
	}

	var (
		outcomeMu sync.Mutex
		started   int
		failed    int
	)

	var group errgroup.Group
	for _, w := range desired {
		tmpl, err := m.deps.Store.GetTemplate(ctx, w.TemplateID)
		if err == nil && tmpl.ServerType != catalog.ServerTypeLocal {
			logging.Debug("RuntimeManager", "Skipping workload %s: server type %s is not cluster-managed", w.ID, tmpl.ServerType)
			continue
		}
		// A missing template is not skipped here: StartServer registers the
		// unit and fails it, keeping the broken workload visible.

		group.Go(func() error {
			err := m.StartServer(ctx, w, nil, nil)
			outcomeMu.Lock()
			defer outcomeMu.Unlock()
			if err != nil {
				logging.Error("RuntimeManager", err, "Workload %s failed to start", w.ID)
				failed++
			} else {
				started++
			}
			// Never abort siblings; outcomes are settled above.
			return nil
		})
	}
	_ = group.Wait()

	logging.Info("RuntimeManager", "Bulk start settled: %d running, %d failed", started, failed)
	if onReady != nil {
		onReady(started, failed)
	}
	return nil
}

// StartServer starts or adopts a single workload. The unit stays registered
// on failure so its error remains visible to operators; the error still
// propagates so install flows can roll the record back.
func (m *Manager) StartServer(ctx context.Context, w catalog.DesiredWorkload, prompted, config map[string]string) error {
	lock := m.idLock(w.ID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.RLock()
	u, exists := m.units[w.ID]
	m.mu.RUnlock()

	if !exists {
		created, err := workload.New(w, m.deps)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.units[w.ID] = created
		m.mu.Unlock()
		u = created
	}

	return u.StartOrAdopt(ctx, w, prompted, config)
}

// StopServer deletes the workload's pod and leaves the unit registered in
// not_created state, ready for a later start.
func (m *Manager) StopServer(ctx context.Context, id string) error {
	lock := m.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.unit(id)
	if err != nil {
		return err
	}
	return u.Stop(ctx)
}

// RestartServer stops the workload and starts it again from a freshly
// fetched desired record.
func (m *Manager) RestartServer(ctx context.Context, id string) error {
	lock := m.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.unit(id)
	if err != nil {
		return err
	}
	return u.Restart(ctx)
}

// RemoveServer tears the workload down completely, pod and secret, and drops
// the unit from the manager.
func (m *Manager) RemoveServer(ctx context.Context, id string) error {
	lock := m.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	u, err := m.unit(id)
	if err != nil {
		return err
	}
	if err := u.Remove(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.units, id)
	m.mu.Unlock()
	return nil
}

// GetLogs returns a log tail snapshot for the workload's pod.
func (m *Manager) GetLogs(ctx context.Context, id string, lines int64) (string, error) {
	u, err := m.unit(id)
	if err != nil {
		return "", err
	}
	return u.GetLogs(ctx, lines)
}

// StreamLogs follows the workload's pod log into sink until the context is
// cancelled or the sink stops accepting writes.
func (m *Manager) StreamLogs(ctx context.Context, id string, sink io.Writer, lines int64) error {
	u, err := m.unit(id)
	if err != nil {
		return err
	}
	return u.StreamLogs(ctx, sink, lines)
}

// UsesNetworkedTransport reports whether the workload exposes an HTTP
// endpoint.
func (m *Manager) UsesNetworkedTransport(id string) (bool, error) {
	u, err := m.unit(id)
	if err != nil {
		return false, err
	}
	return u.UsesNetworkedTransport(), nil
}

// GetEndpointURL returns the workload's reachable endpoint. Empty for stdio
// workloads and for workloads that are not running.
func (m *Manager) GetEndpointURL(id string) (string, error) {
	u, err := m.unit(id)
	if err != nil {
		return "", err
	}
	return u.Endpoint(), nil
}

// StatusSummary snapshots every registered unit. It touches in-memory state
// only and never calls the cluster.
func (m *Manager) StatusSummary() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := make(map[string]Status, len(m.units))
	for id, u := range m.units {
		status := Status{
			State:     u.State(),
			Endpoint:  u.Endpoint(),
			Discovery: u.Discovery(),
		}
		if err := u.LastError(); err != nil {
			status.Error = err.Error()
		}
		summary[id] = status
	}
	return summary
}
