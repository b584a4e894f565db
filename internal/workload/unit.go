package workload

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"toolpod/internal/catalog"
	"toolpod/internal/cluster"
	"toolpod/internal/env"
	"toolpod/pkg/logging"
	"toolpod/pkg/sanitize"
)

// State is the lifecycle state of a workload unit.
type State string

const (
	StateNotCreated State = "not_created"
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateFailed     State = "failed"
)

// Readiness polling bounds. A pod that is neither ready nor showing a
// permanent failure signature within attempts*interval is reported as a
// timeout rather than waited on forever.
const (
	DefaultReadyAttempts = 60
	DefaultReadyInterval = 2 * time.Second
)

// RestartGracePeriod is the pause between stop and start during a restart,
// giving the cluster time to release the pod name and any allocated ports.
const RestartGracePeriod = 2 * time.Second

// Deps are the injected collaborators of a workload unit. Tests supply a fake
// clientset inside Connection and in-memory store/resolver implementations.
type Deps struct {
	Conn    *cluster.Connection
	Store   catalog.Store
	Secrets catalog.SecretResolver

	// RestartGrace overrides the pause between stop and start during a
	// restart. Zero means RestartGracePeriod.
	RestartGrace time.Duration
}

// Unit owns the full cluster lifecycle of one desired workload: secret
// provisioning, pod spec generation, create-or-adopt, readiness, service and
// endpoint provisioning for networked workloads, log access, and teardown.
//
// All cluster operations within one unit are issued strictly sequentially;
// concurrency exists only across units. The unit's in-memory state is a fast
// cache for status reporting - on any ambiguity the unit re-queries the
// cluster instead of trusting it.
type Unit struct {
	deps Deps

	id         string
	name       string
	podName    string
	secretName string

	mu        sync.RWMutex
	state     State
	lastError error
	transport catalog.TransportMode
	endpoint  string
	discovery DiscoveryStatus
	prompted  map[string]string
	config    map[string]string

	readyAttempts int
	readyInterval time.Duration
	restartGrace  time.Duration
}

// New derives the unit's deterministic resource names from the desired
// workload record. An empty derived name (fully invalid input) is a fatal
// configuration error reported before any cluster call is made.
func New(w catalog.DesiredWorkload, deps Deps) (*Unit, error) {
	podName := sanitize.WorkloadName(w.Name)
	if podName == "" {
		return nil, fmt.Errorf("workload %s: name %q yields an empty cluster resource name", w.ID, w.Name)
	}
	secretName := sanitize.SecretName(w.ID)
	if secretName == "" {
		return nil, fmt.Errorf("workload %s: id yields an empty secret name", w.ID)
	}

	grace := deps.RestartGrace
	if grace <= 0 {
		grace = RestartGracePeriod
	}

	return &Unit{
		deps:          deps,
		id:            w.ID,
		name:          w.Name,
		podName:       podName,
		secretName:    secretName,
		state:         StateNotCreated,
		readyAttempts: DefaultReadyAttempts,
		readyInterval: DefaultReadyInterval,
		restartGrace:  grace,
	}, nil
}

// ID returns the desired workload id this unit manages.
func (u *Unit) ID() string { return u.id }

// PodName returns the derived cluster pod name.
func (u *Unit) PodName() string { return u.podName }

// State returns the current lifecycle state.
func (u *Unit) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// LastError returns the retained error of the most recent failure, or nil.
func (u *Unit) LastError() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastError
}

// Endpoint returns the resolved HTTP endpoint URL for networked workloads,
// or the empty string for stdio workloads and workloads that are not running.
func (u *Unit) Endpoint() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.endpoint
}

// UsesNetworkedTransport reports whether the workload's template declares a
// streamable-http transport. Meaningful once the unit has been started or
// adopted.
func (u *Unit) UsesNetworkedTransport() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.transport.IsNetworked()
}

// Discovery returns the state of the post-start tool discovery task.
func (u *Unit) Discovery() DiscoveryStatus {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.discovery
}

func (u *Unit) setState(state State, err error) {
	u.mu.Lock()
	u.state = state
	u.lastError = err
	u.mu.Unlock()
}

func (u *Unit) setEndpoint(endpoint string) {
	u.mu.Lock()
	u.endpoint = endpoint
	u.mu.Unlock()
}

func (u *Unit) setTransport(mode catalog.TransportMode) {
	u.mu.Lock()
	u.transport = mode
	u.mu.Unlock()
}

// StartOrAdopt drives the workload to running. If a pod with the derived name
// already exists and is running it is adopted as-is, which makes startup
// idempotent across orchestrator restarts. A pod in a terminal failed phase is
// deleted together with its secret and recreated from the template.
//
// prompted and config are the install-time value maps; either may be nil, in
// which case the values persisted on the workload record are used.
//
// On any failure the unit transitions to StateFailed with the error retained
// for status reporting, and the error is returned so the caller can decide
// whether to roll back the desired-state record.
func (u *Unit) StartOrAdopt(ctx context.Context, w catalog.DesiredWorkload, prompted, config map[string]string) error {
	if prompted == nil {
		prompted = w.UserConfig
	}
	if config == nil {
		config = w.UserConfig
	}
	u.mu.Lock()
	u.prompted = prompted
	u.config = config
	u.mu.Unlock()

	if err := u.startOrAdopt(ctx, w); err != nil {
		u.setState(StateFailed, err)
		u.reportStatus(ctx, "failed", err.Error())
		return err
	}
	u.reportStatus(ctx, "running", "")
	return nil
}

func (u *Unit) startOrAdopt(ctx context.Context, w catalog.DesiredWorkload) error {
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)

	// The template is fetched unconditionally: even the adoption path needs
	// the transport mode to know whether an endpoint must be resolved.
	tmpl, err := u.deps.Store.GetTemplate(ctx, w.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", w.TemplateID, err)
	}
	u.setTransport(tmpl.Transport.Mode)

	existing, err := pods.Get(ctx, u.podName, metav1.GetOptions{})
	switch {
	case err == nil:
		switch existing.Status.Phase {
		case corev1.PodRunning:
			logging.Info("WorkloadUnit", "Adopting running pod %s for workload %s", u.podName, u.id)
			if tmpl.Transport.Mode.IsNetworked() {
				endpoint, err := u.resolveEndpoint(ctx, tmpl)
				if err != nil {
					return fmt.Errorf("failed to resolve endpoint for adopted pod %s: %w", u.podName, err)
				}
				u.setEndpoint(endpoint)
			}
			u.setState(StateRunning, nil)
			return nil

		case corev1.PodFailed:
			logging.Warn("WorkloadUnit", "Pod %s is in failed phase, recreating", u.podName)
			if err := u.deleteResources(ctx); err != nil {
				return fmt.Errorf("failed to clean up failed pod %s: %w", u.podName, err)
			}

		default:
			// Created but not yet running (a previous start was interrupted).
			// Adopt the in-flight creation and wait for readiness below.
			logging.Info("WorkloadUnit", "Adopting pod %s in phase %s for workload %s",
				u.podName, existing.Status.Phase, u.id)
			u.setState(StatePending, nil)
			if err := u.waitForReady(ctx); err != nil {
				return err
			}
			return u.finishStart(ctx, tmpl)
		}

	case apierrors.IsNotFound(err):
		// Nothing to adopt, create below.

	default:
		return fmt.Errorf("failed to query pod %s: %w", u.podName, err)
	}

	return u.create(ctx, w, tmpl)
}

// create provisions secret, pod and service in the strict order the pod spec
// requires: the spec references the secret by name, so the secret must exist
// first.
func (u *Unit) create(ctx context.Context, w catalog.DesiredWorkload, tmpl *catalog.Template) error {
	secretValues, err := u.resolveSecretValues(ctx, w, tmpl)
	if err != nil {
		return err
	}

	assembler := &env.Assembler{
		SecretName:       u.secretName,
		RewriteLocalhost: !u.deps.Conn.InCluster,
	}
	u.mu.RLock()
	prompted, config := u.prompted, u.config
	u.mu.RUnlock()
	envEntries, secretData, err := assembler.Assemble(tmpl.Env, prompted, config, secretValues)
	if err != nil {
		return fmt.Errorf("failed to assemble environment for workload %s: %w", u.id, err)
	}

	if len(secretData) > 0 {
		if err := u.applySecret(ctx, secretData); err != nil {
			return err
		}
	}

	pod := u.buildPod(w, tmpl, envEntries)
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)
	if _, err := pods.Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create pod %s: %w", u.podName, err)
	}
	u.setState(StatePending, nil)
	logging.Info("WorkloadUnit", "Created pod %s for workload %s", u.podName, u.id)

	if tmpl.Transport.Mode.IsNetworked() {
		if err := u.createService(ctx, tmpl); err != nil {
			// Do not leave a half-created networked workload behind: the pod
			// is useless without its service, so roll it back before failing.
			u.rollbackPod(ctx)
			return err
		}
	}

	if err := u.waitForReady(ctx); err != nil {
		u.deps.Conn.RecordEvent(ctx, u.podName, "WorkloadFailed", err.Error(), corev1.EventTypeWarning)
		return err
	}

	return u.finishStart(ctx, tmpl)
}

// finishStart resolves the endpoint for networked workloads, marks the unit
// running, and kicks off tool discovery.
func (u *Unit) finishStart(ctx context.Context, tmpl *catalog.Template) error {
	if tmpl.Transport.Mode.IsNetworked() {
		endpoint, err := u.resolveEndpoint(ctx, tmpl)
		if err != nil {
			u.rollbackPod(ctx)
			return err
		}
		u.setEndpoint(endpoint)
	}

	u.setState(StateRunning, nil)
	u.deps.Conn.RecordEvent(ctx, u.podName, "WorkloadStarted", "all containers ready", corev1.EventTypeNormal)
	logging.Info("WorkloadUnit", "Workload %s is running (pod %s)", u.id, u.podName)

	u.startToolDiscovery(tmpl)
	return nil
}

// rollbackPod deletes the pod after a partial create. Best effort: the error
// that triggered the rollback is the one worth surfacing.
func (u *Unit) rollbackPod(ctx context.Context) {
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)
	if err := pods.Delete(ctx, u.podName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		logging.Warn("WorkloadUnit", "Failed to roll back pod %s: %v", u.podName, err)
	}
}

// resolveSecretValues fetches the secret contents referenced by the workload.
// Only consulted when the template actually declares secret-typed variables.
func (u *Unit) resolveSecretValues(ctx context.Context, w catalog.DesiredWorkload, tmpl *catalog.Template) (map[string]string, error) {
	if !tmpl.HasSecretEnv() || w.SecretRef == "" {
		return nil, nil
	}
	if u.deps.Secrets == nil {
		return nil, fmt.Errorf("workload %s references secret %s but no secret resolver is configured", u.id, w.SecretRef)
	}
	values, err := u.deps.Secrets.ResolveSecret(ctx, w.SecretRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secret %s for workload %s: %w", w.SecretRef, u.id, err)
	}
	return values, nil
}

// applySecret writes the cluster Secret, updating in place when it already
// exists. A 409 on create means a previous run left the secret behind; the
// write is applied as an update instead of failing.
func (u *Unit) applySecret(ctx context.Context, data map[string]string) error {
	secrets := u.deps.Conn.Clientset.CoreV1().Secrets(u.deps.Conn.Namespace)
	secret := u.buildSecret(data)

	_, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) || apierrors.IsConflict(err) {
		_, err = secrets.Update(ctx, secret, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply secret %s: %w", u.secretName, err)
	}
	return nil
}

// waitForReady polls the pod until every container reports ready. Permanent
// failure signatures (image pull failures, crash loops, container config
// errors) fail fast instead of exhausting the timeout.
func (u *Unit) waitForReady(ctx context.Context) error {
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)

	for attempt := 0; attempt < u.readyAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.readyInterval):
			}
		}

		pod, err := pods.Get(ctx, u.podName, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("failed to poll pod %s: %w", u.podName, err)
		}

		if reason, msg := permanentFailure(pod); reason != "" {
			return fmt.Errorf("pod %s failed permanently: %s: %s", u.podName, reason, msg)
		}

		if podReady(pod) {
			return nil
		}
	}

	return fmt.Errorf("pod %s did not become ready within %s",
		u.podName, time.Duration(u.readyAttempts)*u.readyInterval)
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 {
		return false
	}
	for _, status := range pod.Status.ContainerStatuses {
		if !status.Ready {
			return false
		}
	}
	return true
}

// permanentFailureReasons are container waiting reasons that will not resolve
// without operator intervention.
var permanentFailureReasons = map[string]bool{
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"InvalidImageName":           true,
	"CrashLoopBackOff":           true,
	"CreateContainerConfigError": true,
	"CreateContainerError":       true,
	"RunContainerError":          true,
}

func permanentFailure(pod *corev1.Pod) (reason, message string) {
	if pod.Status.Phase == corev1.PodFailed {
		return "PodFailed", pod.Status.Message
	}
	for _, status := range pod.Status.ContainerStatuses {
		if waiting := status.State.Waiting; waiting != nil && permanentFailureReasons[waiting.Reason] {
			return waiting.Reason, waiting.Message
		}
	}
	return "", ""
}

// Stop deletes the pod. Absence is success: stopping an already-stopped
// workload is a no-op, and the unit always ends in StateNotCreated.
func (u *Unit) Stop(ctx context.Context) error {
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)
	if err := pods.Delete(ctx, u.podName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		u.setState(StateFailed, err)
		return fmt.Errorf("failed to delete pod %s: %w", u.podName, err)
	}

	u.mu.Lock()
	u.state = StateNotCreated
	u.lastError = nil
	u.endpoint = ""
	u.discovery = DiscoveryStatus{}
	u.mu.Unlock()

	logging.Info("WorkloadUnit", "Stopped workload %s (pod %s)", u.id, u.podName)
	return nil
}

// Remove stops the workload and deletes its secret. Both deletions treat
// absence as success, so Remove is safe to call repeatedly.
func (u *Unit) Remove(ctx context.Context) error {
	if err := u.Stop(ctx); err != nil {
		return err
	}

	secrets := u.deps.Conn.Clientset.CoreV1().Secrets(u.deps.Conn.Namespace)
	if err := secrets.Delete(ctx, u.secretName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete secret %s: %w", u.secretName, err)
	}
	return nil
}

// Restart stops the workload, waits a short grace period, and starts it again
// from a freshly fetched desired-state record so a rename or config change
// between stop and start is picked up rather than replayed from stale data.
func (u *Unit) Restart(ctx context.Context) error {
	if err := u.Stop(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(u.restartGrace):
	}

	fresh, err := u.deps.Store.GetDesiredWorkload(ctx, u.id)
	if err != nil {
		err = fmt.Errorf("failed to refetch workload %s for restart: %w", u.id, err)
		u.setState(StateFailed, err)
		return err
	}

	return u.StartOrAdopt(ctx, *fresh, nil, nil)
}

// deleteResources removes pod and secret, tolerating absence of either.
func (u *Unit) deleteResources(ctx context.Context) error {
	pods := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace)
	if err := pods.Delete(ctx, u.podName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	secrets := u.deps.Conn.Clientset.CoreV1().Secrets(u.deps.Conn.Namespace)
	if err := secrets.Delete(ctx, u.secretName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}

// reportStatus writes the runtime's view back to the catalog record. Status
// write-back is informational and never fails a lifecycle operation.
func (u *Unit) reportStatus(ctx context.Context, status, message string) {
	if err := u.deps.Store.SetRuntimeStatus(ctx, u.id, status, message); err != nil {
		logging.Debug("WorkloadUnit", "Failed to report status %s for workload %s: %v", status, u.id, err)
	}
}
