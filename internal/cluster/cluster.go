package cluster

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	ctrl "sigs.k8s.io/controller-runtime"

	"toolpod/pkg/logging"
)

// serviceAccountNamespaceFile is mounted into every pod and identifies the
// namespace the orchestrator itself runs in.
const serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

// DefaultNamespace is used when no namespace is configured and the process is
// not running inside the cluster.
const DefaultNamespace = "default"

// Connection is an established connection to the cluster control plane.
//
// InCluster distinguishes the two deployment shapes the runtime supports:
// running inside the cluster it manages (production) and running on a
// developer machine against a remote or local control plane (development).
// Endpoint resolution and localhost rewriting both depend on this.
type Connection struct {
	Clientset kubernetes.Interface
	Namespace string
	InCluster bool
}

// Connect builds a clientset from the in-cluster service account when
// available, falling back to kubeconfig resolution otherwise. An explicit
// namespace overrides detection.
func Connect(namespace string) (*Connection, error) {
	config, inCluster, err := resolveConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster configuration: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}

	if namespace == "" {
		namespace = detectNamespace(inCluster)
	}

	logging.Info("Cluster", "Connected to cluster (namespace: %s, in-cluster: %t)", namespace, inCluster)
	return &Connection{
		Clientset: clientset,
		Namespace: namespace,
		InCluster: inCluster,
	}, nil
}

func resolveConfig() (*rest.Config, bool, error) {
	if config, err := rest.InClusterConfig(); err == nil {
		return config, true, nil
	}

	config, err := ctrl.GetConfig()
	if err != nil {
		return nil, false, err
	}
	return config, false, nil
}

func detectNamespace(inCluster bool) string {
	if inCluster {
		if data, err := os.ReadFile(serviceAccountNamespaceFile); err == nil {
			if ns := strings.TrimSpace(string(data)); ns != "" {
				return ns
			}
		}
	}
	return DefaultNamespace
}

// Probe verifies cluster connectivity with a single bounded list call. It is
// run before bulk startup so a dead control plane fails fast instead of
// failing every workload individually.
func (c *Connection) Probe(ctx context.Context) error {
	_, err := c.Clientset.CoreV1().Pods(c.Namespace).List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("cluster connectivity probe failed: %w", err)
	}
	return nil
}

// RecordEvent attaches a lifecycle event to a workload pod. Event recording
// is best effort: failures are logged and never propagate into lifecycle
// operations.
func (c *Connection) RecordEvent(ctx context.Context, podName, reason, message, eventType string) {
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: podName + "-",
			Namespace:    c.Namespace,
		},
		InvolvedObject: corev1.ObjectReference{
			APIVersion: "v1",
			Kind:       "Pod",
			Name:       podName,
			Namespace:  c.Namespace,
		},
		Reason:         reason,
		Message:        message,
		Type:           eventType,
		Source:         corev1.EventSource{Component: "toolpod"},
		FirstTimestamp: metav1.NewTime(time.Now()),
		LastTimestamp:  metav1.NewTime(time.Now()),
		Count:          1,
	}

	if _, err := c.Clientset.CoreV1().Events(c.Namespace).Create(ctx, event, metav1.CreateOptions{}); err != nil {
		logging.Debug("Cluster", "Failed to record event %s for pod %s: %v", reason, podName, err)
	}
}
