package workload

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"toolpod/internal/catalog"
	"toolpod/pkg/logging"
	"toolpod/pkg/sanitize"
)

// containerName is the single container every workload pod runs.
const containerName = "mcp-server"

// labels identify orchestrator-owned resources and allow the platform to
// select them. Keys and values go through the label sanitizer, so arbitrary
// team names cannot produce illegal labels.
func (u *Unit) labels(w catalog.DesiredWorkload) map[string]string {
	labels := map[string]string{
		"app":                u.podName,
		"toolpod-managed-by": "toolpod",
		"toolpod-workload":   w.ID,
	}
	if w.Team != "" {
		labels["toolpod-team"] = w.Team
	}
	return sanitize.Labels(labels)
}

func (u *Unit) buildPod(w catalog.DesiredWorkload, tmpl *catalog.Template, envEntries []corev1.EnvVar) *corev1.Pod {
	container := corev1.Container{
		Name:    containerName,
		Image:   tmpl.Image,
		Command: tmpl.Command,
		Args:    tmpl.Args,
		Env:     envEntries,
	}
	if tmpl.Transport.Mode.IsNetworked() {
		container.Ports = []corev1.ContainerPort{
			{
				Name:          "http",
				ContainerPort: tmpl.Transport.Port,
				Protocol:      corev1.ProtocolTCP,
			},
		}
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      u.podName,
			Namespace: u.deps.Conn.Namespace,
			Labels:    u.labels(w),
		},
		Spec: corev1.PodSpec{
			Containers:    []corev1.Container{container},
			RestartPolicy: corev1.RestartPolicyAlways,
		},
	}
	if tmpl.ServiceAccount != "" {
		pod.Spec.ServiceAccountName = tmpl.ServiceAccount
	}
	return pod
}

func (u *Unit) buildSecret(data map[string]string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      u.secretName,
			Namespace: u.deps.Conn.Namespace,
			Labels: sanitize.Labels(map[string]string{
				"toolpod-managed-by": "toolpod",
				"toolpod-workload":   u.id,
			}),
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: data,
	}
}

// createService provisions the backing Service for a networked workload. The
// service shares the pod's derived name. Creation is idempotent: an existing
// service from a previous run is reused as-is.
//
// In-cluster deployments use a ClusterIP service reached via internal DNS;
// out-of-cluster development uses a NodePort so the endpoint is reachable
// from the developer machine via localhost.
func (u *Unit) createService(ctx context.Context, tmpl *catalog.Template) error {
	serviceType := corev1.ServiceTypeClusterIP
	if !u.deps.Conn.InCluster {
		serviceType = corev1.ServiceTypeNodePort
	}

	service := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      u.podName,
			Namespace: u.deps.Conn.Namespace,
			Labels: sanitize.Labels(map[string]string{
				"toolpod-managed-by": "toolpod",
				"toolpod-workload":   u.id,
			}),
		},
		Spec: corev1.ServiceSpec{
			Type:     serviceType,
			Selector: map[string]string{"app": u.podName},
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       tmpl.Transport.Port,
					TargetPort: intstr.FromInt32(tmpl.Transport.Port),
					Protocol:   corev1.ProtocolTCP,
				},
			},
		},
	}

	services := u.deps.Conn.Clientset.CoreV1().Services(u.deps.Conn.Namespace)
	_, err := services.Create(ctx, service, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		logging.Debug("WorkloadUnit", "Service %s already exists, reusing", u.podName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create service %s: %w", u.podName, err)
	}
	return nil
}

// resolveEndpoint computes the externally reachable HTTP endpoint for a
// networked workload from the live Service object.
func (u *Unit) resolveEndpoint(ctx context.Context, tmpl *catalog.Template) (string, error) {
	services := u.deps.Conn.Clientset.CoreV1().Services(u.deps.Conn.Namespace)
	service, err := services.Get(ctx, u.podName, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to look up service %s: %w", u.podName, err)
	}

	if u.deps.Conn.InCluster {
		return fmt.Sprintf("http://%s.%s.svc.cluster.local:%d%s",
			service.Name, u.deps.Conn.Namespace, tmpl.Transport.Port, tmpl.Transport.Path), nil
	}

	for _, port := range service.Spec.Ports {
		if port.NodePort > 0 {
			return fmt.Sprintf("http://localhost:%d%s", port.NodePort, tmpl.Transport.Path), nil
		}
	}
	return "", fmt.Errorf("service %s has no allocated node port", u.podName)
}
