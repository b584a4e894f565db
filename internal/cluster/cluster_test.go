package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func TestProbe(t *testing.T) {
	conn := &Connection{
		Clientset: fake.NewSimpleClientset(),
		Namespace: "default",
	}

	assert.NoError(t, conn.Probe(context.Background()))
}

func TestProbeSurfacesClusterErrors(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("list", "pods",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, assert.AnError
		})

	conn := &Connection{Clientset: clientset, Namespace: "default"}

	err := conn.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectivity probe failed")
}

func TestRecordEvent(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	conn := &Connection{Clientset: clientset, Namespace: "default"}

	conn.RecordEvent(context.Background(), "mcp-files", "WorkloadStarted", "pod is ready", "Normal")

	events, err := clientset.CoreV1().Events("default").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, events.Items, 1)
	assert.Equal(t, "WorkloadStarted", events.Items[0].Reason)
	assert.Equal(t, "mcp-files", events.Items[0].InvolvedObject.Name)
	assert.Equal(t, "toolpod", events.Items[0].Source.Component)
}

func TestRecordEventSwallowsErrors(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "events",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, assert.AnError
		})

	conn := &Connection{Clientset: clientset, Namespace: "default"}

	// Must not panic or propagate.
	conn.RecordEvent(context.Background(), "mcp-files", "WorkloadFailed", "boom", "Warning")
}
