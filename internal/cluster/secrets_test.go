package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestResolveSecret(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "platform-secret", Namespace: "default"},
		Data: map[string][]byte{
			"API_TOKEN": []byte("s3cret"),
			"ORG":       []byte("example"),
		},
	})
	conn := &Connection{Clientset: clientset, Namespace: "default"}

	values, err := conn.ResolveSecret(context.Background(), "platform-secret")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_TOKEN": "s3cret", "ORG": "example"}, values)
}

func TestResolveSecretAbsent(t *testing.T) {
	conn := &Connection{Clientset: fake.NewSimpleClientset(), Namespace: "default"}

	values, err := conn.ResolveSecret(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestResolveSecretEmptyName(t *testing.T) {
	conn := &Connection{Clientset: fake.NewSimpleClientset(), Namespace: "default"}

	values, err := conn.ResolveSecret(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, values)
}
