package cluster

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ResolveSecret reads a named secret from the connection's namespace and
// returns its decoded key/value contents. An absent secret resolves to an
// empty map rather than an error; templates with optional secret variables
// then simply omit those entries.
func (c *Connection) ResolveSecret(ctx context.Context, name string) (map[string]string, error) {
	if name == "" {
		return map[string]string{}, nil
	}

	secret, err := c.Clientset.CoreV1().Secrets(c.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to resolve secret %s: %w", name, err)
	}

	values := make(map[string]string, len(secret.Data))
	for key, raw := range secret.Data {
		values[key] = string(raw)
	}
	return values, nil
}
