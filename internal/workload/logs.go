package workload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"

	"toolpod/pkg/logging"
)

// GetLogs returns a snapshot of the pod's log tail. lines bounds the tail;
// zero or negative means the full log.
func (u *Unit) GetLogs(ctx context.Context, lines int64) (string, error) {
	opts := &corev1.PodLogOptions{Container: containerName}
	if lines > 0 {
		opts.TailLines = &lines
	}

	req := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace).GetLogs(u.podName, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to open log stream for pod %s: %w", u.podName, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("failed to read logs for pod %s: %w", u.podName, err)
	}
	return string(data), nil
}

// StreamLogs follows the pod's log and writes each line to sink. The stream
// runs until the context is cancelled or the sink stops accepting writes;
// both tear down the underlying cluster log connection before returning, so
// a disconnected consumer cannot leak a follower.
func (u *Unit) StreamLogs(ctx context.Context, sink io.Writer, lines int64) error {
	opts := &corev1.PodLogOptions{Container: containerName, Follow: true}
	if lines > 0 {
		opts.TailLines = &lines
	}

	req := u.deps.Conn.Clientset.CoreV1().Pods(u.deps.Conn.Namespace).GetLogs(u.podName, opts)
	stream, err := req.Stream(ctx)
	if err != nil {
		return fmt.Errorf("failed to open log stream for pod %s: %w", u.podName, err)
	}
	defer stream.Close()

	scanner := bufio.NewScanner(stream)
	// Container log lines can exceed the default scanner buffer.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if _, err := sink.Write(append(scanner.Bytes(), '\n')); err != nil {
			// Consumer went away; this is a normal end of streaming.
			logging.Debug("WorkloadUnit", "Log consumer for pod %s disconnected: %v", u.podName, err)
			return nil
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("log stream for pod %s ended: %w", u.podName, err)
	}
	return nil
}
