package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"toolpod/internal/catalog"
	"toolpod/pkg/logging"
)

// toolDiscoveryTimeout bounds the whole discovery exchange (connect,
// initialize, list).
const toolDiscoveryTimeout = 30 * time.Second

// DiscoveryState tracks the post-start tool discovery task.
type DiscoveryState string

const (
	DiscoveryNone      DiscoveryState = ""
	DiscoverySkipped   DiscoveryState = "skipped"
	DiscoveryRunning   DiscoveryState = "running"
	DiscoveryCompleted DiscoveryState = "completed"
	DiscoveryFailed    DiscoveryState = "failed"
)

// DiscoveryStatus is the recorded outcome of the discovery task.
type DiscoveryStatus struct {
	State     DiscoveryState
	ToolCount int
	Error     string
}

// startToolDiscovery launches the asynchronous tool discovery task after a
// workload reaches running. Discovery is an explicit task with its own
// completion and failure state, not a fire-and-forget side effect: its
// outcome lands on the unit and is written back to the catalog record.
//
// Stdio workloads are skipped - there is no network path to dial; their tools
// are enumerated by the platform's attach path instead.
func (u *Unit) startToolDiscovery(tmpl *catalog.Template) {
	if !tmpl.Transport.Mode.IsNetworked() {
		u.setDiscovery(DiscoveryStatus{State: DiscoverySkipped})
		return
	}

	endpoint := u.Endpoint()
	u.setDiscovery(DiscoveryStatus{State: DiscoveryRunning})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), toolDiscoveryTimeout)
		defer cancel()

		count, err := discoverTools(ctx, endpoint)
		if err != nil {
			logging.Warn("WorkloadUnit", "Tool discovery for workload %s failed: %v", u.id, err)
			u.setDiscovery(DiscoveryStatus{State: DiscoveryFailed, Error: err.Error()})
			u.reportStatus(ctx, "running", fmt.Sprintf("tool discovery failed: %v", err))
			return
		}

		logging.Info("WorkloadUnit", "Discovered %d tools for workload %s", count, u.id)
		u.setDiscovery(DiscoveryStatus{State: DiscoveryCompleted, ToolCount: count})
		u.reportStatus(ctx, "running", fmt.Sprintf("discovered %d tools", count))
	}()
}

func (u *Unit) setDiscovery(status DiscoveryStatus) {
	u.mu.Lock()
	u.discovery = status
	u.mu.Unlock()
}

// discoverTools connects an MCP client to the workload's endpoint and lists
// its tools.
func discoverTools(ctx context.Context, endpoint string) (int, error) {
	mcpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to create MCP client: %w", err)
	}
	defer mcpClient.Close()

	_, err = mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "toolpod",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize MCP protocol: %w", err)
	}

	result, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return 0, fmt.Errorf("failed to list tools: %w", err)
	}
	return len(result.Tools), nil
}
