package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"toolpod/internal/catalog"
	"toolpod/internal/cluster"
	"toolpod/internal/runtime"
	"toolpod/internal/workload"
	"toolpod/pkg/logging"
)

var (
	serveCatalogPath string
	serveNamespace   string
	serveDebug       bool
	serveWatch       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workload orchestrator",
	Long: `Starts the orchestrator: connects to the cluster, loads the catalog and
brings every desired workload up, adopting pods that already run from a
previous process. The process then stays up serving lifecycle operations
until interrupted; managed pods keep running across restarts.

The catalog directory holds templates/ and workloads/ with one YAML
document per file. With --watch, catalog file changes trigger a resync.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	store, err := catalog.NewFileStore(serveCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to open catalog at %s: %w", serveCatalogPath, err)
	}

	conn, err := cluster.Connect(serveNamespace)
	if err != nil {
		return fmt.Errorf("failed to connect to cluster: %w", err)
	}

	manager, err := runtime.NewManager(workload.Deps{
		Conn:    conn,
		Store:   store,
		Secrets: conn,
	})
	if err != nil {
		return err
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx, func(started, failed int) {
		logging.Info("Serve", "Runtime ready: %d workloads running, %d failed", started, failed)
	}); err != nil {
		return err
	}

	if serveWatch {
		events := make(chan catalog.ChangeEvent, 16)
		go func() {
			if err := store.Watch(ctx, events); err != nil {
				logging.Error("Serve", err, "Catalog watch stopped")
			}
		}()
		go func() {
			for event := range events {
				logging.Info("Serve", "Catalog change in %s, resyncing", event.Path)
				// Adoption is idempotent, so a full resync only creates
				// what is new and re-registers what failed.
				if err := manager.Start(ctx, nil); err != nil {
					logging.Error("Serve", err, "Resync failed")
				}
			}
		}()
	}

	<-ctx.Done()
	logging.Info("Serve", "Shutting down; managed pods keep running for adoption on next start")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveCatalogPath, "catalog-path", "catalog", "Catalog directory containing templates/ and workloads/")
	serveCmd.Flags().StringVar(&serveNamespace, "namespace", "", "Cluster namespace to manage workloads in (default: detected)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Resync workloads when catalog files change")
}
