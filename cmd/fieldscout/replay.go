package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fieldscout/internal/config"
	"fieldscout/internal/device"
	"fieldscout/internal/logging"
	"fieldscout/internal/metrics"
	"fieldscout/internal/status"
	"fieldscout/internal/upload"
)

var (
	replayConfigPath string
	replaySchemaPath string
	replayDebug      bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Drain the offline queue once",
	Long:  "replay runs a single pass over the offline queue, delivering pending batches in creation order. Useful after restoring connectivity by hand.",
	RunE:  runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayConfigPath, "config", "config/config.yaml", "Path to YAML config")
	replayCmd.Flags().StringVar(&replaySchemaPath, "schema", "schemas/device.cue", "Path to CUE schema for config validation")
	replayCmd.Flags().BoolVar(&replayDebug, "debug", false, "Enable debug logging")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(replayConfigPath, replaySchemaPath)
	if err != nil {
		return err
	}

	logger := logging.New(replayDebug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.NewContext(ctx, logger)

	deviceUUID, err := device.LoadOrCreate(cfg.DeviceIDPath)
	if err != nil {
		return err
	}
	queue, err := upload.NewQueue(cfg.OfflineDataDir)
	if err != nil {
		return err
	}
	client := upload.NewClient(cfg.IngestURL(), deviceUUID, upload.DefaultPolicy())
	col := metrics.New()
	sink := status.NewDedup(status.NewLogSink(ctx))

	replayer := upload.NewReplayer(client, queue, col, sink, cfg.ReplayInterval())
	delivered := replayer.Cycle(ctx)
	remaining := queue.Depth()
	fmt.Printf("delivered %d batch(es), %d remaining\n", delivered, remaining)
	if remaining > 0 {
		return fmt.Errorf("%d batch(es) still queued", remaining)
	}
	return nil
}
