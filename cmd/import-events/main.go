// Command import-events tails the import lifecycle topic and logs every
// event, one line each.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SAP-F-2025/inventory-import-service/internal/config"
	"github.com/SAP-F-2025/inventory-import-service/internal/events"
	"github.com/SAP-F-2025/inventory-import-service/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.Environment)

	consumer, err := cfg.Events.CreateEventConsumer(logger)
	if err != nil {
		logger.Error("Failed to create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = consumer.Run(ctx, func(_ context.Context, event *events.ImportEvent) error {
		logger.Info("Import event",
			"event_type", event.Type,
			"job_id", event.Data.JobID,
			"tenant_id", event.Data.TenantID,
			"import_type", event.Data.ImportType,
			"state", event.Data.State,
			"success_records", event.Data.SuccessRecords,
			"error_records", event.Data.ErrorRecords,
			"error_report_ref", event.Data.ErrorReportRef,
			"notify_email", event.Data.NotifyEmail,
			"reason", event.Data.Reason)
		return nil
	})
	if err != nil {
		logger.Error("Event consumer stopped", "error", err)
		os.Exit(1)
	}
}
