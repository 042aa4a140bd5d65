package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/monitor"
)

type SyncMonitorConfigTask struct {
	Task
	Config      *monitor.Config
	monitorRepo database.MonitorRepository
}

func NewSyncMonitorConfigTask(config *monitor.Config, monitorRepo database.MonitorRepository) *SyncMonitorConfigTask {
	return &SyncMonitorConfigTask{
		Task:        NewTask(TaskTypeSyncMonitorConfig, config.Name),
		Config:      config,
		monitorRepo: monitorRepo,
	}
}

func (t *SyncMonitorConfigTask) Execute(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := t.monitorRepo.UpsertMonitor(t.Config.Name, t.Config.CompanyName, t.Config.DiscoveryPrompt, t.Config.Settings.Enabled)
	if err != nil {
		return fmt.Errorf("failed to sync monitor config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"monitor", t.MonitorName,
		"duration", t.GetDuration())

	return nil
}
