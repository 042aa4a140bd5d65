package database

import (
	"time"
)

type MonitorRepository interface {
	GetMonitor(name string) (*Monitor, error)
	GetMonitors() ([]Monitor, error)
	GetMonitorCount() (int, error)

	UpsertMonitor(name, companyName, discoveryPrompt string, enabled bool) error
	UpdatePollStatus(name string, polledAt, nextPoll time.Time, lastError string) error
}

type ResultRepository interface {
	// SaveResult stores r unless the monitor already has a result for the
	// same content, reporting whether a row was inserted.
	SaveResult(r Result) (bool, error)
	GetResults(monitorName string, limit int) ([]Result, error)
	GetResultCount(monitorName string) (int, error)
}

type SeenRepository interface {
	FilterUnseen(monitorName string, hashes []string) ([]string, error)
	MarkSeen(monitorName string, hashes []string) error
}

type UsageRepository interface {
	RecordUsage(u Usage) error
	GetUsageSummary(monitorName string, since time.Time) (UsageSummary, error)
}
