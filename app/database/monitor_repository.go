package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ MonitorRepository = (*MonitorRepo)(nil)

type MonitorRepo struct {
	db *DB
}

func NewMonitorRepository(db *DB) *MonitorRepo {
	return &MonitorRepo{db: db}
}

const monitorColumns = `id, name, company_name, discovery_prompt, enabled, last_polled_at, next_poll_at, last_error, created_at, updated_at`

func (r *MonitorRepo) GetMonitor(name string) (*Monitor, error) {
	row := r.db.QueryRow(`SELECT `+monitorColumns+` FROM monitors WHERE name = ?`, name)

	monitor, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}

	return monitor, nil
}

func (r *MonitorRepo) GetMonitors() ([]Monitor, error) {
	rows, err := r.db.Query(`SELECT ` + monitorColumns + ` FROM monitors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitors: %w", err)
	}
	defer rows.Close()

	var monitors []Monitor
	for rows.Next() {
		monitor, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitor: %w", err)
		}
		monitors = append(monitors, *monitor)
	}

	return monitors, rows.Err()
}

func (r *MonitorRepo) GetMonitorCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM monitors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count monitors: %w", err)
	}
	return count, nil
}

func (r *MonitorRepo) UpsertMonitor(name, companyName, discoveryPrompt string, enabled bool) error {
	now := toUnix(time.Now())
	_, err := r.db.Exec(`
		INSERT INTO monitors (name, company_name, discovery_prompt, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			company_name = excluded.company_name,
			discovery_prompt = excluded.discovery_prompt,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, name, companyName, discoveryPrompt, enabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert monitor: %w", err)
	}
	return nil
}

func (r *MonitorRepo) UpdatePollStatus(name string, polledAt, nextPoll time.Time, lastError string) error {
	res, err := r.db.Exec(`
		UPDATE monitors
		SET last_polled_at = ?, next_poll_at = ?, last_error = ?, updated_at = ?
		WHERE name = ?
	`, toUnix(polledAt), toUnix(nextPoll), lastError, toUnix(time.Now()), name)
	if err != nil {
		return fmt.Errorf("failed to update poll status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update poll status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("monitor '%s' not found", name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(s scanner) (*Monitor, error) {
	var m Monitor
	var lastPolled, nextPoll sql.NullInt64
	var createdAt, updatedAt int64

	err := s.Scan(&m.ID, &m.Name, &m.CompanyName, &m.DiscoveryPrompt, &m.Enabled,
		&lastPolled, &nextPoll, &m.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.LastPolledAt = fromNullUnix(lastPolled)
	m.NextPollAt = fromNullUnix(nextPoll)
	m.CreatedAt = fromUnix(createdAt)
	m.UpdatedAt = fromUnix(updatedAt)

	return &m, nil
}
