package database

import (
	"fmt"
	"time"
)

var _ SeenRepository = (*SeenRepo)(nil)

// SeenRepo remembers which content each monitor has already evaluated so a
// poll never pays for the same LLM call twice.
type SeenRepo struct {
	db *DB
}

func NewSeenRepository(db *DB) *SeenRepo {
	return &SeenRepo{db: db}
}

// FilterUnseen returns the hashes not yet marked for monitorName, in input order.
func (r *SeenRepo) FilterUnseen(monitorName string, hashes []string) ([]string, error) {
	stmt, err := r.db.Prepare(`SELECT COUNT(*) FROM seen_items WHERE monitor_name = ? AND content_hash = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare seen lookup: %w", err)
	}
	defer stmt.Close()

	unseen := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		var count int
		if err := stmt.QueryRow(monitorName, hash).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to check seen item: %w", err)
		}
		if count == 0 {
			unseen = append(unseen, hash)
		}
	}

	return unseen, nil
}

func (r *SeenRepo) MarkSeen(monitorName string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := toUnix(time.Now())
	for _, hash := range hashes {
		_, err := tx.Exec(`
			INSERT INTO seen_items (monitor_name, content_hash, seen_at) VALUES (?, ?, ?)
			ON CONFLICT (monitor_name, content_hash) DO NOTHING
		`, monitorName, hash, now)
		if err != nil {
			return fmt.Errorf("failed to mark item seen: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen items: %w", err)
	}
	return nil
}
