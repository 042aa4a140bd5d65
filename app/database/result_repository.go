package database

import (
	"encoding/json"
	"fmt"
	"time"
)

var _ ResultRepository = (*ResultRepo)(nil)

type ResultRepo struct {
	db *DB
}

func NewResultRepository(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

func (r *ResultRepo) SaveResult(res Result) (bool, error) {
	terms, err := encodeStrings(res.MatchedTerms)
	if err != nil {
		return false, err
	}
	signals, err := encodeStrings(res.Signals)
	if err != nil {
		return false, err
	}
	suggested, err := encodeStrings(res.SuggestedKeywords)
	if err != nil {
		return false, err
	}

	createdAt := res.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	publishedAt := res.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = createdAt
	}

	out, err := r.db.Exec(`
		INSERT INTO results (
			monitor_name, content_hash, guid, title, body, author, platform, subreddit, link,
			published_at, matcher, match_type, matched_terms, explanation, relevance_score,
			signals, suggested_keywords, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (monitor_name, content_hash) DO NOTHING
	`, res.MonitorName, res.ContentHash, res.GUID, res.Title, res.Body, res.Author, res.Platform, res.Subreddit, res.Link,
		toUnix(publishedAt), res.Matcher, res.MatchType, terms, res.Explanation, res.RelevanceScore,
		signals, suggested, toUnix(createdAt))
	if err != nil {
		return false, fmt.Errorf("failed to save result: %w", err)
	}

	affected, err := out.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save result: %w", err)
	}
	return affected > 0, nil
}

// GetResults returns the newest results first.
func (r *ResultRepo) GetResults(monitorName string, limit int) ([]Result, error) {
	rows, err := r.db.Query(`
		SELECT id, monitor_name, content_hash, guid, title, body, author, platform, subreddit, link,
			published_at, matcher, match_type, matched_terms, explanation, relevance_score,
			signals, suggested_keywords, created_at
		FROM results
		WHERE monitor_name = ?
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, monitorName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		var publishedAt, createdAt int64
		var terms, signals, suggested string

		err := rows.Scan(&res.ID, &res.MonitorName, &res.ContentHash, &res.GUID, &res.Title, &res.Body,
			&res.Author, &res.Platform, &res.Subreddit, &res.Link, &publishedAt, &res.Matcher, &res.MatchType,
			&terms, &res.Explanation, &res.RelevanceScore, &signals, &suggested, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		res.PublishedAt = fromUnix(publishedAt)
		res.CreatedAt = fromUnix(createdAt)
		if res.MatchedTerms, err = decodeStrings(terms); err != nil {
			return nil, err
		}
		if res.Signals, err = decodeStrings(signals); err != nil {
			return nil, err
		}
		if res.SuggestedKeywords, err = decodeStrings(suggested); err != nil {
			return nil, err
		}

		results = append(results, res)
	}

	return results, rows.Err()
}

func (r *ResultRepo) GetResultCount(monitorName string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM results WHERE monitor_name = ?`, monitorName).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return count, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(data string) ([]string, error) {
	values := []string{}
	if data == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return values, nil
}
