package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-query
// LogQuery writes a provenance entry to the query_log table.
func LogQuery(db *sql.DB, entry QueryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO query_log (entity_id, query_at, direction, in_scope, digest, source, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.EntityID,
		entry.QueryAt.UTC().Format(time.RFC3339Nano),
		entry.Direction,
		entry.InScope,
		nullIfEmpty(entry.Digest),
		entry.Source,
		nullIfEmpty(entry.Error),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	return nil
}

// #endregion log-query

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
