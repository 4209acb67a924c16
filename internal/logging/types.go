package logging

import "time"

// #region query-entry
// QueryEntry is a single row in the query_log table: which state was computed,
// from how many events, and the digest of the result.
type QueryEntry struct {
	EntityID  string
	QueryAt   time.Time
	Direction string // "forward" | "backward"
	InScope   int
	Digest    string
	Source    string // "http" | "grpc" | "cli" | "replay"
	Error     string
	CreatedAt time.Time
}

// #endregion query-entry
