// Package store persists anchors, the ordered event log and computed snapshots in
// SQLite. Replaying the stored events against the stored anchor reproduces any
// persisted snapshot bit for bit.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/event"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS anchors (
	entity_id     TEXT PRIMARY KEY,
	anchored_at   TEXT NOT NULL,
	birth_date    TEXT,
	state_vector  BLOB NOT NULL,
	traits        BLOB NOT NULL,
	trait_budget  BLOB NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL UNIQUE,
	entity_id     TEXT NOT NULL,
	event_type    TEXT NOT NULL,
	custom_spec   TEXT,
	severity      REAL NOT NULL,
	occurred_at   TEXT NOT NULL,
	base_shifts   TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (entity_id) REFERENCES anchors(entity_id)
);

CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id, seq);

CREATE TABLE IF NOT EXISTS snapshots (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	entity_id     TEXT NOT NULL,
	at            TEXT NOT NULL,
	direction     TEXT NOT NULL,
	state_vector  BLOB NOT NULL,
	traits        BLOB NOT NULL,
	trait_budget  BLOB NOT NULL,
	ledger_json   TEXT NOT NULL,
	in_scope      TEXT NOT NULL,
	digest        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES snapshots(version_id),
	FOREIGN KEY (entity_id) REFERENCES anchors(entity_id)
);

CREATE TABLE IF NOT EXISTS query_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id     TEXT NOT NULL,
	query_at      TEXT NOT NULL,
	direction     TEXT NOT NULL,
	in_scope      INTEGER NOT NULL,
	digest        TEXT,
	source        TEXT NOT NULL,
	error         TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages persisted entities in SQLite.
type Store struct {
	db *sql.DB
}

// SnapshotRecord is a persisted snapshot. Records for one entity form a chain
// through ParentID in save order.
type SnapshotRecord struct {
	VersionID string          `json:"version_id"`
	ParentID  string          `json:"parent_id,omitempty"`
	Snapshot  engine.Snapshot `json:"snapshot"`
	Digest    string          `json:"digest"`
	CreatedAt time.Time       `json:"created_at"`
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region anchors
// SaveAnchor persists a new entity anchor. An entity's anchor is written once.
func (s *Store) SaveAnchor(a state.Anchor) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM anchors WHERE entity_id = ?`, a.EntityID).Scan(&exists); err != nil {
		return fmt.Errorf("check anchor: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", engine.ErrAnchorExists, a.EntityID)
	}

	var birth interface{}
	if !a.BirthDate.IsZero() {
		birth = formatTime(a.BirthDate)
	}
	_, err := s.db.Exec(
		`INSERT INTO anchors (entity_id, anchored_at, birth_date, state_vector, traits, trait_budget, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.EntityID, formatTime(a.Timestamp), birth, encodeFloats(a.State[:]), encodeFloats(a.Traits[:]),
		encodeFloats(a.TraitBudget[:]), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert anchor: %w", err)
	}
	return nil
}

// GetAnchor reads one entity's anchor.
func (s *Store) GetAnchor(entityID string) (state.Anchor, error) {
	row := s.db.QueryRow(
		`SELECT entity_id, anchored_at, birth_date, state_vector, traits, trait_budget
		 FROM anchors WHERE entity_id = ?`, entityID,
	)
	a, err := scanAnchor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Anchor{}, fmt.Errorf("anchor %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return state.Anchor{}, fmt.Errorf("get anchor %s: %w", entityID, err)
	}
	return a, nil
}

// ListAnchors returns every anchor ordered by entity id.
func (s *Store) ListAnchors() ([]state.Anchor, error) {
	rows, err := s.db.Query(
		`SELECT entity_id, anchored_at, birth_date, state_vector, traits, trait_budget
		 FROM anchors ORDER BY entity_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	var out []state.Anchor
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnchor(sc scanner) (state.Anchor, error) {
	var a state.Anchor
	var anchoredAt string
	var birth sql.NullString
	var vec, traits, budget []byte
	if err := sc.Scan(&a.EntityID, &anchoredAt, &birth, &vec, &traits, &budget); err != nil {
		return state.Anchor{}, err
	}
	var err error
	if a.Timestamp, err = parseTime(anchoredAt); err != nil {
		return state.Anchor{}, err
	}
	if birth.Valid {
		if a.BirthDate, err = parseTime(birth.String); err != nil {
			return state.Anchor{}, err
		}
	}
	decodeFloats(vec, a.State[:])
	decodeFloats(traits, a.Traits[:])
	decodeFloats(budget, a.TraitBudget[:])
	return a, nil
}

// #endregion anchors

// #region events
// AppendEvent adds an event to the log. The entity's anchor must exist.
func (s *Store) AppendEvent(ev event.Event) error {
	var custom, shifts interface{}
	if ev.Custom != nil {
		b, err := json.Marshal(ev.Custom)
		if err != nil {
			return fmt.Errorf("marshal custom spec: %w", err)
		}
		custom = string(b)
	}
	if len(ev.BaseShifts) > 0 {
		b, err := json.Marshal(ev.BaseShifts)
		if err != nil {
			return fmt.Errorf("marshal base shifts: %w", err)
		}
		shifts = string(b)
	}

	_, err := s.db.Exec(
		`INSERT INTO events (event_id, entity_id, event_type, custom_spec, severity, occurred_at, base_shifts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Target, ev.Type, custom, ev.Severity, formatTime(ev.Timestamp), shifts, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Events returns the entity's events in the order they were appended.
func (s *Store) Events(entityID string) ([]event.Event, error) {
	rows, err := s.db.Query(
		`SELECT event_id, entity_id, event_type, custom_spec, severity, occurred_at, base_shifts
		 FROM events WHERE entity_id = ? ORDER BY seq`, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var ev event.Event
		var custom, shifts sql.NullString
		var occurred string
		if err := rows.Scan(&ev.ID, &ev.Target, &ev.Type, &custom, &ev.Severity, &occurred, &shifts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Timestamp, err = parseTime(occurred); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if custom.Valid {
			var spec event.Spec
			if err := json.Unmarshal([]byte(custom.String), &spec); err != nil {
				return nil, fmt.Errorf("event %s custom spec: %w", ev.ID, err)
			}
			ev.Custom = &spec
		}
		if shifts.Valid {
			var reqs []develop.Request
			if err := json.Unmarshal([]byte(shifts.String), &reqs); err != nil {
				return nil, fmt.Errorf("event %s base shifts: %w", ev.ID, err)
			}
			ev.BaseShifts = reqs
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// #endregion events

// #region snapshots
// SaveSnapshot persists a computed snapshot, chained to the entity's previous one.
func (s *Store) SaveSnapshot(snap engine.Snapshot) (SnapshotRecord, error) {
	rec := SnapshotRecord{
		VersionID: uuid.New().String(),
		Snapshot:  snap,
		Digest:    snap.Digest(),
		CreatedAt: time.Now().UTC(),
	}

	ledger, err := json.Marshal(snap.Ledger)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal ledger: %w", err)
	}
	inScope, err := json.Marshal(snap.InScope)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal scope: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(
		`SELECT version_id FROM snapshots WHERE entity_id = ? ORDER BY rowid DESC LIMIT 1`, snap.EntityID,
	).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("find parent: %w", err)
	}
	var parentPtr interface{}
	if parent.Valid {
		rec.ParentID = parent.String
		parentPtr = parent.String
	}

	_, err = tx.Exec(
		`INSERT INTO snapshots (version_id, parent_id, entity_id, at, direction, state_vector, traits,
		                        trait_budget, ledger_json, in_scope, digest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, snap.EntityID, formatTime(snap.At), snap.Direction.String(),
		encodeFloats(snap.State[:]), encodeFloats(snap.Traits[:]), encodeFloats(snap.TraitBudget[:]),
		string(ledger), string(inScope), rec.Digest, formatTime(rec.CreatedAt),
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SnapshotRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

const snapshotColumns = `version_id, parent_id, entity_id, at, direction, state_vector, traits,
	trait_budget, ledger_json, in_scope, digest, created_at`

// LatestSnapshot returns the most recently saved snapshot for an entity.
func (s *Store) LatestSnapshot(entityID string) (SnapshotRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE entity_id = ? ORDER BY rowid DESC LIMIT 1`, entityID,
	)
	rec, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("snapshot for %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("latest snapshot %s: %w", entityID, err)
	}
	return rec, nil
}

// ListSnapshots returns up to limit snapshots for an entity, newest first.
// An empty entityID lists across all entities.
func (s *Store) ListSnapshots(entityID string, limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE (? = '' OR entity_id = ?) ORDER BY rowid DESC LIMIT ?`, entityID, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSnapshot(sc scanner) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parent sql.NullString
	var at, direction, ledger, inScope, created string
	var vec, traits, budget []byte
	snap := &rec.Snapshot
	err := sc.Scan(&rec.VersionID, &parent, &snap.EntityID, &at, &direction, &vec, &traits,
		&budget, &ledger, &inScope, &rec.Digest, &created)
	if err != nil {
		return SnapshotRecord{}, err
	}
	if parent.Valid {
		rec.ParentID = parent.String
	}
	if snap.At, err = parseTime(at); err != nil {
		return SnapshotRecord{}, err
	}
	if err := snap.Direction.UnmarshalText([]byte(direction)); err != nil {
		return SnapshotRecord{}, err
	}
	decodeFloats(vec, snap.State[:])
	decodeFloats(traits, snap.Traits[:])
	decodeFloats(budget, snap.TraitBudget[:])
	if err := json.Unmarshal([]byte(ledger), &snap.Ledger); err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal ledger: %w", err)
	}
	if err := json.Unmarshal([]byte(inScope), &snap.InScope); err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal scope: %w", err)
	}
	rec.CreatedAt, _ = parseTime(created)
	return rec, nil
}

// #endregion snapshots

// #region hydrate
// Load hydrates reg with every stored anchor and its event log. It returns the
// number of entities loaded. Stored events the registry rejects, such as rows
// whose catalog type no longer exists, are logged and skipped.
func (s *Store) Load(reg *engine.Registry, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	anchors, err := s.ListAnchors()
	if err != nil {
		return 0, err
	}
	for _, a := range anchors {
		if err := reg.SetAnchor(a); err != nil {
			return 0, fmt.Errorf("hydrate %s: %w", a.EntityID, err)
		}
		events, err := s.Events(a.EntityID)
		if err != nil {
			return 0, err
		}
		for _, ev := range events {
			if err := reg.Append(ev); err != nil {
				logger.Warn("skipping stored event", "entity", a.EntityID, "event", ev.ID, "type", ev.Type, "error", err)
			}
		}
	}
	return len(anchors), nil
}

// #endregion hydrate

// #region encoding
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeFloats(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(b []byte, dst []float64) {
	for i := range dst {
		if i*8+8 <= len(b) {
			dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
		}
	}
}

// #endregion encoding
