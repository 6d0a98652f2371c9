package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/xiaot623/semitae/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS encounters (
			encounter_id TEXT PRIMARY KEY,
			participant_a TEXT NOT NULL,
			participant_b TEXT NOT NULL,
			active_participant TEXT NOT NULL,
			message_log TEXT NOT NULL DEFAULT '[]',
			realm TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			encounter_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			status TEXT NOT NULL,
			state TEXT NOT NULL,
			error_code TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_encounter ON workflow_runs(encounter_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES workflow_runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_events_run ON workflow_events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const encounterColumns = `encounter_id, participant_a, participant_b, active_participant, message_log, realm, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEncounter(row rowScanner) (*domain.Encounter, error) {
	var enc domain.Encounter
	var messageLog string
	var realm sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&enc.EncounterID, &enc.Participants[0], &enc.Participants[1], &enc.ActiveParticipant,
		&messageLog, &realm, &createdAt, &updatedAt, &enc.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messageLog), &enc.MessageLog); err != nil {
		return nil, fmt.Errorf("decode message log: %w", err)
	}
	if enc.MessageLog == nil {
		enc.MessageLog = []string{}
	}
	enc.Realm = realm.String

	var err error
	if enc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if enc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &enc, nil
}

// CreateEncounter persists a new encounter.
func (s *SQLiteStore) CreateEncounter(ctx context.Context, enc *domain.Encounter) error {
	if err := enc.Validate(); err != nil {
		return domain.WrapError(domain.CodeInvalidArgument, "invalid encounter", err)
	}
	messageLog, err := json.Marshal(nonNilLog(enc.MessageLog))
	if err != nil {
		return fmt.Errorf("encode message log: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO encounters (`+encounterColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		enc.EncounterID, enc.Participants[0], enc.Participants[1], enc.ActiveParticipant,
		string(messageLog), nullString(enc.Realm), formatTime(enc.CreatedAt), formatTime(enc.UpdatedAt), enc.Version)
	return err
}

// GetEncounter retrieves an encounter by ID.
func (s *SQLiteStore) GetEncounter(ctx context.Context, encounterID string) (*domain.Encounter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+encounterColumns+` FROM encounters WHERE encounter_id = ?`, encounterID)
	enc, err := scanEncounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(encounterID)
	}
	if err != nil {
		return nil, err
	}
	return enc, nil
}

// ConditionalUpdate applies fields if and only if the stored version still
// equals expectedVersion. The guarded UPDATE is the single serialization
// point for concurrent submissions against one encounter.
func (s *SQLiteStore) ConditionalUpdate(ctx context.Context, encounterID string, expectedVersion int64, fields EncounterFields) (*domain.Encounter, error) {
	messageLog, err := json.Marshal(nonNilLog(fields.MessageLog))
	if err != nil {
		return nil, fmt.Errorf("encode message log: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE encounters
		SET active_participant = ?, message_log = ?, updated_at = ?, version = version + 1
		WHERE encounter_id = ? AND version = ?
		RETURNING `+encounterColumns,
		fields.ActiveParticipant, string(messageLog), formatTime(time.Now()), encounterID, expectedVersion)
	enc, err := scanEncounter(row)
	if err == nil {
		return enc, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM encounters WHERE encounter_id = ?`, encounterID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError(encounterID)
	}
	if err != nil {
		return nil, err
	}
	return nil, domain.ConflictError(encounterID, expectedVersion)
}

// CreateRun creates a new workflow run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (run_id, encounter_id, player_id, status, state, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.EncounterID, run.PlayerID, run.Status, run.State, formatTime(run.StartedAt))
	return err
}

// CompleteRun records the terminal status of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status domain.RunStatus, state domain.WorkflowState, code domain.ErrorCode, errData []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, state = ?, error_code = ?, error = ?, ended_at = ? WHERE run_id = ?`,
		status, state, nullString(string(code)), nullStringBytes(errData), formatTime(time.Now()), runID)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, encounter_id, player_id, status, state, error_code, error, started_at, ended_at FROM workflow_runs WHERE run_id = ?`,
		runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs of an encounter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, encounterID string, limit int) ([]domain.Run, error) {
	query := `SELECT run_id, encounter_id, player_id, status, state, error_code, error, started_at, ended_at
		FROM workflow_runs WHERE encounter_id = ? ORDER BY started_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, encounterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var errCode, errData, endedAt sql.NullString
	var startedAt string
	if err := row.Scan(&run.RunID, &run.EncounterID, &run.PlayerID, &run.Status, &run.State,
		&errCode, &errData, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	run.ErrorCode = domain.ErrorCode(errCode.String)
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}

	var err error
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		run.EndedAt = &t
	}
	return &run, nil
}

// ListStaleRuns returns RUNNING runs started before cutoff, oldest first.
func (s *SQLiteStore) ListStaleRuns(ctx context.Context, cutoff time.Time, limit int) ([]domain.Run, error) {
	query := `SELECT run_id, encounter_id, player_id, status, state, error_code, error, started_at, ended_at
		FROM workflow_runs WHERE status = ? AND started_at < ? ORDER BY started_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, domain.RunStatusRunning, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []domain.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ExpireRun marks a RUNNING run as FAILED. It reports false if the run
// already finished.
func (s *SQLiteStore) ExpireRun(ctx context.Context, runID string, code domain.ErrorCode, errData []byte) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, state = ?, error_code = ?, error = ?, ended_at = ? WHERE run_id = ? AND status = ?`,
		domain.RunStatusFailed, domain.StateFailed, nullString(string(code)), nullStringBytes(errData), formatTime(time.Now()), runID, domain.RunStatusRunning)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateEvent creates a new run event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, nullStringBytes(event.Payload))
	return err
}

// GetEvents retrieves the events of a run in the order they were recorded.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM workflow_events WHERE run_id = ? ORDER BY ts ASC, rowid ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nonNilLog(log []string) []string {
	if log == nil {
		return []string{}
	}
	return log
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
