package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tourcast/tourcast/internal/types"
)

// RunRecord is a pipeline run as persisted: its immutable request, current
// state and the last completed checkpoint.
type RunRecord struct {
	Fingerprint string
	Request     types.TourRequest
	State       types.RunState
	Attempt     int
	Checkpoint  *types.Checkpoint
	Degraded    bool
	LastError   string
	UpdatedAt   time.Time
}

// Repository persists runs and finished tours. Every state transition goes
// through here so a restart resumes from the last checkpoint instead of
// recomputing.
type Repository interface {
	UpsertRun(ctx context.Context, fingerprint string, req types.TourRequest) error
	UpdateRunState(ctx context.Context, fingerprint string, state types.RunState, attempt int, degraded bool, lastError string) error
	SaveCheckpoint(ctx context.Context, fingerprint string, cp types.Checkpoint) error
	GetRun(ctx context.Context, fingerprint string) (*RunRecord, error)
	ListResumable(ctx context.Context) ([]RunRecord, error)
	SaveTour(ctx context.Context, tour *types.Tour) error
	GetTourByFingerprint(ctx context.Context, fingerprint string) (*types.Tour, error)
}

// PGXPool is the slice of pgxpool.Pool the repository uses.
type PGXPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Repository = (*PostgresRepository)(nil)

type PostgresRepository struct {
	logger *slog.Logger
	pgpool PGXPool
}

func NewPostgresRepository(pgpool PGXPool, logger *slog.Logger) *PostgresRepository {
	return &PostgresRepository{
		logger: logger,
		pgpool: pgpool,
	}
}

func (r *PostgresRepository) UpsertRun(ctx context.Context, fingerprint string, req types.TourRequest) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := `
        INSERT INTO pipeline_runs (fingerprint, request, state, attempt, updated_at)
        VALUES ($1, $2, $3, 0, now())
        ON CONFLICT (fingerprint) DO UPDATE
        SET request = EXCLUDED.request, updated_at = now()
    `
	if _, err := r.pgpool.Exec(ctx, query, fingerprint, reqJSON, string(types.StateReceived)); err != nil {
		return &types.SystemFailure{Op: "persist run", Err: err}
	}
	return nil
}

func (r *PostgresRepository) UpdateRunState(ctx context.Context, fingerprint string, state types.RunState, attempt int, degraded bool, lastError string) error {
	query := `
        UPDATE pipeline_runs
        SET state = $2, attempt = $3, degraded = $4, last_error = $5, updated_at = now()
        WHERE fingerprint = $1
    `
	if _, err := r.pgpool.Exec(ctx, query, fingerprint, string(state), attempt, degraded, lastError); err != nil {
		return &types.SystemFailure{Op: "update run state", Err: err}
	}
	return nil
}

func (r *PostgresRepository) SaveCheckpoint(ctx context.Context, fingerprint string, cp types.Checkpoint) error {
	cpJSON, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	query := `
        UPDATE pipeline_runs
        SET checkpoint = $2, updated_at = now()
        WHERE fingerprint = $1
    `
	if _, err := r.pgpool.Exec(ctx, query, fingerprint, cpJSON); err != nil {
		return &types.SystemFailure{Op: "persist checkpoint", Err: err}
	}
	return nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, fingerprint string) (*RunRecord, error) {
	query := `
        SELECT fingerprint, request, state, attempt, checkpoint, degraded, last_error, updated_at
        FROM pipeline_runs
        WHERE fingerprint = $1
    `
	rec, err := scanRun(r.pgpool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return rec, nil
}

// ListResumable returns runs interrupted mid-flight: anything persisted in
// a non-terminal state. Called once at startup.
func (r *PostgresRepository) ListResumable(ctx context.Context) ([]RunRecord, error) {
	query := `
        SELECT fingerprint, request, state, attempt, checkpoint, degraded, last_error, updated_at
        FROM pipeline_runs
        WHERE state NOT IN ($1, $2)
        ORDER BY updated_at
    `
	rows, err := r.pgpool.Query(ctx, query, string(types.StateReady), string(types.StateFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to list resumable runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) SaveTour(ctx context.Context, tour *types.Tour) error {
	payload, err := json.Marshal(tour)
	if err != nil {
		return fmt.Errorf("failed to marshal tour: %w", err)
	}

	query := `
        INSERT INTO tours (id, fingerprint, payload, degraded, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (fingerprint) DO UPDATE
        SET id = EXCLUDED.id, payload = EXCLUDED.payload, degraded = EXCLUDED.degraded, created_at = EXCLUDED.created_at
    `
	if _, err := r.pgpool.Exec(ctx, query, tour.ID, tour.Fingerprint, payload, tour.Degraded, tour.CreatedAt); err != nil {
		return &types.SystemFailure{Op: "persist tour", Err: err}
	}
	return nil
}

func (r *PostgresRepository) GetTourByFingerprint(ctx context.Context, fingerprint string) (*types.Tour, error) {
	query := `SELECT payload FROM tours WHERE fingerprint = $1`

	var payload []byte
	if err := r.pgpool.QueryRow(ctx, query, fingerprint).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}

	var tour types.Tour
	if err := json.Unmarshal(payload, &tour); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tour: %w", err)
	}
	return &tour, nil
}

func scanRun(row pgx.Row) (*RunRecord, error) {
	var rec RunRecord
	var reqJSON, cpJSON []byte
	var state string
	var lastError *string

	if err := row.Scan(&rec.Fingerprint, &reqJSON, &state, &rec.Attempt, &cpJSON, &rec.Degraded, &lastError, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.State = types.RunState(state)
	if lastError != nil {
		rec.LastError = *lastError
	}
	if err := json.Unmarshal(reqJSON, &rec.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if len(cpJSON) > 0 {
		var cp types.Checkpoint
		if err := json.Unmarshal(cpJSON, &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		rec.Checkpoint = &cp
	}
	return &rec, nil
}
