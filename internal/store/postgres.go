package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const recordColumns = `job_id, app_id, service_ver, tag, cell_id, params, last_state, last_observed_at, created_at, updated_at`

// CreateJobRecord inserts rec. CreatedAt and UpdatedAt are filled in when zero.
func (s *PostgresStore) CreateJobRecord(ctx context.Context, rec *models.JobRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("encode job params: %w", err)
	}
	if rec.Params == nil {
		params = []byte("{}")
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_records (job_id, app_id, service_ver, tag, cell_id, params, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.JobID, rec.AppID, rec.ServiceVersion, rec.Tag, rec.CellID, params, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJobRecord(ctx context.Context, jobID string) (*models.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE job_id = $1`, jobID)
	rec, err := scanJobRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListJobRecords(ctx context.Context, filter RecordFilter) ([]*models.JobRecord, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	var conds []string
	var args []any
	argIdx := 1

	if filter.AppID != "" {
		conds = append(conds, fmt.Sprintf("app_id = $%d", argIdx))
		args = append(args, filter.AppID)
		argIdx++
	}
	if filter.State != "" {
		conds = append(conds, fmt.Sprintf("last_state = $%d", argIdx))
		args = append(args, filter.State)
		argIdx++
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM job_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count job records: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`SELECT %s FROM job_records%s ORDER BY created_at DESC, job_id LIMIT $%d OFFSET $%d`,
		recordColumns, where, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list job records: %w", err)
	}
	defer rows.Close()

	var recs []*models.JobRecord
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

// UpdateLastState records the most recently observed state of jobID.
func (s *PostgresStore) UpdateLastState(ctx context.Context, jobID, state string, observedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_records SET last_state = $2, last_observed_at = $3, updated_at = NOW()
		 WHERE job_id = $1`, jobID, state, observedAt)
	if err != nil {
		return fmt.Errorf("update last state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJobRecord(row pgx.Row) (*models.JobRecord, error) {
	var rec models.JobRecord
	var params []byte
	if err := row.Scan(&rec.JobID, &rec.AppID, &rec.ServiceVersion, &rec.Tag, &rec.CellID, &params,
		&rec.LastState, &rec.LastObservedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &rec.Params); err != nil {
		return nil, fmt.Errorf("decode job params: %w", err)
	}
	return &rec, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
