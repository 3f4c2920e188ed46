package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/siteplan/internal/db"
	"github.com/sells-group/siteplan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"update_run_result": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"get_run":           `SELECT id, name, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_region":     `INSERT INTO run_regions (id, run_id, region, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_region":   `UPDATE run_regions SET status = $1, error = $2, duration_ms = $3 WHERE id = $4`,
	"list_regions":      `SELECT id, run_id, region, status, error, duration_ms, started_at FROM run_regions WHERE run_id = $1 ORDER BY started_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wires an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_regions (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	region      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT,
	duration_ms BIGINT,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS distances (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	household_id TEXT NOT NULL,
	facility_id  TEXT NOT NULL,
	kind         TEXT NOT NULL,
	distance     DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_name ON runs(name);
CREATE INDEX IF NOT EXISTS idx_run_regions_run_id ON run_regions(run_id);
CREATE INDEX IF NOT EXISTS idx_distances_run_id ON distances(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, name string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `INSERT INTO runs (id, name, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, name, string(model.RunStatusQueued), now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Name:      name,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	status := model.RunStatusComplete
	if result.RegionsSucceeded == 0 && result.RegionsFailed > 0 {
		status = model.RunStatusFailed
	}

	tag, err := s.pool.Exec(ctx, `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var resultJSON []byte

	err := s.pool.QueryRow(ctx, `SELECT id, name, status, result, created_at, updated_at FROM runs WHERE id = $1`, runID).
		Scan(&r.ID, &r.Name, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}

	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, name, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var resultJSON []byte
		if err := rows.Scan(&r.ID, &r.Name, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.RunResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreateRegion(ctx context.Context, runID, region string) (*model.RegionRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `INSERT INTO run_regions (id, run_id, region, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, region, string(model.RegionStatusRunning), now)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert region for run %s", runID)
	}

	return &model.RegionRecord{
		ID:        id,
		RunID:     runID,
		Region:    region,
		Status:    model.RegionStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRegion(ctx context.Context, regionID string, status model.RegionStatus, errMsg string, durationMS int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE run_regions SET status = $1, error = $2, duration_ms = $3 WHERE id = $4`,
		string(status), nullString(errMsg), durationMS, regionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete region %s", regionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("region not found: %s", regionID)
	}
	return nil
}

func (s *PostgresStore) ListRegions(ctx context.Context, runID string) ([]model.RegionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, run_id, region, status, error, duration_ms, started_at
		 FROM run_regions WHERE run_id = $1 ORDER BY started_at`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list regions for run %s", runID)
	}
	defer rows.Close()

	var regions []model.RegionRecord
	for rows.Next() {
		var (
			rec      model.RegionRecord
			errMsg   *string
			duration *int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Region, &rec.Status, &errMsg, &duration, &rec.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		if duration != nil {
			rec.DurationMS = *duration
		}
		regions = append(regions, rec)
	}
	return regions, eris.Wrap(rows.Err(), "postgres: list regions iterate")
}

// SaveDistances bulk-loads per-household distance records over the
// COPY protocol.
func (s *PostgresStore) SaveDistances(ctx context.Context, runID string, records []model.DistanceRecord) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{runID, r.HouseholdID, r.FacilityID, string(r.Kind), r.Distance}
	}
	_, err := db.CopyFrom(ctx, s.pool, "distances",
		[]string{"run_id", "household_id", "facility_id", "kind", "distance"}, rows)
	return err
}
