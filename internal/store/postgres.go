package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

// Pool abstracts the pgx pool operations the store needs, satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_assignment":   `SELECT artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at FROM assignments WHERE artist_key = $1`,
	"latest_rejection": `SELECT artist_key, video_id, reasons, rejected_at FROM rejections WHERE artist_key = $1 ORDER BY rejected_at DESC LIMIT 1`,
	"get_enrichment":   `SELECT artist_key, catalog_id, catalog_name, popularity, followers, genres, tier, match_score, fetched_at FROM enrichment WHERE artist_key = $1`,
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
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assignments (
	artist_key   TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT 'headliner',
	state        TEXT NOT NULL,
	video_id     TEXT,
	score        INTEGER NOT NULL DEFAULT 0,
	reasoning    JSONB,
	venue        TEXT,
	decided_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rejections (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	artist_key  TEXT NOT NULL,
	video_id    TEXT NOT NULL,
	reasons     JSONB NOT NULL,
	rejected_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment (
	artist_key   TEXT PRIMARY KEY,
	catalog_id   TEXT,
	catalog_name TEXT,
	popularity   INTEGER NOT NULL DEFAULT 0,
	followers    INTEGER NOT NULL DEFAULT 0,
	genres       JSONB,
	tier         TEXT NOT NULL,
	match_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	fetched_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	captured_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	total_entries     INTEGER NOT NULL,
	verified_count    INTEGER NOT NULL DEFAULT 0,
	rejected_count    INTEGER NOT NULL DEFAULT 0,
	override_count    INTEGER NOT NULL DEFAULT 0,
	unverified_count  INTEGER NOT NULL DEFAULT 0,
	with_video        INTEGER NOT NULL,
	no_video          INTEGER NOT NULL,
	high_confidence   INTEGER NOT NULL,
	medium_confidence INTEGER NOT NULL,
	low_confidence    INTEGER NOT NULL,
	errors            INTEGER NOT NULL,
	accuracy_rate     DOUBLE PRECISION NOT NULL,
	avg_confidence    DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS report_baseline (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	states      JSONB NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT
);

CREATE TABLE IF NOT EXISTS run_phases (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ,
	status      TEXT NOT NULL DEFAULT 'running',
	processed   INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_assignments_state ON assignments(state);
CREATE INDEX IF NOT EXISTS idx_rejections_artist_key ON rejections(artist_key, rejected_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, artistKey string) (*model.Assignment, error) {
	var a model.Assignment
	var videoID, venue *string
	var reasoningJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at
		 FROM assignments WHERE artist_key = $1`,
		artistKey,
	).Scan(&a.ArtistKey, &a.DisplayName, &a.Role, &a.State, &videoID,
		&a.Score, &reasoningJSON, &venue, &a.DecidedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get assignment %s", artistKey)
	}

	a.VideoID = videoID
	if venue != nil {
		a.Venue = *venue
	}
	if len(reasoningJSON) > 0 {
		if err := json.Unmarshal(reasoningJSON, &a.Reasoning); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal reasoning")
		}
	}
	return &a, nil
}

func (s *PostgresStore) PutAssignment(ctx context.Context, a *model.Assignment) error {
	reasoningJSON, err := json.Marshal(a.Reasoning)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal reasoning")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO assignments (artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (artist_key) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   role         = EXCLUDED.role,
		   state        = EXCLUDED.state,
		   video_id     = EXCLUDED.video_id,
		   score        = EXCLUDED.score,
		   reasoning    = EXCLUDED.reasoning,
		   venue        = EXCLUDED.venue,
		   decided_at   = EXCLUDED.decided_at,
		   updated_at   = EXCLUDED.updated_at`,
		a.ArtistKey, a.DisplayName, string(a.Role), string(a.State), a.VideoID,
		a.Score, reasoningJSON, a.Venue, a.DecidedAt.UTC(), a.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put assignment %s", a.ArtistKey)
}

func (s *PostgresStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at
	          FROM assignments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(filter.State))
		argIdx++
	}
	if filter.Venue != "" {
		query += fmt.Sprintf(` AND venue = $%d`, argIdx)
		args = append(args, filter.Venue)
		argIdx++
	}
	query += ` ORDER BY artist_key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assignments")
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var videoID, venue *string
		var reasoningJSON []byte

		if err := rows.Scan(&a.ArtistKey, &a.DisplayName, &a.Role, &a.State, &videoID,
			&a.Score, &reasoningJSON, &venue, &a.DecidedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		a.VideoID = videoID
		if venue != nil {
			a.Venue = *venue
		}
		if len(reasoningJSON) > 0 {
			if err := json.Unmarshal(reasoningJSON, &a.Reasoning); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal reasoning")
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assignments iterate")
}

func (s *PostgresStore) CountAssignmentsByState(ctx context.Context) (map[model.AssignmentState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM assignments GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by state")
	}
	defer rows.Close()

	counts := map[model.AssignmentState]int{}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.AssignmentState(state)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, artistKey string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assignments WHERE artist_key = $1`, artistKey)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete assignment %s", artistKey)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("assignment not found: %s", artistKey)
	}
	return nil
}

func (s *PostgresStore) AddRejection(ctx context.Context, rec *model.RejectionRecord) error {
	reasonsJSON, err := json.Marshal(rec.Reasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal reasons")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rejections (id, artist_key, video_id, reasons, rejected_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), rec.ArtistKey, rec.VideoID, reasonsJSON, rec.RejectedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: add rejection %s", rec.ArtistKey)
}

func (s *PostgresStore) LatestRejection(ctx context.Context, artistKey string) (*model.RejectionRecord, error) {
	var rec model.RejectionRecord
	var reasonsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT artist_key, video_id, reasons, rejected_at FROM rejections
		 WHERE artist_key = $1 ORDER BY rejected_at DESC LIMIT 1`,
		artistKey,
	).Scan(&rec.ArtistKey, &rec.VideoID, &reasonsJSON, &rec.RejectedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get rejection")
	}
	if err := json.Unmarshal(reasonsJSON, &rec.Reasons); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal reasons")
	}
	return &rec, nil
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, artistKey string) (*model.EnrichmentEntry, error) {
	var e model.EnrichmentEntry
	var catalogID, catalogName *string
	var genresJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT artist_key, catalog_id, catalog_name, popularity, followers, genres, tier, match_score, fetched_at
		 FROM enrichment WHERE artist_key = $1`,
		artistKey,
	).Scan(&e.ArtistKey, &catalogID, &catalogName, &e.Popularity,
		&e.Followers, &genresJSON, &e.Tier, &e.MatchScore, &e.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get enrichment")
	}
	if catalogID != nil {
		e.CatalogID = *catalogID
	}
	if catalogName != nil {
		e.CatalogName = *catalogName
	}
	if len(genresJSON) > 0 {
		if err := json.Unmarshal(genresJSON, &e.Genres); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal genres")
		}
	}
	return &e, nil
}

func (s *PostgresStore) PutEnrichment(ctx context.Context, entry *model.EnrichmentEntry) error {
	genresJSON, err := json.Marshal(entry.Genres)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal genres")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment (artist_key, catalog_id, catalog_name, popularity, followers, genres, tier, match_score, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (artist_key) DO UPDATE SET
		   catalog_id   = EXCLUDED.catalog_id,
		   catalog_name = EXCLUDED.catalog_name,
		   popularity   = EXCLUDED.popularity,
		   followers    = EXCLUDED.followers,
		   genres       = EXCLUDED.genres,
		   tier         = EXCLUDED.tier,
		   match_score  = EXCLUDED.match_score,
		   fetched_at   = EXCLUDED.fetched_at`,
		entry.ArtistKey, entry.CatalogID, entry.CatalogName, entry.Popularity,
		entry.Followers, genresJSON, string(entry.Tier), entry.MatchScore,
		entry.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: put enrichment %s", entry.ArtistKey)
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *model.AccuracySnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, captured_at, total_entries,
		   verified_count, rejected_count, override_count, unverified_count,
		   with_video, no_video, high_confidence, medium_confidence, low_confidence,
		   errors, accuracy_rate, avg_confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		snap.ID, snap.CapturedAt.UTC(), snap.TotalEntries,
		snap.VerifiedCount, snap.RejectedCount, snap.OverrideCount, snap.UnverifiedCount,
		snap.WithVideo, snap.NoVideo, snap.HighConf, snap.MediumConf, snap.LowConf,
		snap.Errors, snap.AccuracyRate, snap.AvgConfidence,
	)
	return eris.Wrap(err, "postgres: append snapshot")
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, limit int) ([]model.AccuracySnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, captured_at, total_entries,
		   verified_count, rejected_count, override_count, unverified_count,
		   with_video, no_video, high_confidence, medium_confidence, low_confidence,
		   errors, accuracy_rate, avg_confidence
		 FROM snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var out []model.AccuracySnapshot
	for rows.Next() {
		var sn model.AccuracySnapshot
		if err := rows.Scan(&sn.ID, &sn.CapturedAt, &sn.TotalEntries,
			&sn.VerifiedCount, &sn.RejectedCount, &sn.OverrideCount, &sn.UnverifiedCount,
			&sn.WithVideo, &sn.NoVideo, &sn.HighConf, &sn.MediumConf, &sn.LowConf,
			&sn.Errors, &sn.AccuracyRate, &sn.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, sn)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list snapshots iterate")
}

// GetStateBaseline returns the per-artist states recorded at the end of
// the last report, or nil when no report has run yet.
func (s *PostgresStore) GetStateBaseline(ctx context.Context) (map[string]model.AssignmentState, error) {
	row := s.pool.QueryRow(ctx, `SELECT states FROM report_baseline WHERE id = 1`)

	var statesJSON []byte
	err := row.Scan(&statesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get state baseline")
	}
	states := map[string]model.AssignmentState{}
	if err := json.Unmarshal(statesJSON, &states); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal state baseline")
	}
	return states, nil
}

func (s *PostgresStore) PutStateBaseline(ctx context.Context, states map[string]model.AssignmentState) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal state baseline")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO report_baseline (id, states, captured_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET states = EXCLUDED.states, captured_at = now()`,
		statesJSON,
	)
	return eris.Wrap(err, "postgres: put state baseline")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES ($1, $2, $3)`,
		id, now, string(model.RunRunning),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, StartedAt: now, Status: model.RunRunning}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, started_at, status) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, now, string(model.RunRunning),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}
	return &model.RunPhase{ID: id, RunID: runID, Name: name, StartedAt: now, Status: model.RunRunning}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, status model.RunStatus, processed int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, processed = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), processed, errMsg, time.Now().UTC(), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}
