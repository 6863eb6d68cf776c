package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assignments (
	artist_key   TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	role         TEXT NOT NULL DEFAULT 'headliner',
	state        TEXT NOT NULL,
	video_id     TEXT,
	score        INTEGER NOT NULL DEFAULT 0,
	reasoning    TEXT,
	venue        TEXT,
	decided_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rejections (
	id          TEXT PRIMARY KEY,
	artist_key  TEXT NOT NULL,
	video_id    TEXT NOT NULL,
	reasons     TEXT NOT NULL,
	rejected_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment (
	artist_key   TEXT PRIMARY KEY,
	catalog_id   TEXT,
	catalog_name TEXT,
	popularity   INTEGER NOT NULL DEFAULT 0,
	followers    INTEGER NOT NULL DEFAULT 0,
	genres       TEXT,
	tier         TEXT NOT NULL,
	match_score  REAL NOT NULL DEFAULT 0,
	fetched_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id                TEXT PRIMARY KEY,
	captured_at       DATETIME NOT NULL,
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
	accuracy_rate     REAL NOT NULL,
	avg_confidence    REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS report_baseline (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	states      TEXT NOT NULL,
	captured_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT
);

CREATE TABLE IF NOT EXISTS run_phases (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	name        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL DEFAULT 'running',
	processed   INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_assignments_state ON assignments(state);
CREATE INDEX IF NOT EXISTS idx_rejections_artist_key ON rejections(artist_key, rejected_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_captured_at ON snapshots(captured_at);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, artistKey string) (*model.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at
		 FROM assignments WHERE artist_key = ?`,
		artistKey,
	)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) PutAssignment(ctx context.Context, a *model.Assignment) error {
	reasoningJSON, err := json.Marshal(a.Reasoning)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal reasoning")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assignments (artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(artist_key) DO UPDATE SET
		   display_name = excluded.display_name,
		   role         = excluded.role,
		   state        = excluded.state,
		   video_id     = excluded.video_id,
		   score        = excluded.score,
		   reasoning    = excluded.reasoning,
		   venue        = excluded.venue,
		   decided_at   = excluded.decided_at,
		   updated_at   = excluded.updated_at`,
		a.ArtistKey, a.DisplayName, string(a.Role), string(a.State), a.VideoID,
		a.Score, string(reasoningJSON), a.Venue, a.DecidedAt.UTC(), a.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put assignment %s", a.ArtistKey)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT artist_key, display_name, role, state, video_id, score, reasoning, venue, decided_at, updated_at
	          FROM assignments WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Venue != "" {
		query += ` AND venue = ?`
		args = append(args, filter.Venue)
	}
	query += ` ORDER BY artist_key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assignments iterate")
}

func (s *SQLiteStore) CountAssignmentsByState(ctx context.Context) (map[model.AssignmentState]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM assignments GROUP BY state`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by state")
	}
	defer rows.Close()

	counts := map[model.AssignmentState]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.AssignmentState(state)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count iterate")
}

func (s *SQLiteStore) DeleteAssignment(ctx context.Context, artistKey string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assignments WHERE artist_key = ?`, artistKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete assignment %s", artistKey)
	}
	return checkRowsAffected(res, "assignment", artistKey)
}

func (s *SQLiteStore) AddRejection(ctx context.Context, rec *model.RejectionRecord) error {
	reasonsJSON, err := json.Marshal(rec.Reasons)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal reasons")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rejections (id, artist_key, video_id, reasons, rejected_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), rec.ArtistKey, rec.VideoID, string(reasonsJSON), rec.RejectedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: add rejection %s", rec.ArtistKey)
}

func (s *SQLiteStore) LatestRejection(ctx context.Context, artistKey string) (*model.RejectionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artist_key, video_id, reasons, rejected_at FROM rejections
		 WHERE artist_key = ? ORDER BY rejected_at DESC LIMIT 1`,
		artistKey,
	)

	var rec model.RejectionRecord
	var reasonsJSON string
	err := row.Scan(&rec.ArtistKey, &rec.VideoID, &reasonsJSON, &rec.RejectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get rejection")
	}
	if err := json.Unmarshal([]byte(reasonsJSON), &rec.Reasons); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal reasons")
	}
	return &rec, nil
}

func (s *SQLiteStore) GetEnrichment(ctx context.Context, artistKey string) (*model.EnrichmentEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT artist_key, catalog_id, catalog_name, popularity, followers, genres, tier, match_score, fetched_at
		 FROM enrichment WHERE artist_key = ?`,
		artistKey,
	)

	var e model.EnrichmentEntry
	var catalogID, catalogName, genresJSON sql.NullString
	err := row.Scan(&e.ArtistKey, &catalogID, &catalogName, &e.Popularity,
		&e.Followers, &genresJSON, &e.Tier, &e.MatchScore, &e.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get enrichment")
	}
	e.CatalogID = catalogID.String
	e.CatalogName = catalogName.String
	if genresJSON.Valid && genresJSON.String != "" {
		if err := json.Unmarshal([]byte(genresJSON.String), &e.Genres); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal genres")
		}
	}
	return &e, nil
}

func (s *SQLiteStore) PutEnrichment(ctx context.Context, entry *model.EnrichmentEntry) error {
	genresJSON, err := json.Marshal(entry.Genres)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal genres")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment (artist_key, catalog_id, catalog_name, popularity, followers, genres, tier, match_score, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(artist_key) DO UPDATE SET
		   catalog_id   = excluded.catalog_id,
		   catalog_name = excluded.catalog_name,
		   popularity   = excluded.popularity,
		   followers    = excluded.followers,
		   genres       = excluded.genres,
		   tier         = excluded.tier,
		   match_score  = excluded.match_score,
		   fetched_at   = excluded.fetched_at`,
		entry.ArtistKey, entry.CatalogID, entry.CatalogName, entry.Popularity,
		entry.Followers, string(genresJSON), string(entry.Tier), entry.MatchScore,
		entry.FetchedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: put enrichment %s", entry.ArtistKey)
}

func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap *model.AccuracySnapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, captured_at, total_entries,
		   verified_count, rejected_count, override_count, unverified_count,
		   with_video, no_video, high_confidence, medium_confidence, low_confidence,
		   errors, accuracy_rate, avg_confidence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.CapturedAt.UTC(), snap.TotalEntries,
		snap.VerifiedCount, snap.RejectedCount, snap.OverrideCount, snap.UnverifiedCount,
		snap.WithVideo, snap.NoVideo, snap.HighConf, snap.MediumConf, snap.LowConf,
		snap.Errors, snap.AccuracyRate, snap.AvgConfidence,
	)
	return eris.Wrap(err, "sqlite: append snapshot")
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]model.AccuracySnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, captured_at, total_entries,
		   verified_count, rejected_count, override_count, unverified_count,
		   with_video, no_video, high_confidence, medium_confidence, low_confidence,
		   errors, accuracy_rate, avg_confidence
		 FROM snapshots ORDER BY captured_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close()

	var out []model.AccuracySnapshot
	for rows.Next() {
		var sn model.AccuracySnapshot
		if err := rows.Scan(&sn.ID, &sn.CapturedAt, &sn.TotalEntries,
			&sn.VerifiedCount, &sn.RejectedCount, &sn.OverrideCount, &sn.UnverifiedCount,
			&sn.WithVideo, &sn.NoVideo, &sn.HighConf, &sn.MediumConf, &sn.LowConf,
			&sn.Errors, &sn.AccuracyRate, &sn.AvgConfidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, sn)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list snapshots iterate")
}

// GetStateBaseline returns the per-artist states recorded at the end of
// the last report, or nil when no report has run yet.
func (s *SQLiteStore) GetStateBaseline(ctx context.Context) (map[string]model.AssignmentState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT states FROM report_baseline WHERE id = 1`)

	var statesJSON string
	err := row.Scan(&statesJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get state baseline")
	}
	states := map[string]model.AssignmentState{}
	if err := json.Unmarshal([]byte(statesJSON), &states); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal state baseline")
	}
	return states, nil
}

func (s *SQLiteStore) PutStateBaseline(ctx context.Context, states map[string]model.AssignmentState) error {
	statesJSON, err := json.Marshal(states)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal state baseline")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO report_baseline (id, states, captured_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET states = excluded.states, captured_at = excluded.captured_at`,
		string(statesJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put state baseline")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		id, now, string(model.RunRunning),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, StartedAt: now, Status: model.RunRunning}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, now, string(model.RunRunning),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}
	return &model.RunPhase{ID: id, RunID: runID, Name: name, StartedAt: now, Status: model.RunRunning}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, status model.RunStatus, processed int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, processed = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), processed, errMsg, time.Now().UTC(), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAssignment(row scannable) (*model.Assignment, error) {
	var a model.Assignment
	var videoID sql.NullString
	var reasoningJSON, venue sql.NullString

	err := row.Scan(&a.ArtistKey, &a.DisplayName, &a.Role, &a.State, &videoID,
		&a.Score, &reasoningJSON, &venue, &a.DecidedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan assignment")
	}

	if videoID.Valid {
		v := videoID.String
		a.VideoID = &v
	}
	a.Venue = venue.String
	if reasoningJSON.Valid && reasoningJSON.String != "" {
		if err := json.Unmarshal([]byte(reasoningJSON.String), &a.Reasoning); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal reasoning")
		}
	}
	return &a, nil
}
