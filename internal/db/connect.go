package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps common aliases to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "pg", "pgsql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", s)
	}
}

// Open opens a DB, tunes the pool and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:mindengage-quiz.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/mindengage_quiz?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	tunePool(driver, db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db: schema: %w", err)
	}
	return db, nil
}

// tunePool keeps SQLite to a single connection; it is a single writer and an
// in-memory database only exists on the connection that created it.
func tunePool(driver Driver, db *sql.DB) {
	switch driver {
	case DriverSQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(45 * time.Minute)
		db.SetConnMaxIdleTime(15 * time.Minute)
	}
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS revisions (
  vid INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS quizzes (
  nid INTEGER NOT NULL,
  vid INTEGER NOT NULL,
  title TEXT NOT NULL,
  creator_id TEXT NOT NULL DEFAULT '',
  randomization INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS questions (
  nid INTEGER NOT NULL,
  vid INTEGER NOT NULL,
  type TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  title_override TEXT NOT NULL DEFAULT '',
  creator_id TEXT NOT NULL DEFAULT '',
  data_json TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS quiz_question_properties (
  nid INTEGER NOT NULL,
  vid INTEGER NOT NULL,
  max_score INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS quiz_node_relationship (
  parent_nid INTEGER NOT NULL,
  parent_vid INTEGER NOT NULL,
  child_nid INTEGER NOT NULL,
  child_vid INTEGER NOT NULL,
  question_status TEXT NOT NULL DEFAULT 'always',
  weight INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (parent_vid, child_vid)
);
CREATE INDEX IF NOT EXISTS idx_relationship_child ON quiz_node_relationship (child_nid);

CREATE TABLE IF NOT EXISTS quiz_node_results (
  result_id INTEGER PRIMARY KEY AUTOINCREMENT,
  nid INTEGER NOT NULL,
  vid INTEGER NOT NULL,
  uid TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  finished_at INTEGER NOT NULL DEFAULT 0,
  score INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_results_vid ON quiz_node_results (vid);

CREATE TABLE IF NOT EXISTS quiz_node_results_answers (
  result_id INTEGER NOT NULL REFERENCES quiz_node_results(result_id) ON DELETE CASCADE,
  question_nid INTEGER NOT NULL,
  question_vid INTEGER NOT NULL,
  answer_json TEXT NOT NULL DEFAULT '',
  is_correct BOOLEAN NOT NULL DEFAULT 0,
  is_skipped BOOLEAN NOT NULL DEFAULT 0,
  is_doubtful BOOLEAN NOT NULL DEFAULT 0,
  is_evaluated BOOLEAN NOT NULL DEFAULT 0,
  points_awarded INTEGER NOT NULL DEFAULT 0,
  manual_score INTEGER,
  answered_at INTEGER NOT NULL,
  PRIMARY KEY (result_id, question_vid)
);
CREATE INDEX IF NOT EXISTS idx_answers_question ON quiz_node_results_answers (question_vid);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS revisions (
  vid BIGSERIAL PRIMARY KEY,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS quizzes (
  nid BIGINT NOT NULL,
  vid BIGINT NOT NULL,
  title TEXT NOT NULL,
  creator_id TEXT NOT NULL DEFAULT '',
  randomization INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS questions (
  nid BIGINT NOT NULL,
  vid BIGINT NOT NULL,
  type TEXT NOT NULL,
  body TEXT NOT NULL DEFAULT '',
  title_override TEXT NOT NULL DEFAULT '',
  creator_id TEXT NOT NULL DEFAULT '',
  data_json TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS quiz_question_properties (
  nid BIGINT NOT NULL,
  vid BIGINT NOT NULL,
  max_score INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (nid, vid)
);

CREATE TABLE IF NOT EXISTS quiz_node_relationship (
  parent_nid BIGINT NOT NULL,
  parent_vid BIGINT NOT NULL,
  child_nid BIGINT NOT NULL,
  child_vid BIGINT NOT NULL,
  question_status TEXT NOT NULL DEFAULT 'always',
  weight INTEGER NOT NULL DEFAULT 0,
  max_score INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (parent_vid, child_vid)
);
CREATE INDEX IF NOT EXISTS idx_relationship_child ON quiz_node_relationship (child_nid);

CREATE TABLE IF NOT EXISTS quiz_node_results (
  result_id BIGSERIAL PRIMARY KEY,
  nid BIGINT NOT NULL,
  vid BIGINT NOT NULL,
  uid TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  finished_at BIGINT NOT NULL DEFAULT 0,
  score INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_results_vid ON quiz_node_results (vid);

CREATE TABLE IF NOT EXISTS quiz_node_results_answers (
  result_id BIGINT NOT NULL REFERENCES quiz_node_results(result_id) ON DELETE CASCADE,
  question_nid BIGINT NOT NULL,
  question_vid BIGINT NOT NULL,
  answer_json TEXT NOT NULL DEFAULT '',
  is_correct BOOLEAN NOT NULL DEFAULT FALSE,
  is_skipped BOOLEAN NOT NULL DEFAULT FALSE,
  is_doubtful BOOLEAN NOT NULL DEFAULT FALSE,
  is_evaluated BOOLEAN NOT NULL DEFAULT FALSE,
  points_awarded INTEGER NOT NULL DEFAULT 0,
  manual_score INTEGER,
  answered_at BIGINT NOT NULL,
  PRIMARY KEY (result_id, question_vid)
);
CREATE INDEX IF NOT EXISTS idx_answers_question ON quiz_node_results_answers (question_vid);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
