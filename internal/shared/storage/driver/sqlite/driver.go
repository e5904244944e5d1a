// Package sqlite SQLite 数据库驱动
//
// 提供 SQLite 连接管理、方言实现和自动 Schema 迁移。
// 适用于开发、测试和轻量级部署场景。
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"golden-drift/internal/shared/storage/dbutil"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverSQLite
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripPgCasts(dbutil.RebindToQuestion(query))
}

func (d *Dialect) CurrentTimestamp() string {
	return "datetime('now')"
}

func (d *Dialect) IsDuplicateKey(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Open 创建 SQLite 数据库连接
// dsn 示例: "file:golden.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// 内存库每个连接相互独立，且 SQLite 只允许单写者
	db.SetMaxOpenConns(1)

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return db, nil
}

// NewDialect 创建 SQLite 方言
func NewDialect() *Dialect {
	return &Dialect{}
}

// schema SQLite 完整建表语句（等价于 deployments/init-db.sql）
const schema = `
-- golden_tests
CREATE TABLE IF NOT EXISTS golden_tests (
    id VARCHAR(64) PRIMARY KEY,
    test_case_id VARCHAR(64) NOT NULL,
    agent_id VARCHAR(64) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    name VARCHAR(200) NOT NULL,
    baseline_result_id VARCHAR(64) NOT NULL,
    baseline_responses TEXT NOT NULL DEFAULT '[]',
    baseline_metrics TEXT,
    baseline_captured_at DATETIME NOT NULL,
    min_semantic_similarity REAL NOT NULL DEFAULT 0.90,
    max_latency_increase REAL NOT NULL DEFAULT 0.20,
    max_cost_increase REAL NOT NULL DEFAULT 0.15,
    schedule_frequency VARCHAR(16) NOT NULL DEFAULT 'daily',
    last_run_at DATETIME,
    next_scheduled_run DATETIME,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    version INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT (datetime('now')),
    updated_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_golden_tests_agent ON golden_tests(agent_id);
CREATE INDEX IF NOT EXISTS idx_golden_tests_user ON golden_tests(user_id);
CREATE INDEX IF NOT EXISTS idx_golden_tests_due ON golden_tests(status, next_scheduled_run);

-- golden_test_runs
CREATE TABLE IF NOT EXISTS golden_test_runs (
    id VARCHAR(64) PRIMARY KEY,
    golden_test_id VARCHAR(64) NOT NULL REFERENCES golden_tests(id) ON DELETE CASCADE,
    current_result_id VARCHAR(64),
    passed INTEGER NOT NULL DEFAULT 0,
    semantic_similarity REAL NOT NULL DEFAULT 0,
    latency_change REAL,
    cost_change REAL,
    drift_details TEXT NOT NULL DEFAULT '[]',
    alerts TEXT NOT NULL DEFAULT '[]',
    transcript_key TEXT,
    run_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_golden_test_runs_test ON golden_test_runs(golden_test_id, run_at);
`
