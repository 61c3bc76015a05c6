package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore journals steps to a MySQL/MariaDB database.
//
// DSN format (see github.com/go-sql-driver/mysql):
//
//	user:password@tcp(localhost:3306)/minigraph
//
// Never hardcode credentials; the server reads the DSN from configuration.
type MySQLStore[S any] struct {
	sqlJournal[S]
}

// NewMySQLStore connects to dsn, verifies the connection and migrates the schema.
func NewMySQLStore[S any](ctx context.Context, dsn string) (*MySQLStore[S], error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MySQL connector: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS workflow_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			saved_at BIGINT NOT NULL,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create workflow_steps table: %w", err)
	}

	return &MySQLStore[S]{
		sqlJournal: sqlJournal[S]{
			db: db,
			upsert: `
				INSERT INTO workflow_steps (run_id, step, node_id, state, saved_at)
				VALUES (?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE
					node_id = VALUES(node_id),
					state = VALUES(state),
					saved_at = VALUES(saved_at)
			`,
			now: time.Now,
		},
	}, nil
}

// Stats returns connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.db.Stats()
}
