package store

import (
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"
)

func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			model       TEXT NOT NULL,
			params      TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'running',
			best_map3   REAL NOT NULL DEFAULT 0,
			checkpoint  TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS epoch_metrics (
			run_id           INTEGER NOT NULL,
			epoch            INTEGER NOT NULL,
			cycle            INTEGER NOT NULL DEFAULT 0,
			train_loss       REAL NOT NULL DEFAULT 0,
			val_loss         REAL NOT NULL DEFAULT 0,
			val_map3         REAL NOT NULL DEFAULT 0,
			val_acc1         REAL NOT NULL DEFAULT 0,
			val_acc3         REAL NOT NULL DEFAULT 0,
			val_acc5         REAL NOT NULL DEFAULT 0,
			val_acc10        REAL NOT NULL DEFAULT 0,
			lr               REAL NOT NULL DEFAULT 0,
			duration_ms      INTEGER NOT NULL DEFAULT 0,
			checkpoint_saved INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, epoch)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_epoch_metrics_run ON epoch_metrics(run_id);`,
		`CREATE TABLE IF NOT EXISTS eval_reports (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			model      TEXT NOT NULL,
			dataset    TEXT NOT NULL,
			samples    INTEGER NOT NULL DEFAULT 0,
			map3       REAL NOT NULL DEFAULT 0,
			acc1       REAL NOT NULL DEFAULT 0,
			acc3       REAL NOT NULL DEFAULT 0,
			acc5       REAL NOT NULL DEFAULT 0,
			acc10      REAL NOT NULL DEFAULT 0,
			ambiguous  INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration statement: %w", err)
		}
	}
	return nil
}
