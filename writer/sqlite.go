package writer

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"signalflow/logger"
	"signalflow/models"
)

// MetricStore persists flattened run metrics in SQLite. Rows are keyed by
// (scope_key, as_of_date, interval, metric_key) and upserted, so re-running
// the same day replaces rather than duplicates.
type MetricStore struct {
	db  *sql.DB
	log *logger.Log
}

// OpenMetricStore opens (or creates) the metric database at path with WAL
// mode and the single-writer pool the scan needs.
func OpenMetricStore(path string) (*MetricStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createMetricSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log := logger.GetLogger()
	log.WithComponent("metric_store").WithFields(logger.Fields{"path": path}).Info("metric store opened")
	return &MetricStore{db: db, log: log}, nil
}

func createMetricSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS metrics (
			scope_key  TEXT    NOT NULL,
			as_of_date TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			metric_key TEXT    NOT NULL,
			value      REAL    NOT NULL,
			run_id     TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (scope_key, as_of_date, interval, metric_key)
		);

		CREATE INDEX IF NOT EXISTS idx_metrics_run ON metrics (run_id);
	`)
	return err
}

// UpsertRows writes all rows in one transaction. Conflicting keys are
// replaced so the latest run for a (scope, date, interval, metric) wins.
func (s *MetricStore) UpsertRows(rows []models.MetricRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO metrics (scope_key, as_of_date, interval, metric_key, value, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, r := range rows {
		if _, err := stmt.Exec(r.ScopeKey, r.AsOfDate, r.Interval, r.MetricKey, r.Value, r.RunID, now); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.log.WithComponent("metric_store").WithFields(logger.Fields{"rows": len(rows)}).Info("metrics upserted")
	logger.IncrementPersist(len(rows))
	return nil
}

// Has reports whether any metrics exist for the given as-of date and
// interval. The runner uses it to skip recomputing an already-stored day.
func (s *MetricStore) Has(asOfDate, interval string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(1) FROM metrics WHERE as_of_date = ? AND interval = ?`,
		asOfDate, interval,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database.
func (s *MetricStore) Close() error {
	return s.db.Close()
}
