// Package history mirrors persisted records into SQLite for the HTTP API.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/greenhouse-sensor/internal/sensor"
)

// DefaultLimit is the number of rows Recent returns when limit is not positive.
const DefaultLimit = 100

// MaxLimit caps Recent.
const MaxLimit = 10000

// ErrInvalidPath is returned when no database path is configured.
var ErrInvalidPath = errors.New("history: empty database path")

// Row is one sensor reading from one record.
type Row struct {
	At          time.Time `json:"-"`
	Unix        int64     `json:"unix"`
	Sensor      string    `json:"sensor"`
	Humidity    *float64  `json:"humidity"`
	Temperature *float64  `json:"temperature"`
	Unit        string    `json:"unit"`
	Samples     int       `json:"samples"`
	Attempts    int       `json:"attempts"`
}

// Repository stores readings in a SQLite database.
type Repository struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS readings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            unix INTEGER NOT NULL,
            sensor TEXT NOT NULL,
            humidity REAL,
            temperature REAL,
            unit TEXT NOT NULL,
            samples INTEGER NOT NULL,
            attempts INTEGER NOT NULL
        );
        CREATE INDEX IF NOT EXISTS readings_unix ON readings(unix);
    `)
	if err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

func nullable(v float64, valid bool) sql.NullFloat64 {
	if !valid || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Record inserts every reading of rec in one transaction.
func (r *Repository) Record(ctx context.Context, rec sensor.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO readings (unix, sensor, humidity, temperature, unit, samples, attempts)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, rd := range rec.Readings {
		_, err := stmt.ExecContext(ctx,
			rec.At.Unix(),
			rd.Name,
			nullable(rd.Humidity, rd.Valid),
			nullable(rd.Temperature, rd.Valid),
			rd.Unit.Symbol(),
			rd.Samples,
			rd.Attempts,
		)
		if err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// Recent returns up to limit rows, newest record first and sensors in
// insertion order within a record.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT unix, sensor, humidity, temperature, unit, samples, attempts
        FROM readings
        ORDER BY unix DESC, id ASC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var (
			row  Row
			h, t sql.NullFloat64
		)
		if err := rows.Scan(&row.Unix, &row.Sensor, &h, &t, &row.Unit, &row.Samples, &row.Attempts); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		row.At = time.Unix(row.Unix, 0).UTC()
		if h.Valid {
			row.Humidity = &h.Float64
		}
		if t.Valid {
			row.Temperature = &t.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close history database: %w", err)
	}
	return nil
}
