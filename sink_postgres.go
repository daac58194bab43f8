package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aktagon/trend-researcher/migrations"
)

// ReportStore wraps the pgx pool of the relational report store
type ReportStore struct {
	Pool *pgxpool.Pool
}

// StoredReport is one row of ai_trend_reports
type StoredReport struct {
	ID              int64
	Date            time.Time
	Summary         json.RawMessage
	DetailedResults json.RawMessage
	NewKeywords     json.RawMessage
	Recommendations json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewReportStore creates a connection pool and checks that the database answers
func NewReportStore(ctx context.Context, connString string) (*ReportStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ReportStore{Pool: pool}, nil
}

// RunMigrations applies the embedded SQL migrations
func RunMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *ReportStore) Close() {
	s.Pool.Close()
}

const upsertReportSQL = `
	INSERT INTO ai_trend_reports (date, summary, detailed_results, new_keywords, recommendations)
	VALUES ($1::date, $2, $3, $4, $5)
	ON CONFLICT (date) DO UPDATE SET
		summary          = EXCLUDED.summary,
		detailed_results = EXCLUDED.detailed_results,
		new_keywords     = EXCLUDED.new_keywords,
		recommendations  = EXCLUDED.recommendations,
		updated_at       = now()
	RETURNING id
`

// UpsertReport inserts the report or replaces the payload of the row with the same date
func (s *ReportStore) UpsertReport(ctx context.Context, report *Report) (int64, error) {
	columns := []interface{}{report.Summary, report.DetailedResults, report.NewKeywords, report.Recommendations}
	args := []interface{}{report.Date}
	for _, col := range columns {
		data, err := json.Marshal(col)
		if err != nil {
			return 0, fmt.Errorf("marshaling report column: %w", err)
		}
		args = append(args, data)
	}

	var id int64
	if err := s.Pool.QueryRow(ctx, upsertReportSQL, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting report %s: %w", report.Date, err)
	}
	return id, nil
}

// ReportsBetween returns the reports dated within [from, to], newest first
func (s *ReportStore) ReportsBetween(ctx context.Context, from, to string) ([]StoredReport, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, date, summary, detailed_results, new_keywords, recommendations, created_at, updated_at
		FROM ai_trend_reports
		WHERE date BETWEEN $1::date AND $2::date
		ORDER BY date DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}

	reports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (StoredReport, error) {
		var (
			r                               StoredReport
			summary, detailed, newKws, recs []byte
		)
		err := row.Scan(&r.ID, &r.Date, &summary, &detailed, &newKws, &recs, &r.CreatedAt, &r.UpdatedAt)
		r.Summary, r.DetailedResults, r.NewKeywords, r.Recommendations = summary, detailed, newKws, recs
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning reports: %w", err)
	}
	return reports, nil
}

// PostgresSink publishes reports to the relational store, migrating the schema on first use
type PostgresSink struct {
	connString string
	migrated   bool
}

func NewPostgresSink(connString string) *PostgresSink {
	return &PostgresSink{connString: connString}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Publish(ctx context.Context, report *Report) error {
	if !s.migrated {
		if err := RunMigrations(s.connString); err != nil {
			return err
		}
		s.migrated = true
	}

	store, err := NewReportStore(ctx, s.connString)
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = store.UpsertReport(ctx, report)
	return err
}
