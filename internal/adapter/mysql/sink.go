package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"harvest-deck/internal/domain"
	"harvest-deck/internal/migrate"
)

// Sink implements ports.TotalsSink by upserting into harvest_account_totals.
type Sink struct {
	db  *sql.DB
	log *slog.Logger
}

// Open connects to MySQL using the provided DSN.
// Example DSN: user:pass@tcp(host:3306)/dbname?parseTime=true&multiStatements=true
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("mysql: DSN is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	// One writer per pass is enough.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Sink{db: db, log: log}, nil
}

// Migrate applies the embedded schema.
func (s *Sink) Migrate(ctx context.Context) error {
	return migrate.Apply(ctx, s.db, s.log)
}

// RecordTotals upserts one row per account and day. A later pass for the same
// day overwrites the earlier one.
func (s *Sink) RecordTotals(ctx context.Context, totals []domain.AccountTotals) error {
	if len(totals) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	const q = `
INSERT INTO harvest_account_totals
  (account_id, day, pass_id, weekly_hours, daily_hours, projects, clients, active, recorded_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  pass_id=VALUES(pass_id),
  weekly_hours=VALUES(weekly_hours),
  daily_hours=VALUES(daily_hours),
  projects=VALUES(projects),
  clients=VALUES(clients),
  active=VALUES(active),
  recorded_at=VALUES(recorded_at);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range totals {
		projects, err := encodeHours(t.Projects)
		if err != nil {
			tx.Rollback()
			return err
		}
		clients, err := encodeHours(t.Clients)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(
			ctx,
			t.AccountID,
			t.Day,
			t.PassID,
			t.WeeklyHours,
			t.DailyHours,
			projects,
			clients,
			t.Active,
			t.RecordedAt.UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert totals for account %s: %w", t.AccountID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Info("mysql sink upserted totals", slog.Int("accounts", len(totals)))
	return nil
}

// encodeHours stores an id->hours map as a JSON object.
func encodeHours(m map[int64]float64) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode hours: %w", err)
	}
	return string(b), nil
}

// Close closes the underlying DB.
func (s *Sink) Close() error { return s.db.Close() }
