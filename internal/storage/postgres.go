package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"market_briefing/internal/models"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id                SERIAL PRIMARY KEY,
	ticker            TEXT NOT NULL,
	action            TEXT NOT NULL,
	recommended_price NUMERIC,
	target_price      NUMERIC,
	stop_price        NUMERIC,
	current_price     NUMERIC,
	position_size     TEXT NOT NULL DEFAULT '',
	horizon           TEXT NOT NULL DEFAULT '',
	confidence        TEXT NOT NULL DEFAULT '',
	source_title      TEXT NOT NULL DEFAULT '',
	briefing_date     TIMESTAMPTZ NOT NULL,
	note              TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_recommendations_briefing_date ON recommendations (briefing_date);
CREATE INDEX IF NOT EXISTS idx_recommendations_ticker ON recommendations (ticker);`

const recommendationColumns = `id, ticker, action, recommended_price, target_price, stop_price, current_price,
	position_size, horizon, confidence, source_title, briefing_date, note, created_at, updated_at`

// PostgresStore keeps recommendations in Postgres through database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.Recommendation) (uint, error) {
	now := time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recommendations (ticker, action, recommended_price, target_price, stop_price, current_price,
			position_size, horizon, confidence, source_title, briefing_date, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		RETURNING id`,
		rec.Ticker, rec.Action, rec.RecommendedPrice, rec.TargetPrice, rec.StopPrice, rec.CurrentPrice,
		rec.PositionSize, rec.Horizon, rec.Confidence, rec.SourceTitle, rec.BriefingDate, rec.Note, now,
	).Scan(&rec.ID)
	if err != nil {
		return 0, fmt.Errorf("create recommendation %s: %w", rec.Ticker, err)
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	return rec.ID, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]models.Recommendation, error) {
	query, args := buildQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var out []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		if err := rows.Scan(&r.ID, &r.Ticker, &r.Action, &r.RecommendedPrice, &r.TargetPrice, &r.StopPrice,
			&r.CurrentPrice, &r.PositionSize, &r.Horizon, &r.Confidence, &r.SourceTitle, &r.BriefingDate,
			&r.Note, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// buildQuery renders q as a parameterized SELECT.
func buildQuery(q Query) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !q.From.IsZero() {
		add("briefing_date >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("briefing_date < $%d", q.To)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if q.Ticker != "" {
		add("ticker = $%d", q.Ticker)
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + recommendationColumns + " FROM recommendations")
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.Order == OldestFirst {
		sb.WriteString(" ORDER BY briefing_date ASC, id ASC")
	} else {
		sb.WriteString(" ORDER BY briefing_date DESC, id DESC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, id uint, price decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET current_price = $1, updated_at = NOW() WHERE id = $2`, price, id)
	if err != nil {
		return fmt.Errorf("update price %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
