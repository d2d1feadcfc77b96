package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsewatch/pulsewatch/internal/metric"
	"github.com/pulsewatch/pulsewatch/internal/threshold"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	kind        TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_observed_at ON samples (observed_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	threshold   DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	delivery    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS alerts_observed_at ON alerts (observed_at DESC);
`

// NewPostgres connects to dsn, verifies the connection, and ensures the
// samples/alerts tables exist.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) RecordSample(ctx context.Context, s metric.Sample) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO samples (kind, value, observed_at) VALUES ($1,$2,$3)`,
		string(s.Kind), s.Value, s.ObservedAt)
	return err
}

func (p *Postgres) RecentSamples(ctx context.Context, n int) ([]metric.Sample, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT kind, value, observed_at FROM samples ORDER BY observed_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	return scanSamples(rows)
}

func (p *Postgres) SamplesInRange(ctx context.Context, from, to time.Time) ([]metric.Sample, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT kind, value, observed_at FROM samples
		 WHERE observed_at >= $1 AND observed_at <= $2 ORDER BY observed_at DESC`, from, to)
	if err != nil {
		return nil, err
	}
	return scanSamples(rows)
}

func (p *Postgres) RecordAlert(ctx context.Context, b threshold.Breach) (AlertRecord, error) {
	rec := AlertRecord{
		ID:         uuid.NewString(),
		Subject:    b.Subject,
		Kind:       b.Kind,
		Value:      b.Value,
		Limit:      b.Limit,
		ObservedAt: b.ObservedAt,
		CreatedAt:  time.Now().UTC(),
		Delivery:   DeliveryPending,
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO alerts (id, subject, kind, value, threshold, observed_at, created_at, delivery)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.Subject, string(rec.Kind), rec.Value, rec.Limit,
		rec.ObservedAt, rec.CreatedAt, string(rec.Delivery))
	if err != nil {
		return AlertRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) UpdateDelivery(ctx context.Context, id string, status DeliveryStatus) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current string
	err = tx.QueryRow(ctx, `SELECT delivery FROM alerts WHERE id=$1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	if DeliveryStatus(current) == status {
		return tx.Commit(ctx) // idempotent repeat
	}
	if !validTransition(DeliveryStatus(current), status) {
		return ErrInvalidTransition
	}
	if _, err := tx.Exec(ctx, `UPDATE alerts SET delivery=$1 WHERE id=$2`, string(status), id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) RecentAlerts(ctx context.Context, n int) ([]AlertRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, subject, kind, value, threshold, observed_at, created_at, delivery
		 FROM alerts ORDER BY observed_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (p *Postgres) AlertsInRange(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, subject, kind, value, threshold, observed_at, created_at, delivery
		 FROM alerts WHERE observed_at >= $1 AND observed_at <= $2 ORDER BY observed_at DESC`, from, to)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (p *Postgres) Summary(ctx context.Context, n int) (Summary, error) {
	sum := Summary{
		Breakdown:       make(map[metric.Kind]int),
		LastAlertTimes:  make([]time.Time, 0, n),
		AvgRecentSample: make(map[metric.Kind]float64),
	}

	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&sum.TotalAlerts); err != nil {
		return Summary{}, err
	}

	rows, err := p.pool.Query(ctx, `SELECT kind, COUNT(*) FROM alerts GROUP BY kind`)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.Breakdown[metric.Kind(kind)] = count
	}
	rows.Close()
	if rows.Err() != nil {
		return Summary{}, rows.Err()
	}

	rows, err = p.pool.Query(ctx, `SELECT observed_at FROM alerts ORDER BY observed_at DESC LIMIT $1`, n)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.LastAlertTimes = append(sum.LastAlertTimes, ts)
	}
	rows.Close()
	if rows.Err() != nil {
		return Summary{}, rows.Err()
	}

	rows, err = p.pool.Query(ctx, `
		SELECT kind, AVG(value) FROM (
			SELECT kind, value,
			       ROW_NUMBER() OVER (PARTITION BY kind ORDER BY observed_at DESC) AS rn
			FROM samples
		) recent WHERE rn <= $1 GROUP BY kind`, summaryWindow)
	if err != nil {
		return Summary{}, err
	}
	for rows.Next() {
		var kind string
		var avg float64
		if err := rows.Scan(&kind, &avg); err != nil {
			rows.Close()
			return Summary{}, err
		}
		sum.AvgRecentSample[metric.Kind(kind)] = avg
	}
	rows.Close()
	return sum, rows.Err()
}

func (p *Postgres) Close() {
	p.pool.Close()
}

func scanSamples(rows pgx.Rows) ([]metric.Sample, error) {
	defer rows.Close()
	out := []metric.Sample{}
	for rows.Next() {
		var kind string
		var s metric.Sample
		if err := rows.Scan(&kind, &s.Value, &s.ObservedAt); err != nil {
			return nil, err
		}
		s.Kind = metric.Kind(kind)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanAlerts(rows pgx.Rows) ([]AlertRecord, error) {
	defer rows.Close()
	out := []AlertRecord{}
	for rows.Next() {
		var kind, delivery string
		var a AlertRecord
		if err := rows.Scan(&a.ID, &a.Subject, &kind, &a.Value, &a.Limit,
			&a.ObservedAt, &a.CreatedAt, &delivery); err != nil {
			return nil, err
		}
		a.Kind = metric.Kind(kind)
		a.Delivery = DeliveryStatus(delivery)
		out = append(out, a)
	}
	return out, rows.Err()
}
