package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres writes rows through a pgx connection pool.
type Postgres struct {
	pool  *pgxpool.Pool
	chunk int
}

// OpenPostgres connects a pool for dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, chunk int) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Postgres{pool: pool, chunk: chunk}, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Upsert writes all rows in one transaction, chunked into multi-row INSERTs.
func (p *Postgres) Upsert(ctx context.Context, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks(len(rows), p.chunk) {
		if err := p.insertChunk(ctx, tx, rows[c[0]:c[1]]); err != nil {
			return 0, fmt.Errorf("rows %d-%d: %w", c[0], c[1]-1, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return int64(len(rows)), nil
}

func (p *Postgres) insertChunk(ctx context.Context, tx pgx.Tx, rows []Row) error {
	args := make([]any, 0, len(rows)*len(rowColumns))
	for _, r := range rows {
		args = append(args, postgresArgs(r)...)
	}
	_, err := tx.Exec(ctx, postgresUpsertSQL(len(rows)), args...)
	return err
}

func postgresArgs(r Row) []any {
	t := r.Txn
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		int64(r.ID), t.Reservation, t.ValueDate, t.Receiver, t.Text,
		t.Purpose, t.Amount, t.Currency, t.Balance, tags,
	}
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
