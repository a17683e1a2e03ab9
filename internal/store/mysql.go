package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

var mysqlDecimalLimit = decimal.New(1, mysqlIntDigits)

// MySQL writes rows through database/sql and the go-sql-driver.
type MySQL struct {
	db    *sql.DB
	chunk int
}

// OpenMySQL opens a connection for dsn, forcing the options the row
// encoding relies on.
func OpenMySQL(dsn string, chunk int) (*MySQL, error) {
	mconf, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", mconf.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &MySQL{db: db, chunk: chunk}, nil
}

func mysqlConfig(dsn string) (*mysql.Config, error) {
	mconf, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql DSN: %w", err)
	}
	mconf.ParseTime = true
	mconf.Loc = time.UTC
	return mconf, nil
}

func (m *MySQL) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Upsert writes all rows in one transaction, chunked into multi-row INSERTs.
func (m *MySQL) Upsert(ctx context.Context, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range chunks(len(rows), m.chunk) {
		args, err := mysqlChunkArgs(rows[c[0]:c[1]])
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, mysqlUpsertSQL(c[1]-c[0]), args...); err != nil {
			return 0, fmt.Errorf("rows %d-%d: %w", c[0], c[1]-1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	return int64(len(rows)), nil
}

// mysqlChunkArgs flattens rows into placeholder arguments. Tags are stored
// as a JSON array. Numbers the DECIMAL columns would round are refused.
func mysqlChunkArgs(rows []Row) ([]any, error) {
	args := make([]any, 0, len(rows)*len(rowColumns))
	for _, r := range rows {
		t := r.Txn
		if err := fitsMySQLDecimal(t.Amount); err != nil {
			return nil, fmt.Errorf("amount of %s: %w", r.ID, err)
		}
		if t.Balance.Valid {
			if err := fitsMySQLDecimal(t.Balance.Decimal); err != nil {
				return nil, fmt.Errorf("balance of %s: %w", r.ID, err)
			}
		}
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		enc, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("encoding tags of %s: %w", r.ID, err)
		}
		args = append(args,
			int64(r.ID), t.Reservation, t.ValueDate, t.Receiver, t.Text,
			t.Purpose, t.Amount, t.Currency, t.Balance, string(enc),
		)
	}
	return args, nil
}

func fitsMySQLDecimal(d decimal.Decimal) error {
	if !d.Truncate(mysqlScale).Equal(d) {
		return fmt.Errorf("%s has more than %d fractional digits", d, mysqlScale)
	}
	if d.Abs().GreaterThanOrEqual(mysqlDecimalLimit) {
		return fmt.Errorf("%s has more than %d integer digits", d, mysqlIntDigits)
	}
	return nil
}

func (m *MySQL) Close() error {
	return m.db.Close()
}
