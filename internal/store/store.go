// Package store persists canonical rows keyed by transaction ID.
//
// Every backend follows the same conflict rule: the first write of an ID
// fixes all immutable fields, later writes of the same ID replace the tags
// and nothing else. Re-applying an unchanged row is therefore a no-op.
package store

import (
	"context"
	"fmt"

	"github.com/cleared-dev/stmtimport/internal/id"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// DefaultChunkSize bounds the number of rows per INSERT statement.
const DefaultChunkSize = 500

// Driver names accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Row is one accepted transaction ready for upsert.
type Row struct {
	ID  id.TransactionID
	Txn model.Transaction
}

// Store is the bulk upsert contract consumed by the batch assembler.
type Store interface {
	// EnsureSchema creates the transactions table when it does not exist.
	EnsureSchema(ctx context.Context) error
	// Upsert writes rows in a single transaction and reports how many rows
	// were submitted. On failure nothing from the call is committed.
	Upsert(ctx context.Context, rows []Row) (int64, error)
	Close() error
}

// Conf selects and configures a backend.
type Conf struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	ChunkSize int    `yaml:"chunk_size"`
}

// Open connects the backend named by conf.Driver.
func Open(ctx context.Context, conf Conf) (Store, error) {
	chunk := conf.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	switch conf.Driver {
	case DriverPostgres:
		return OpenPostgres(ctx, conf.DSN, chunk)
	case DriverMySQL:
		return OpenMySQL(conf.DSN, chunk)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Driver)
	}
}

// chunks splits [0,n) into consecutive half-open ranges of at most size.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		out = append(out, [2]int{lo, hi})
	}
	return out
}
