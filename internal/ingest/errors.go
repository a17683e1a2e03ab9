package ingest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cleared-dev/stmtimport/internal/statement"
)

var (
	// ErrTransport: the payload could not be read as statement bytes.
	ErrTransport = errors.New("unreadable payload")
	// ErrStorage: the bulk upsert failed and nothing from the batch was committed.
	ErrStorage = errors.New("storage failure")
	// ErrIDMismatch: an exported row's ID does not match its immutable fields.
	ErrIDMismatch = errors.New("transaction ID mismatch")
)

// DialectExport names batches loaded from a canonical row export.
const DialectExport = "export"

// StorageError wraps the failure reported by the store.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", ErrStorage, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// HTTPStatus maps a batch-level failure to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrTransport):
		return http.StatusBadRequest
	case errors.Is(err, statement.ErrDialect):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
