// Package ingest drives one statement upload from raw bytes to a single bulk
// upsert.
//
// Rows that fail validation are skipped and reported; the rest of the upload
// is still written. Only an unreadable payload, an unresolvable dialect or a
// storage failure fail the batch as a whole.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cleared-dev/stmtimport/internal/audit"
	"github.com/cleared-dev/stmtimport/internal/id"
	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/statement"
	"github.com/cleared-dev/stmtimport/internal/store"
)

// Auditor records rejected rows.
type Auditor interface {
	Append(entries []audit.Entry) error
}

// Rejection explains why one statement line was skipped.
type Rejection struct {
	Line   int    `json:"line"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// BatchResult summarizes one upload.
type BatchResult struct {
	UploadID   string      `json:"upload_id"`
	Dialect    string      `json:"dialect"`
	RowsTotal  int         `json:"rows_total"`
	Accepted   int         `json:"accepted"`
	Rejected   int         `json:"rejected"`
	Duplicates int         `json:"duplicates"` // accepted rows folded into an earlier row with the same ID
	Upserted   int64       `json:"upserted"`
	Rejections []Rejection `json:"rejections"`
	Rows       []store.Row `json:"-"`
}

// Service turns uploads into upserts.
type Service struct {
	store    store.Store
	registry *statement.Registry
	opts     statement.Options
	auditor  Auditor
	now      func() time.Time
	newID    func() string
}

// NewService creates an ingest Service. auditor may be nil.
func NewService(st store.Store, opts statement.Options, auditor Auditor) *Service {
	return &Service{
		store:    st,
		registry: statement.DefaultRegistry(),
		opts:     opts,
		auditor:  auditor,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Ingest assembles payload and submits the accepted rows in one upsert call.
// Rejections are audited before the write; audit failures are logged only.
func (s *Service) Ingest(ctx context.Context, payload []byte) (*BatchResult, error) {
	res, err := s.Assemble(ctx, payload)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, res)
}

// Load submits rows read back from a canonical export, such as a reviewed
// dry run. A row whose ID does not match its immutable fields is rejected,
// so editing an export can change tags and nothing else.
func (s *Service) Load(ctx context.Context, rows []store.Row) (*BatchResult, error) {
	res := &BatchResult{UploadID: s.newID(), Dialect: DialectExport, RowsTotal: len(rows), Rejections: []Rejection{}}
	logger := logging.FromContext(ctx).With().Str("upload_id", res.UploadID).Logger()

	seen := make(map[id.TransactionID]int, len(rows))
	for i, row := range rows {
		line := i + 2 // header is line 1
		if want := id.Compute(row.Txn); want != row.ID {
			err := fmt.Errorf("%w: row has %s, fields hash to %s", ErrIDMismatch, row.ID, want)
			res.Rejections = append(res.Rejections, rejection(line, err))
			logger.Warn().Int("line", line).Err(err).Msg("row rejected")
			continue
		}
		res.Accepted++
		if res.add(seen, row) {
			logger.Debug().Int("line", line).Stringer("id", row.ID).Msg("duplicate row in batch")
		}
	}
	res.Rejected = len(res.Rejections)
	return s.submit(ctx, res)
}

// submit audits the rejections of res and upserts its rows.
func (s *Service) submit(ctx context.Context, res *BatchResult) (*BatchResult, error) {
	logger := logging.FromContext(ctx).With().Str("upload_id", res.UploadID).Logger()

	s.audit(ctx, res)

	if len(res.Rows) == 0 {
		logger.Info().Int("rejected", res.Rejected).Msg("nothing to upsert")
		return res, nil
	}

	n, err := s.store.Upsert(ctx, res.Rows)
	if err != nil {
		logger.Error().Err(err).Int("rows", len(res.Rows)).Msg("bulk upsert failed")
		return nil, &StorageError{Err: err}
	}
	res.Upserted = n
	logger.Info().
		Str("dialect", res.Dialect).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Int("duplicates", res.Duplicates).
		Int64("upserted", n).
		Msg("batch stored")
	return res, nil
}

// add appends row to res.Rows unless an earlier row has the same ID, in
// which case the earlier row keeps its position and takes the new tags.
// It reports whether row was a duplicate.
func (res *BatchResult) add(seen map[id.TransactionID]int, row store.Row) bool {
	if i, ok := seen[row.ID]; ok {
		res.Rows[i].Txn.Tags = row.Txn.Tags
		res.Duplicates++
		return true
	}
	seen[row.ID] = len(res.Rows)
	res.Rows = append(res.Rows, row)
	return false
}

// Assemble decodes, validates and identifies every row of payload without
// touching storage. The accepted rows end up in BatchResult.Rows, one per
// transaction ID, in order of first appearance.
func (s *Service) Assemble(ctx context.Context, payload []byte) (*BatchResult, error) {
	res := &BatchResult{UploadID: s.newID(), Rejections: []Rejection{}}
	logger := logging.FromContext(ctx).With().Str("upload_id", res.UploadID).Logger()
	logger.Debug().Int("bytes", len(payload)).Msg("batch started")

	records, err := statement.Decode(payload, s.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(records) == 0 {
		logger.Info().Msg("payload holds no records")
		return res, nil
	}

	head := records[0]
	data := records
	if s.opts.HasHeader {
		data = records[1:]
	}
	layout, err := s.registry.Resolve(head)
	if err != nil {
		logger.Warn().Err(err).Msg("unresolvable dialect")
		return nil, err
	}
	res.Dialect = layout.Name()
	res.RowsTotal = len(data)
	logger.Debug().Str("dialect", layout.Name()).Int("rows", len(data)).Msg("dialect resolved")

	v := statement.NewValidator(layout, s.opts)
	seen := make(map[id.TransactionID]int, len(data))
	for _, rec := range data {
		txn, err := v.Validate(rec)
		if err != nil {
			rej := rejection(rec.Line, err)
			res.Rejections = append(res.Rejections, rej)
			logger.Warn().Int("line", rej.Line).Str("field", rej.Field).Str("reason", rej.Reason).Msg("row rejected")
			continue
		}
		res.Accepted++

		key := id.Compute(txn)
		if res.add(seen, store.Row{ID: key, Txn: txn}) {
			logger.Debug().Int("line", rec.Line).Stringer("id", key).Msg("duplicate row in batch")
		}
	}
	res.Rejected = len(res.Rejections)
	return res, nil
}

func rejection(line int, err error) Rejection {
	rej := Rejection{Line: line, Reason: err.Error(), Err: err}
	var ferr *statement.FieldError
	if errors.As(err, &ferr) {
		rej.Field = string(ferr.Field)
	}
	return rej
}

func (s *Service) audit(ctx context.Context, res *BatchResult) {
	if s.auditor == nil || len(res.Rejections) == 0 {
		return
	}
	ts := s.now()
	entries := make([]audit.Entry, len(res.Rejections))
	for i, r := range res.Rejections {
		entries[i] = audit.Entry{
			Timestamp: ts,
			UploadID:  res.UploadID,
			Line:      r.Line,
			Field:     r.Field,
			Reason:    r.Reason,
		}
	}
	if err := s.auditor.Append(entries); err != nil {
		logger := logging.FromContext(ctx)
		logger.Error().Err(err).Str("upload_id", res.UploadID).Msg("writing rejection audit")
	}
}
