package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/cleared-dev/stmtimport/internal/audit"
	"github.com/cleared-dev/stmtimport/internal/id"
	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/model"
	"github.com/cleared-dev/stmtimport/internal/statement"
	"github.com/cleared-dev/stmtimport/internal/store"
)

const (
	fullHeader    = "Buchungstag;Valuta;Auftraggeber/Empfänger;Buchungstext;Tags;Verwendungszweck;Saldo;Währung;Betrag;"
	partialHeader = "Buchungstag;Valuta;Auftraggeber/Empfänger;Buchungstext;Verwendungszweck;Saldo;Währung;Betrag;"

	rowPower  = "05.03.2021;06.03.2021;Stadtwerke;Lastschrift;Utilities#;Strom 03/2021;1.234,56;EUR;-84,20;"
	rowBakery = "07.03.2021;07.03.2021;Bäckerei Müller;Kartenzahlung;;Brötchen;1.230,06;EUR;-4,50;"
	rowRent   = "08.03.2021;08.03.2021;Miete GmbH;Dauerauftrag;Rent#;Miete März;230,06;EUR;;"
)

var fixedTime = time.Date(2021, 3, 9, 12, 0, 0, 0, time.UTC)

// payload renders lines after a default-length preamble in Windows-1252.
func payload(t *testing.T, lines ...string) []byte {
	t.Helper()
	var b strings.Builder
	for i := 0; i < statement.DefaultPreambleLines; i++ {
		fmt.Fprintf(&b, "Umsatzanzeige;Zeile %d\n", i+1)
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	out, err := charmap.Windows1252.NewEncoder().String(b.String())
	require.NoError(t, err)
	return []byte(out)
}

type recordingAuditor struct {
	entries []audit.Entry
	err     error
}

func (r *recordingAuditor) Append(entries []audit.Entry) error {
	r.entries = append(r.entries, entries...)
	return r.err
}

type brokenStore struct {
	calls int
}

func (b *brokenStore) EnsureSchema(context.Context) error { return nil }

func (b *brokenStore) Upsert(context.Context, []store.Row) (int64, error) {
	b.calls++
	return 0, errors.New("connection refused")
}

func (b *brokenStore) Close() error { return nil }

func newTestService(st store.Store, opts statement.Options, auditor Auditor) *Service {
	s := NewService(st, opts, auditor)
	s.now = func() time.Time { return fixedTime }
	s.newID = func() string { return "upload-1" }
	return s
}

func TestIngest_PartialAcceptance(t *testing.T) {
	mem := store.NewMemory()
	aud := &recordingAuditor{}
	svc := newTestService(mem, statement.DefaultOptions(), aud)

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower, rowBakery, rowRent))
	require.NoError(t, err)

	assert.Equal(t, "upload-1", res.UploadID)
	assert.Equal(t, "full", res.Dialect)
	assert.Equal(t, 3, res.RowsTotal)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 0, res.Duplicates)
	assert.EqualValues(t, 2, res.Upserted)

	require.Len(t, res.Rejections, 1)
	rej := res.Rejections[0]
	assert.Equal(t, 16, rej.Line)
	assert.Equal(t, string(model.FieldAmount), rej.Field)
	assert.ErrorIs(t, rej.Err, statement.ErrFieldParse)

	require.Len(t, res.Rows, 2)
	assert.NotEqual(t, res.Rows[0].ID, res.Rows[1].ID)
	assert.Equal(t, "Bäckerei Müller", res.Rows[1].Txn.Receiver)
	assert.Equal(t, "Brötchen", res.Rows[1].Txn.Purpose)

	assert.Equal(t, 2, mem.Len())
	assert.Equal(t, 1, mem.Calls(), "one bulk write per batch")

	require.Len(t, aud.entries, 1)
	assert.Equal(t, audit.Entry{
		Timestamp: fixedTime,
		UploadID:  "upload-1",
		Line:      16,
		Field:     "AMOUNT",
		Reason:    rej.Reason,
	}, aud.entries[0])
}

func TestIngest_DuplicateRowsCollapse(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)
	retagged := strings.Replace(rowPower, "Utilities#", "Utilities#Monthly", 1)

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower, rowBakery, retagged))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Accepted)
	assert.Equal(t, 1, res.Duplicates)
	assert.EqualValues(t, 2, res.Upserted)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Stadtwerke", res.Rows[0].Txn.Receiver, "first position kept")
	assert.Equal(t, []string{"Utilities", "Monthly"}, res.Rows[0].Txn.Tags, "last tags win")

	got, ok := mem.Get(res.Rows[0].ID)
	require.True(t, ok)
	assert.Equal(t, []string{"Utilities", "Monthly"}, got.Tags)
}

func TestIngest_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)
	raw := payload(t, fullHeader, rowPower, rowBakery)

	first, err := svc.Ingest(context.Background(), raw)
	require.NoError(t, err)
	before := mem.Rows()

	second, err := svc.Ingest(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, before, mem.Rows())
	assert.Equal(t, 2, mem.Len())
	for i := range first.Rows {
		assert.Equal(t, first.Rows[i].ID, second.Rows[i].ID)
	}
}

func TestIngest_ReingestWithEditedTags(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	first, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower))
	require.NoError(t, err)

	edited := strings.Replace(rowPower, "Utilities#", "Energy#Household", 1)
	second, err := svc.Ingest(context.Background(), payload(t, fullHeader, edited))
	require.NoError(t, err)

	require.Equal(t, first.Rows[0].ID, second.Rows[0].ID)
	got, _ := mem.Get(first.Rows[0].ID)
	assert.Equal(t, []string{"Energy", "Household"}, got.Tags)
	assert.Equal(t, 1, mem.Len())
}

func TestIngest_PartialLayout(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)
	row := "05.03.2021;06.03.2021;Stadtwerke;Lastschrift;Strom 03/2021;1.234,56;EUR;-84,20;"

	res, err := svc.Ingest(context.Background(), payload(t, partialHeader, row))
	require.NoError(t, err)
	assert.Equal(t, "partial", res.Dialect)
	require.Len(t, res.Rows, 1)

	txn := res.Rows[0].Txn
	assert.Empty(t, txn.Tags)
	assert.Equal(t, "-84.2", txn.Amount.String())
	assert.Equal(t, "1234.56", txn.Balance.Decimal.String())
}

func TestIngest_SameRowSameIDAcrossDialects(t *testing.T) {
	full, err := newTestService(store.NewMemory(), statement.DefaultOptions(), nil).
		Ingest(context.Background(), payload(t, fullHeader, rowPower))
	require.NoError(t, err)

	row := "05.03.2021;06.03.2021;Stadtwerke;Lastschrift;Strom 03/2021;1.234,56;EUR;-84,20;"
	partial, err := newTestService(store.NewMemory(), statement.DefaultOptions(), nil).
		Ingest(context.Background(), payload(t, partialHeader, row))
	require.NoError(t, err)

	assert.Equal(t, full.Rows[0].ID, partial.Rows[0].ID)
}

func TestIngest_UnresolvableDialect(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	_, err := svc.Ingest(context.Background(), payload(t, "Buchungstag;Valuta;Betrag", rowPower))
	require.Error(t, err)
	assert.ErrorIs(t, err, statement.ErrDialect)

	var derr *statement.DialectError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 3, derr.Width)
	assert.Equal(t, 13, derr.Line)
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(err))
	assert.Zero(t, mem.Calls())
}

func TestIngest_ShortPayload(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	res, err := svc.Ingest(context.Background(), []byte("Umsatzanzeige\nKonto;123\n"))
	require.NoError(t, err)
	assert.Zero(t, res.RowsTotal)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rejections)
	assert.Zero(t, mem.Calls())
}

func TestIngest_HeaderOnly(t *testing.T) {
	mem := store.NewMemory()
	res, err := newTestService(mem, statement.DefaultOptions(), nil).
		Ingest(context.Background(), payload(t, fullHeader))
	require.NoError(t, err)
	assert.Equal(t, "full", res.Dialect)
	assert.Zero(t, res.RowsTotal)
	assert.Zero(t, mem.Calls())
}

func TestIngest_StorageFailure(t *testing.T) {
	broken := &brokenStore{}
	aud := &recordingAuditor{}
	svc := newTestService(broken, statement.DefaultOptions(), aud)

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower, rowRent))
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(err))
	assert.Equal(t, 1, broken.calls)
	assert.Len(t, aud.entries, 1, "rejections are audited before the write")
}

func TestIngest_RowLevelFailuresDoNotFailBatch(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	short := "09.03.2021;09.03.2021;Kiosk;Kartenzahlung;;Zeitung;EUR;-2,00;"
	bareQuote := `10.03.2021;10.03.2021;Kiosk "Am Eck";Kartenzahlung;;Zeitung;228,06;EUR;-2,00;`
	badDate := "2021-03-11;11.03.2021;Kiosk;Kartenzahlung;;Zeitung;226,06;EUR;-2,00;"

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, short, bareQuote, badDate, rowBakery))
	require.NoError(t, err)

	assert.Equal(t, 4, res.RowsTotal)
	assert.Equal(t, 2, res.Accepted)
	require.Equal(t, 2, res.Rejected)

	assert.ErrorIs(t, res.Rejections[0].Err, statement.ErrWidth)
	assert.Empty(t, res.Rejections[0].Field)
	assert.Equal(t, 14, res.Rejections[0].Line)

	assert.Equal(t, string(model.FieldReservation), res.Rejections[1].Field)
	assert.Equal(t, 16, res.Rejections[1].Line)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, `Kiosk "Am Eck"`, res.Rows[0].Txn.Receiver)
	assert.Equal(t, 2, mem.Len())
}

func TestIngest_QuotesInFields(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	cafe := `09.03.2021;09.03.2021;Cafe "Zur Post" GmbH;Kartenzahlung;;Kaffee;1.225,56;EUR;-4,50;`
	cable := `10.03.2021;10.03.2021;Elektro Meier;Kartenzahlung;;12" Kabel;1.215,56;EUR;-10,00;`

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower, cafe, cable))
	require.NoError(t, err)
	assert.Equal(t, 3, res.RowsTotal)
	assert.Equal(t, 3, res.Accepted)
	assert.Equal(t, 0, res.Rejected)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, `Cafe "Zur Post" GmbH`, res.Rows[1].Txn.Receiver)
	assert.Equal(t, `12" Kabel`, res.Rows[2].Txn.Purpose)
}

func TestIngest_UnterminatedQuoteSwallowsLaterLines(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	open := `"Cafe;09.03.2021;Zur Post;Kartenzahlung;;Kaffee;1.225,56;EUR;-4,50;`

	res, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowPower, open, rowBakery, rowRent))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsTotal, "one record from the open quote to the end")
	assert.Equal(t, 1, res.Accepted)
	require.Equal(t, 1, res.Rejected)
	assert.Equal(t, 15, res.Rejections[0].Line)
	assert.ErrorIs(t, res.Rejections[0].Err, statement.ErrWidth)
	assert.Equal(t, 1, mem.Len())
}

func TestIngest_AuditFailureIsNotFatal(t *testing.T) {
	aud := &recordingAuditor{err: errors.New("disk full")}
	svc := newTestService(store.NewMemory(), statement.DefaultOptions(), aud)

	buf := &bytes.Buffer{}
	logger, err := logging.NewWithWriter(buf, "info")
	require.NoError(t, err)
	ctx := logging.WithContext(context.Background(), logger)

	res, err := svc.Ingest(ctx, payload(t, fullHeader, rowPower, rowRent))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.EqualValues(t, 1, res.Upserted)

	out := buf.String()
	assert.Contains(t, out, "writing rejection audit")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, `"level":"error"`)
}

func TestIngest_WritesAuditFile(t *testing.T) {
	log := audit.NewLog(filepath.Join(t.TempDir(), "logs", "rejections.csv"))
	svc := newTestService(store.NewMemory(), statement.DefaultOptions(), log)

	_, err := svc.Ingest(context.Background(), payload(t, fullHeader, rowRent))
	require.NoError(t, err)

	entries, err := log.Read()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "upload-1", entries[0].UploadID)
	assert.Equal(t, "AMOUNT", entries[0].Field)
}

func TestAssemble_WithoutHeader(t *testing.T) {
	opts := statement.DefaultOptions()
	opts.HasHeader = false
	svc := newTestService(store.NewMemory(), opts, nil)

	res, err := svc.Assemble(context.Background(), payload(t, rowPower, rowBakery))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsTotal)
	assert.Equal(t, 2, res.Accepted)
	assert.Zero(t, res.Upserted)
}

func TestAssemble_ElevenLinePreamble(t *testing.T) {
	opts := statement.DefaultOptions()
	opts.PreambleLines = 11
	svc := newTestService(store.NewMemory(), opts, nil)

	raw := payload(t, fullHeader, rowPower)
	// Drop the first preamble line to simulate the older export.
	raw = raw[strings.IndexByte(string(raw), '\n')+1:]

	res, err := svc.Assemble(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, id.Compute(res.Rows[0].Txn), res.Rows[0].ID)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"transport", fmt.Errorf("%w: bad token", ErrTransport), http.StatusBadRequest},
		{"dialect", &statement.DialectError{Line: 13, Width: 4}, http.StatusUnprocessableEntity},
		{"storage", &StorageError{Err: errors.New("down")}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.name)
	}
}

func TestLoad_StoresExportedRows(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	dry, err := svc.Assemble(context.Background(), payload(t, fullHeader, rowPower, rowBakery))
	require.NoError(t, err)
	require.Len(t, dry.Rows, 2)
	assert.Equal(t, 0, mem.Calls(), "assemble does not write")

	rows := append([]store.Row(nil), dry.Rows...)
	rows[1].Txn.Tags = []string{"Food"}

	res, err := svc.Load(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, DialectExport, res.Dialect)
	assert.Equal(t, 2, res.RowsTotal)
	assert.Equal(t, 2, res.Accepted)
	assert.EqualValues(t, 2, res.Upserted)

	got, ok := mem.Get(rows[1].ID)
	require.True(t, ok)
	assert.Equal(t, []string{"Food"}, got.Tags)
}

func TestLoad_RejectsEditedImmutableFields(t *testing.T) {
	mem := store.NewMemory()
	aud := &recordingAuditor{}
	svc := newTestService(mem, statement.DefaultOptions(), aud)

	dry, err := svc.Assemble(context.Background(), payload(t, fullHeader, rowPower, rowBakery))
	require.NoError(t, err)

	rows := append([]store.Row(nil), dry.Rows...)
	rows[0].Txn.Receiver = "Stadtwerke Nord"

	res, err := svc.Load(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	require.Equal(t, 1, res.Rejected)
	assert.Equal(t, 2, res.Rejections[0].Line)
	assert.ErrorIs(t, res.Rejections[0].Err, ErrIDMismatch)
	assert.Equal(t, 1, mem.Len())
	assert.Len(t, aud.entries, 1)
}

func TestLoad_CollapsesDuplicates(t *testing.T) {
	mem := store.NewMemory()
	svc := newTestService(mem, statement.DefaultOptions(), nil)

	dry, err := svc.Assemble(context.Background(), payload(t, fullHeader, rowPower))
	require.NoError(t, err)
	again := dry.Rows[0]
	again.Txn.Tags = []string{"Energy"}

	res, err := svc.Load(context.Background(), []store.Row{dry.Rows[0], again})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.EqualValues(t, 1, res.Upserted)
	got, ok := mem.Get(again.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"Energy"}, got.Tags)
}
