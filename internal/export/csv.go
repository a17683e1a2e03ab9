package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/id"
	"github.com/cleared-dev/stmtimport/internal/model"
	"github.com/cleared-dev/stmtimport/internal/statement"
	"github.com/cleared-dev/stmtimport/internal/store"
)

// Header is the CSV header of a canonical row export.
const Header = "id,reservation,value_date,receiver,text,purpose,amount,currency,balance,tags"

// TagSeparator joins tags in the tags column.
const TagSeparator = '#'

const (
	numFields   = 10
	dateFormat  = "2006-01-02"
	colID       = 0
	colReserved = 1
	colValue    = 2
	colReceiver = 3
	colText     = 4
	colPurpose  = 5
	colAmount   = 6
	colCurrency = 7
	colBalance  = 8
	colTags     = 9
)

// ReadRows reads canonical rows, skipping the header.
func ReadRows(r io.Reader) ([]store.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading export CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rows []store.Row
	for i, rec := range records[1:] {
		row, err := UnmarshalRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteRows writes rows with a header.
func WriteRows(w io.Writer, rows []store.Row) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		if err := cw.Write(MarshalRow(row)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalRow converts a row to CSV fields. Numbers use their canonical
// decimal rendering, an absent balance is an empty field.
func MarshalRow(row store.Row) []string {
	t := row.Txn
	rec := make([]string, numFields)
	rec[colID] = row.ID.String()
	rec[colReserved] = t.Reservation.Format(dateFormat)
	rec[colValue] = t.ValueDate.Format(dateFormat)
	rec[colReceiver] = t.Receiver
	rec[colText] = t.Text
	rec[colPurpose] = t.Purpose
	rec[colAmount] = t.Amount.String()
	rec[colCurrency] = t.Currency
	if t.Balance.Valid {
		rec[colBalance] = t.Balance.Decimal.String()
	}
	rec[colTags] = strings.Join(t.Tags, string(TagSeparator))
	return rec
}

// UnmarshalRow converts CSV fields to a row.
func UnmarshalRow(rec []string) (store.Row, error) {
	if len(rec) != numFields {
		return store.Row{}, fmt.Errorf("expected %d fields, got %d", numFields, len(rec))
	}

	key, err := id.Parse(rec[colID])
	if err != nil {
		return store.Row{}, err
	}
	reservation, err := time.Parse(dateFormat, rec[colReserved])
	if err != nil {
		return store.Row{}, fmt.Errorf("parsing reservation %q: %w", rec[colReserved], err)
	}
	valueDate, err := time.Parse(dateFormat, rec[colValue])
	if err != nil {
		return store.Row{}, fmt.Errorf("parsing value_date %q: %w", rec[colValue], err)
	}
	amount, err := decimal.NewFromString(rec[colAmount])
	if err != nil {
		return store.Row{}, fmt.Errorf("parsing amount %q: %w", rec[colAmount], err)
	}

	var balance decimal.NullDecimal
	if rec[colBalance] != "" {
		d, err := decimal.NewFromString(rec[colBalance])
		if err != nil {
			return store.Row{}, fmt.Errorf("parsing balance %q: %w", rec[colBalance], err)
		}
		balance = decimal.NewNullDecimal(d)
	}

	return store.Row{
		ID: key,
		Txn: model.Transaction{
			Reservation: reservation,
			ValueDate:   valueDate,
			Receiver:    rec[colReceiver],
			Text:        rec[colText],
			Purpose:     rec[colPurpose],
			Amount:      amount,
			Currency:    rec[colCurrency],
			Balance:     balance,
			Tags:        statement.SplitTags(rec[colTags], TagSeparator),
		},
	}, nil
}
