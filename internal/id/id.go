package id

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// canonicalDate is the date rendering fed into the hash; it is independent
// of the statement's own date layout.
const canonicalDate = "2006-01-02"

// absentBalance marks a row without running balance. It can never collide
// with a rendered decimal.
const absentBalance = "~"

// TransactionID is the deduplication and upsert key of a statement row.
type TransactionID int64

// String renders the identifier in base 10.
func (id TransactionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Compute derives the identifier from the immutable fields of t.
//
// The digest is XXH64 (seed 0) over length-prefixed canonical renderings of
// reservation, value date, receiver, text, purpose, amount, currency and
// balance. Tags are left out: they are edited after ingestion and must not
// change the key. The unsigned sum is reinterpreted as int64.
func Compute(t model.Transaction) TransactionID {
	d := xxhash.New()
	writeField(d, t.Reservation.Format(canonicalDate))
	writeField(d, t.ValueDate.Format(canonicalDate))
	writeField(d, t.Receiver)
	writeField(d, t.Text)
	writeField(d, t.Purpose)
	writeField(d, t.Amount.String())
	writeField(d, t.Currency)
	if t.Balance.Valid {
		writeField(d, t.Balance.Decimal.String())
	} else {
		writeField(d, absentBalance)
	}
	return TransactionID(int64(d.Sum64()))
}

func writeField(d *xxhash.Digest, s string) {
	_, _ = d.WriteString(strconv.Itoa(len(s)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s)
}

// Parse reads an identifier rendered by String.
func Parse(s string) (TransactionID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid transaction ID %q: %w", s, err)
	}
	return TransactionID(v), nil
}
