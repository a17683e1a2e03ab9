package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Field names a canonical statement column.
type Field string

const (
	FieldReservation Field = "RESERVATION"
	FieldValueDate   Field = "VALUE_DATE"
	FieldReceiver    Field = "RECEIVER"
	FieldText        Field = "TEXT"
	FieldTags        Field = "TAGS"
	FieldPurpose     Field = "PURPOSE"
	FieldBalance     Field = "BALANCE"
	FieldCurrency    Field = "CURRENCY"
	FieldAmount      Field = "AMOUNT"
)

// MandatoryFields lists the columns every row must carry, in validation order.
var MandatoryFields = []Field{
	FieldReservation,
	FieldValueDate,
	FieldReceiver,
	FieldText,
	FieldPurpose,
	FieldAmount,
	FieldCurrency,
}

// Transaction is one validated, typed statement row.
type Transaction struct {
	Reservation time.Time
	ValueDate   time.Time
	Receiver    string
	Text        string
	Purpose     string
	Amount      decimal.Decimal // negative = debit
	Currency    string
	Balance     decimal.NullDecimal // running balance, absent in some exports
	Tags        []string            // mutable, never part of the identity
}

// HasBalance reports whether the export carried a running balance.
func (t Transaction) HasBalance() bool {
	return t.Balance.Valid
}
