package statement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Validator turns records into transactions under one resolved layout.
type Validator struct {
	layout       Layout
	dateLayout   string
	tagDelimiter rune
}

// NewValidator creates a Validator for records of the given layout.
func NewValidator(layout Layout, opts Options) *Validator {
	dateLayout := opts.DateLayout
	if dateLayout == "" {
		dateLayout = DefaultDateLayout
	}
	tagDelim := opts.TagDelimiter
	if tagDelim == 0 {
		tagDelim = DefaultTagDelimiter
	}
	return &Validator{layout: layout, dateLayout: dateLayout, tagDelimiter: tagDelim}
}

// Layout returns the layout records are validated against.
func (v *Validator) Layout() Layout {
	return v.layout
}

// Validate returns the typed row, or the first reason the record is unusable.
// Mandatory fields are checked in model.MandatoryFields order; the returned
// error is a *FieldError for field failures and wraps ErrMalformed or
// ErrWidth for record-level failures.
func (v *Validator) Validate(rec Record) (model.Transaction, error) {
	if rec.Err != nil {
		return model.Transaction{}, rec.Err
	}
	if len(rec.Fields) != v.layout.width {
		return model.Transaction{}, fmt.Errorf("%w: got %d fields, want %d (%s)",
			ErrWidth, len(rec.Fields), v.layout.width, v.layout.name)
	}

	var txn model.Transaction
	var err error

	if txn.Reservation, err = v.date(rec, model.FieldReservation); err != nil {
		return model.Transaction{}, err
	}
	if txn.ValueDate, err = v.date(rec, model.FieldValueDate); err != nil {
		return model.Transaction{}, err
	}
	if txn.Receiver, err = v.text(rec, model.FieldReceiver); err != nil {
		return model.Transaction{}, err
	}
	if txn.Text, err = v.text(rec, model.FieldText); err != nil {
		return model.Transaction{}, err
	}
	if txn.Purpose, err = v.text(rec, model.FieldPurpose); err != nil {
		return model.Transaction{}, err
	}
	if txn.Amount, err = v.amount(rec); err != nil {
		return model.Transaction{}, err
	}
	if txn.Currency, err = v.text(rec, model.FieldCurrency); err != nil {
		return model.Transaction{}, err
	}
	if txn.Balance, err = v.balance(rec); err != nil {
		return model.Transaction{}, err
	}
	txn.Tags = v.tags(rec)

	return txn, nil
}

func (v *Validator) raw(rec Record, f model.Field) (string, bool) {
	i, ok := v.layout.Index(f)
	if !ok || i >= len(rec.Fields) {
		return "", false
	}
	return rec.Fields[i], true
}

func (v *Validator) text(rec Record, f model.Field) (string, error) {
	s, ok := v.raw(rec, f)
	if !ok {
		return "", &FieldError{Field: f, Err: ErrMissing}
	}
	return s, nil
}

func (v *Validator) date(rec Record, f model.Field) (time.Time, error) {
	s, err := v.text(rec, f)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseDate(s, v.dateLayout)
	if err != nil {
		return time.Time{}, &FieldError{Field: f, Value: s, Err: err}
	}
	return t, nil
}

func (v *Validator) amount(rec Record) (decimal.Decimal, error) {
	s, err := v.text(rec, model.FieldAmount)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.Decimal{}, &FieldError{Field: model.FieldAmount, Value: s, Err: err}
	}
	return d, nil
}

// balance is optional: an unmapped or empty column is absent, but a value
// that is present must parse.
func (v *Validator) balance(rec Record) (decimal.NullDecimal, error) {
	s, ok := v.raw(rec, model.FieldBalance)
	if !ok || s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return decimal.NullDecimal{}, &FieldError{Field: model.FieldBalance, Value: s, Err: err}
	}
	return decimal.NewNullDecimal(d), nil
}

func (v *Validator) tags(rec Record) []string {
	s, _ := v.raw(rec, model.FieldTags)
	return SplitTags(s, v.tagDelimiter)
}
