package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseDate parses s with the Go time layout.
func ParseDate(s, layout string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// ParseDecimal parses a European formatted number ("1.234,56").
//
// Every '.' is dropped as a thousands separator and ',' becomes the decimal
// point. Input already using '.' as decimal point is misread; callers must
// stick to the European convention.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("parsing decimal: empty value")
	}
	norm := strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing decimal %q: %w", s, err)
	}
	return d, nil
}

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// SplitTags splits a tag column on delim. CR and LF are removed from every
// tag and empty tags are dropped; order is kept. The result is never nil.
func SplitTags(s string, delim rune) []string {
	tags := []string{}
	if s == "" {
		return tags
	}
	for _, tok := range strings.Split(s, string(delim)) {
		tok = lineBreaks.Replace(tok)
		if tok == "" {
			continue
		}
		tags = append(tags, tok)
	}
	return tags
}
