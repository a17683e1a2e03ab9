package statement

import (
	"fmt"
	"sort"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Layout maps canonical fields to column indexes for one export dialect.
// A Layout is immutable once built.
type Layout struct {
	name    string
	width   int
	columns map[model.Field]int
}

// NewLayout builds a layout. Fields absent from columns are unmapped.
func NewLayout(name string, width int, columns map[model.Field]int) Layout {
	cp := make(map[model.Field]int, len(columns))
	for f, i := range columns {
		if i < 0 || i >= width {
			panic(fmt.Sprintf("layout %s: column %s index %d out of range", name, f, i))
		}
		cp[f] = i
	}
	return Layout{name: name, width: width, columns: cp}
}

// Name returns the dialect name.
func (l Layout) Name() string { return l.name }

// Width returns the record width the layout applies to.
func (l Layout) Width() int { return l.width }

// Index returns the column of f, or false when the dialect lacks it.
func (l Layout) Index(f model.Field) (int, bool) {
	i, ok := l.columns[f]
	return i, ok
}

// FullLayout is the 10-column export with tags and balance.
func FullLayout() Layout {
	return NewLayout("full", 10, map[model.Field]int{
		model.FieldReservation: 0,
		model.FieldValueDate:   1,
		model.FieldReceiver:    2,
		model.FieldText:        3,
		model.FieldTags:        4,
		model.FieldPurpose:     5,
		model.FieldBalance:     6,
		model.FieldCurrency:    7,
		model.FieldAmount:      8,
	})
}

// PartialLayout is the 9-column export without a tags column.
func PartialLayout() Layout {
	return NewLayout("partial", 9, map[model.Field]int{
		model.FieldReservation: 0,
		model.FieldValueDate:   1,
		model.FieldReceiver:    2,
		model.FieldText:        3,
		model.FieldPurpose:     4,
		model.FieldBalance:     5,
		model.FieldCurrency:    6,
		model.FieldAmount:      7,
	})
}

// Registry holds layouts keyed by record width.
type Registry struct {
	byWidth map[int]Layout
}

// NewRegistry creates an empty layout registry.
func NewRegistry() *Registry {
	return &Registry{byWidth: make(map[int]Layout)}
}

// Register adds a layout. Panics on duplicate width.
func (r *Registry) Register(l Layout) {
	if _, ok := r.byWidth[l.width]; ok {
		panic(fmt.Sprintf("duplicate layout width: %d", l.width))
	}
	r.byWidth[l.width] = l
}

// Get returns the layout for width.
func (r *Registry) Get(width int) (Layout, bool) {
	l, ok := r.byWidth[width]
	return l, ok
}

// Widths returns the registered widths in ascending order.
func (r *Registry) Widths() []int {
	widths := make([]int, 0, len(r.byWidth))
	for w := range r.byWidth {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	return widths
}

// DefaultRegistry returns a registry with the two known export dialects.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(FullLayout())
	r.Register(PartialLayout())
	return r
}

// Resolve picks the layout matching rec's width.
func (r *Registry) Resolve(rec Record) (Layout, error) {
	l, ok := r.byWidth[rec.Width()]
	if !ok {
		return Layout{}, &DialectError{Line: rec.Line, Width: rec.Width()}
	}
	return l, nil
}
