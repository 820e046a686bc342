package pricing

import (
	"slices"
	"sync"
)

// ledger is the shared row arena behind a family of sheets. Sheets are views
// of a prefix of the arena; appending to the longest view extends the arena in
// place, appending to a shorter view forks a new arena.
type ledger struct {
	mu   sync.Mutex
	rows []Row
}

// Sheet is an immutable, ordered view of calculation rows in one currency.
// Every mutation returns a new sheet that shares its prefix with the receiver.
type Sheet struct {
	taxonomy Taxonomy
	currency string
	quantity int
	rows     []Row
	arena    *ledger
}

// DiscountPrice is the amount a single discount contributed to a sheet.
type DiscountPrice struct {
	DiscountID string `json:"discountId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// TotalOptions scopes Sheet.Total.
type TotalOptions struct {
	Category    Category
	DiscountID  string
	UseNetPrice bool
}

// NewSheet builds a sheet for the given taxonomy seeded with rows. It doubles
// as the read-time factory for persisted calculations.
func NewSheet(t Taxonomy, currency string, quantity int, rows ...Row) *Sheet {
	s := &Sheet{taxonomy: t, currency: currency, quantity: quantity, arena: &ledger{}}
	return s.Append(rows...)
}

// Append returns a sheet with rows added after the receiver's rows. Rows
// without a currency are stamped with the sheet currency.
func (s *Sheet) Append(rows ...Row) *Sheet {
	if len(rows) == 0 {
		return s
	}
	stamped := make([]Row, len(rows))
	for i, r := range rows {
		r = r.clone()
		if r.Currency == "" {
			r.Currency = s.currency
		}
		stamped[i] = r
	}

	a := s.arena
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rows) == len(s.rows) {
		a.rows = append(a.rows, stamped...)
		return s.view(a, a.rows)
	}
	forked := &ledger{rows: append(slices.Clone(s.rows), stamped...)}
	return s.view(forked, forked.rows)
}

func (s *Sheet) view(a *ledger, rows []Row) *Sheet {
	n := len(rows)
	return &Sheet{
		taxonomy: s.taxonomy,
		currency: s.currency,
		quantity: s.quantity,
		rows:     rows[:n:n],
		arena:    a,
	}
}

// Empty returns a sheet with the same taxonomy, currency and quantity but no rows.
func (s *Sheet) Empty() *Sheet {
	return NewSheet(s.taxonomy, s.currency, s.quantity)
}

// Taxonomy returns the category names the sheet was built with.
func (s *Sheet) Taxonomy() Taxonomy { return s.taxonomy }

// Currency returns the sheet currency code.
func (s *Sheet) Currency() string { return s.currency }

// Quantity returns the quantity the sheet was priced for (0 when not applicable).
func (s *Sheet) Quantity() int { return s.quantity }

// Len returns the number of rows.
func (s *Sheet) Len() int { return len(s.rows) }

// Raw returns a copy of the full row sequence for persistence or audit.
func (s *Sheet) Raw() []Row {
	out := make([]Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.clone()
	}
	return out
}

// FilterBy returns the rows matching f in sheet order.
func (s *Sheet) FilterBy(f Filter) []Row {
	var out []Row
	for _, r := range s.rows {
		if f.Match(r) {
			out = append(out, r.clone())
		}
	}
	return out
}

// IsValid reports whether the sheet holds at least one row and every row is
// denominated in the sheet currency.
func (s *Sheet) IsValid() bool {
	if s.currency == "" || len(s.rows) == 0 {
		return false
	}
	for _, r := range s.rows {
		if r.Currency != s.currency {
			return false
		}
	}
	return true
}

// Sum returns the signed sum of rows matching f.
func (s *Sheet) Sum(f Filter) int64 {
	var total int64
	for _, r := range s.rows {
		if f.Match(r) {
			total += r.Amount
		}
	}
	return total
}

// TaxSum returns the sum of tax rows matching f. The category of f is ignored.
func (s *Sheet) TaxSum(f Filter) int64 {
	f.Category = s.taxonomy.Tax
	return s.Sum(f)
}

// Net returns the sum of all non-tax rows.
func (s *Sheet) Net() int64 {
	var total int64
	for _, r := range s.rows {
		if r.Category != s.taxonomy.Tax {
			total += r.Amount
		}
	}
	return total
}

// Gross returns Net plus all taxes.
func (s *Sheet) Gross() int64 {
	return s.Net() + s.TaxSum(Filter{})
}

// Total returns a category-scoped signed sum. Without a category the whole
// sheet is summed. For a non-tax category the gross total also includes tax
// rows derived from that category.
func (s *Sheet) Total(o TotalOptions) Money {
	tax := s.taxonomy.Tax
	var amount int64
	switch o.Category {
	case "":
		for _, r := range s.rows {
			if o.DiscountID != "" && r.DiscountID != o.DiscountID {
				continue
			}
			if o.UseNetPrice && r.Category == tax {
				continue
			}
			amount += r.Amount
		}
	case tax:
		amount = s.Sum(Filter{Category: tax, DiscountID: o.DiscountID})
	default:
		amount = s.Sum(Filter{Category: o.Category, DiscountID: o.DiscountID})
		if !o.UseNetPrice {
			amount += s.Sum(Filter{Category: tax, BaseCategory: o.Category, DiscountID: o.DiscountID})
		}
	}
	return Money{Amount: amount, Currency: s.currency}
}

// ResetCalculation returns the row-by-row inverse of other. Appending the
// result and other's rows to one ledger nets every category to zero.
func (s *Sheet) ResetCalculation(other *Sheet) []Row {
	if other == nil {
		return nil
	}
	out := make([]Row, len(other.rows))
	for i, r := range other.rows {
		out[i] = r.Inverse()
	}
	return out
}

// DiscountPrices groups discount rows by discount id in first-seen order.
// An empty discountID returns every discount present.
func (s *Sheet) DiscountPrices(discountID string) []DiscountPrice {
	var (
		order  []string
		totals = map[string]int64{}
	)
	for _, r := range s.rows {
		if r.Category != s.taxonomy.Discount || r.DiscountID == "" {
			continue
		}
		if discountID != "" && r.DiscountID != discountID {
			continue
		}
		if _, seen := totals[r.DiscountID]; !seen {
			order = append(order, r.DiscountID)
		}
		totals[r.DiscountID] += r.Amount
	}
	out := make([]DiscountPrice, 0, len(order))
	for _, id := range order {
		out = append(out, DiscountPrice{DiscountID: id, Amount: totals[id], Currency: s.currency})
	}
	return out
}

// WithDiscount returns a sheet with a discount row for discountID appended.
// The stored amount is always negative.
func (s *Sheet) WithDiscount(amount int64, discountID string, meta Meta) *Sheet {
	return s.Append(Row{
		Category:   s.taxonomy.Discount,
		Amount:     -abs(amount),
		DiscountID: discountID,
		Meta:       meta,
	})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
