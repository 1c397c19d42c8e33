// Package orders holds the pure order logic of the bot: parsing model output
// into item proposals, folding proposals into a draft, recognising the client's
// confirmation and rendering drafts back into chat text.
package orders

import "time"

// ItemProposal is one (code, quantity) pair proposed by the extractor for a turn.
// Quantity is either empty ("mentioned, no quantity") or a non-negative integer.
type ItemProposal struct {
	Code     string
	Quantity string
}

// Line is one entry of a Draft. Ambiguous lines carry no quantity and must not
// be treated as ordered.
type Line struct {
	Code      string `json:"code"`
	Quantity  int    `json:"quantity"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
}

// Draft is the merged result of a proposal sequence, in first-appearance order.
type Draft struct {
	Lines []Line
}

// Empty reports whether the draft has no lines at all.
func (d Draft) Empty() bool {
	return len(d.Lines) == 0
}

// Resolved returns the lines with a quantity.
func (d Draft) Resolved() []Line {
	out := make([]Line, 0, len(d.Lines))
	for _, l := range d.Lines {
		if !l.Ambiguous {
			out = append(out, l)
		}
	}
	return out
}

// AmbiguousCodes returns the codes mentioned without a quantity.
func (d Draft) AmbiguousCodes() []string {
	var out []string
	for _, l := range d.Lines {
		if l.Ambiguous {
			out = append(out, l.Code)
		}
	}
	return out
}

// Quantity returns the ordered quantity for code. ok is false for unknown or
// ambiguous codes.
func (d Draft) Quantity(code string) (qty int, ok bool) {
	for _, l := range d.Lines {
		if l.Code == code && !l.Ambiguous {
			return l.Quantity, true
		}
	}
	return 0, false
}

// Order is a confirmed draft bound to the client that confirmed it.
type Order struct {
	ClientCode  string
	ClientName  string
	ClientPhone string
	Lines       []Line
	ConfirmedAt time.Time
}

// TotalUnits sums the quantities of all lines.
func (o Order) TotalUnits() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}
