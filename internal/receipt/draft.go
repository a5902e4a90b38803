package receipt

import (
	"math"
	"time"
)

// LineItem is one product row on a draft. Amount is always derived from
// Quantity and UnitPrice; it is never authoritative on its own.
type LineItem struct {
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Amount       float64 `json:"amount"`
	PriceMissing bool    `json:"price_missing,omitempty"`
}

// Draft is the in-progress receipt being built across a conversation.
// It is a value type: every mutation produces a new Draft, historical
// snapshots are never patched in place.
type Draft struct {
	CustomerName string     `json:"customer_name"`
	Items        []LineItem `json:"items"`
	Logistics    string     `json:"logistics"`
	TotalAmount  float64    `json:"total_amount"`
	Date         string     `json:"date"`
}

// NewDraft returns an empty draft dated today.
func NewDraft() Draft {
	return Draft{Date: time.Now().Format("2006-01-02")}
}

// Empty reports whether the draft carries neither customer nor items.
func (d Draft) Empty() bool {
	return d.CustomerName == "" && len(d.Items) == 0
}

// Clone returns a deep copy so callers can mutate freely without
// touching transcript snapshots.
func (d Draft) Clone() Draft {
	out := d
	if d.Items != nil {
		out.Items = make([]LineItem, len(d.Items))
		copy(out.Items, d.Items)
	}
	return out
}

// Recompute derives every Amount and the TotalAmount from quantities
// and unit prices. Pure and idempotent; the input draft is untouched.
func Recompute(d Draft) Draft {
	out := d.Clone()
	var total float64
	for i := range out.Items {
		out.Items[i].Amount = round2(float64(out.Items[i].Quantity) * out.Items[i].UnitPrice)
		total += out.Items[i].Amount
	}
	out.TotalAmount = round2(total)
	return out
}

// round2 rounds half-up to two fraction digits, matching currency display.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
