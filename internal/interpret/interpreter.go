package interpret

import (
	"context"
	"fmt"
	"time"

	"kaipiao/agent/internal/receipt"
)

// Reason classifies the outcome of one interpretation.
type Reason string

const (
	ReasonCreated      Reason = "created"
	ReasonUpdated      Reason = "updated"
	ReasonUnrecognized Reason = "unrecognized"
)

// Result is the full outcome of interpreting one utterance. When
// Changed is false, Draft is value-identical to the input draft.
type Result struct {
	Draft   receipt.Draft
	Changed bool
	Reason  Reason
	Notes   []string
}

// Catalog resolves unit prices for spoken product names. Used only by
// the creation directive.
type Catalog interface {
	PriceOf(name string) (float64, bool)
}

// RuleInterpreter is the deterministic rule-based command interpreter.
// It is total: any utterance yields a Result, never an error. Directive
// classes are tried in order — creation, modification — and the first
// match wins.
type RuleInterpreter struct {
	catalog Catalog
}

func New(catalog Catalog) *RuleInterpreter {
	return &RuleInterpreter{catalog: catalog}
}

func (r *RuleInterpreter) Interpret(ctx context.Context, utterance string, current receipt.Draft) (Result, error) {
	start := time.Now()
	res := r.interpret(utterance, current)
	metricDirectives.WithLabelValues(string(res.Reason)).Inc()
	metricInterpretLatency.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	return res, nil
}

func (r *RuleInterpreter) interpret(utterance string, current receipt.Draft) Result {
	if res, ok := r.tryCreation(utterance, current); ok {
		return res
	}
	if res, ok := r.tryModification(utterance, current); ok {
		return res
	}
	return Result{Draft: current, Changed: false, Reason: ReasonUnrecognized}
}

// tryCreation builds a fresh draft from scratch. It applies when the
// current draft is still empty, or when the utterance explicitly names
// a customer and at least one quantity+product pair (a restart).
func (r *RuleInterpreter) tryCreation(utterance string, current receipt.Draft) (Result, bool) {
	customer := extractCustomer(utterance)
	carrier := extractCarrier(utterance)
	pairs := extractPairs(utterance)

	eligible := current.Empty() || (customer != "" && len(pairs) > 0)
	if !eligible {
		return Result{}, false
	}
	if customer == "" && len(pairs) == 0 {
		// Nothing creatable in the utterance; let later rules decide.
		return Result{}, false
	}

	draft := receipt.Draft{
		CustomerName: customer,
		Logistics:    carrier,
		Date:         current.Date,
	}
	if draft.Date == "" {
		draft.Date = time.Now().Format("2006-01-02")
	}

	var notes []string
	for _, p := range pairs {
		item := receipt.LineItem{ProductName: p.product, Quantity: p.quantity}
		if price, ok := r.lookupPrice(p.product); ok {
			item.UnitPrice = price
		} else {
			item.PriceMissing = true
			notes = append(notes, fmt.Sprintf("%s 暂无单价，已按 0 计，请补充价格", p.product))
		}
		draft.Items = append(draft.Items, item)
	}

	return Result{
		Draft:   receipt.Recompute(draft),
		Changed: true,
		Reason:  ReasonCreated,
		Notes:   notes,
	}, true
}

// tryModification edits the current draft in place of a full rebuild.
// Requires an edit keyword; the quantity and customer sub-rules are
// independent and may both fire on one utterance.
func (r *RuleInterpreter) tryModification(utterance string, current receipt.Draft) (Result, bool) {
	if !hasEditKeyword(utterance) {
		return Result{}, false
	}

	draft := current.Clone()
	changed := false

	if applyQuantityEdits(utterance, &draft) {
		changed = true
	}
	if name, ok := extractCustomerEdit(utterance); ok {
		draft.CustomerName = name
		changed = true
	}

	if !changed {
		return Result{Draft: current, Changed: false, Reason: ReasonUnrecognized}, true
	}
	return Result{
		Draft:   receipt.Recompute(draft),
		Changed: true,
		Reason:  ReasonUpdated,
	}, true
}

func (r *RuleInterpreter) lookupPrice(name string) (float64, bool) {
	if r.catalog == nil {
		return 0, false
	}
	return r.catalog.PriceOf(name)
}
