package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	// FreeShippingThreshold applies to the post-discount subtotal.
	FreeShippingThreshold = decimal.NewFromInt(100)
	// ShippingFee is charged below the threshold on a non-empty cart.
	ShippingFee = decimal.NewFromInt(10)
	// TaxRate is applied to the post-discount subtotal.
	TaxRate = decimal.RequireFromString("0.05")
)

// Line is the minimal view of a cart line the engine needs.
type Line struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Total returns price × quantity.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Breakdown is the derived price summary shown at cart and checkout.
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeBreakdown prices the given lines with an optional coupon.
//
// Every intermediate amount is rounded to cents before it feeds the next step:
// discount, then tax on the rounded post-discount subtotal, then the total.
// This can differ by a cent from rounding only at the end.
func ComputeBreakdown(lines []Line, coupon *Coupon) Breakdown {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	subtotal = round(subtotal)

	discount := decimal.Zero
	if coupon != nil {
		discount = round(subtotal.Mul(coupon.Rate()))
	}
	net := subtotal.Sub(discount)

	shipping := ShippingFee
	if subtotal.IsZero() || net.GreaterThanOrEqual(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	tax := round(net.Mul(TaxRate))

	return Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    round(net.Add(shipping).Add(tax)),
	}
}

// SelectLines keeps only the lines whose ID is in ids. A nil ids prices everything.
func SelectLines(lines []Line, ids []string) []Line {
	return Select(lines, ids, func(l Line) string { return l.ID })
}

// Select keeps the items whose id is in ids, in their original order. A nil
// ids keeps everything; an empty one keeps nothing.
func Select[T any](items []T, ids []string, id func(T) string) []T {
	if ids == nil {
		return items
	}
	keep := make(map[string]struct{}, len(ids))
	for _, v := range ids {
		keep[v] = struct{}{}
	}
	selected := make([]T, 0, len(ids))
	for _, item := range items {
		if _, ok := keep[id(item)]; ok {
			selected = append(selected, item)
		}
	}
	return selected
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
