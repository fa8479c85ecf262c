// Package pricing computes order totals. Arithmetic runs on decimals and every
// component is rounded to cents before the total is summed, so
// total == items + tax + shipping holds exactly on the stored values.
package pricing

import "github.com/shopspring/decimal"

var (
	TaxRate               = decimal.RequireFromString("0.10")
	FreeShippingThreshold = decimal.NewFromInt(100)
	StandardShippingCost  = decimal.NewFromInt(10)
)

type Line struct {
	UnitPrice float64
	Quantity  int
}

type Totals struct {
	ItemsPrice    float64 `json:"itemsPrice"`
	TaxPrice      float64 `json:"taxPrice"`
	ShippingPrice float64 `json:"shippingPrice"`
	TotalPrice    float64 `json:"totalPrice"`
}

// Calculate sums unitPrice×quantity over lines and derives tax, shipping and total.
func Calculate(lines []Line) Totals {
	items := decimal.Zero
	for _, l := range lines {
		items = items.Add(decimal.NewFromFloat(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return fromItems(items)
}

func fromItems(items decimal.Decimal) Totals {
	items = items.Round(2)

	shipping := StandardShippingCost
	if items.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := items.Mul(TaxRate).Round(2)
	total := items.Add(tax).Add(shipping)

	return Totals{
		ItemsPrice:    items.InexactFloat64(),
		TaxPrice:      tax.InexactFloat64(),
		ShippingPrice: shipping.InexactFloat64(),
		TotalPrice:    total.InexactFloat64(),
	}
}
