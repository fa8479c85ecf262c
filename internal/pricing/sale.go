package pricing

import "storefront/internal/models"

// OnSale is true when a product has an enabled sale price strictly below its list price.
func OnSale(price float64, saleEnabled bool, salePrice float64) bool {
	return saleEnabled && salePrice > 0 && salePrice < price
}

// UnitPrice is the price a buyer pays for one unit right now.
func UnitPrice(p models.Product) float64 {
	if OnSale(p.Price, p.SaleEnabled, p.SalePrice) {
		return p.SalePrice
	}
	return p.Price
}
