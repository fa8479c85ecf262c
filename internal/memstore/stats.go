package memstore

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

var errDuplicateKey = errors.New("duplicate order id")

const topProductsLimit = 10

func (s *Store) Stats(_ context.Context) (models.OrderStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revenue := decimal.Zero
	byStatus := make(map[models.OrderStatus]int64)
	sales := make(map[primitive.ObjectID]*models.ProductSales)
	lineRevenue := make(map[primitive.ObjectID]decimal.Decimal)

	for _, o := range s.orders {
		byStatus[o.Status]++
		if o.IsPaid {
			revenue = revenue.Add(decimal.NewFromFloat(o.TotalPrice))
		}
		for _, l := range o.Lines {
			ps, ok := sales[l.ProductID]
			if !ok {
				ps = &models.ProductSales{ProductID: l.ProductID, Name: l.Name}
				sales[l.ProductID] = ps
			}
			ps.TotalSold += int64(l.Quantity)
			lineRevenue[l.ProductID] = lineRevenue[l.ProductID].Add(
				decimal.NewFromFloat(l.UnitPrice).Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}

	stats := models.OrderStats{
		TotalOrders:    int64(len(s.orders)),
		TotalRevenue:   revenue.Round(2).InexactFloat64(),
		OrdersByStatus: make([]models.StatusCount, 0, len(byStatus)),
		TopProducts:    make([]models.ProductSales, 0, len(sales)),
	}
	for status, n := range byStatus {
		stats.OrdersByStatus = append(stats.OrdersByStatus, models.StatusCount{Status: status, Count: n})
	}
	sort.Slice(stats.OrdersByStatus, func(i, j int) bool {
		return stats.OrdersByStatus[i].Status < stats.OrdersByStatus[j].Status
	})

	for id, ps := range sales {
		ps.Revenue = lineRevenue[id].Round(2).InexactFloat64()
		stats.TopProducts = append(stats.TopProducts, *ps)
	}
	sort.Slice(stats.TopProducts, func(i, j int) bool {
		if stats.TopProducts[i].TotalSold != stats.TopProducts[j].TotalSold {
			return stats.TopProducts[i].TotalSold > stats.TopProducts[j].TotalSold
		}
		return stats.TopProducts[i].ProductID.Hex() < stats.TopProducts[j].ProductID.Hex()
	})
	if len(stats.TopProducts) > topProductsLimit {
		stats.TopProducts = stats.TopProducts[:topProductsLimit]
	}
	return stats, nil
}
