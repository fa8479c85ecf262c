package database

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

const topProductsLimit = 10

func (r *OrderRepository) Stats(ctx context.Context) (models.OrderStats, error) {
	total, err := r.orders.CountDocuments(ctx, bson.M{})
	if err != nil {
		return models.OrderStats{}, fmt.Errorf("count orders: %w", err)
	}

	var revenue []struct {
		Total float64 `bson:"total"`
	}
	if err := r.aggregate(ctx, &revenue, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isPaid": true}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$totalPrice"}}}},
	}); err != nil {
		return models.OrderStats{}, err
	}

	byStatus := make([]models.StatusCount, 0)
	if err := r.aggregate(ctx, &byStatus, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}); err != nil {
		return models.OrderStats{}, err
	}

	top := make([]models.ProductSales, 0)
	if err := r.aggregate(ctx, &top, mongo.Pipeline{
		{{Key: "$unwind", Value: "$lines"}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$lines.productId",
			"name":      bson.M{"$first": "$lines.name"},
			"totalSold": bson.M{"$sum": "$lines.quantity"},
			"revenue":   bson.M{"$sum": bson.M{"$multiply": bson.A{"$lines.unitPrice", "$lines.quantity"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "totalSold", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: topProductsLimit}},
	}); err != nil {
		return models.OrderStats{}, err
	}
	for i := range top {
		top[i].Revenue = round2(top[i].Revenue)
	}

	stats := models.OrderStats{
		TotalOrders:    total,
		OrdersByStatus: byStatus,
		TopProducts:    top,
	}
	if len(revenue) > 0 {
		stats.TotalRevenue = round2(revenue[0].Total)
	}
	return stats, nil
}

func (r *OrderRepository) aggregate(ctx context.Context, out interface{}, pipeline mongo.Pipeline) error {
	cursor, err := r.orders.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate orders: %w", err)
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode order stats: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
