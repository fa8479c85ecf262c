package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

// OrderRepository stores order documents. Orders are never deleted.
type OrderRepository struct {
	orders *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{orders: db.Collection(OrdersCollection)}
}

func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := r.orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID.Hex(), err)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperror.NotFound("Order")
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find order %s: %w", id.Hex(), err)
	}
	return order, nil
}

func (r *OrderRepository) FindByUser(ctx context.Context, userID primitive.ObjectID, page models.Page) ([]models.Order, int64, error) {
	return r.find(ctx, bson.M{"userId": userID}, page)
}

func (r *OrderRepository) FindAll(ctx context.Context, filter models.OrderFilter, page models.Page) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	return r.find(ctx, query, page)
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, page models.Page) ([]models.Order, int64, error) {
	total, err := r.orders.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(page.Limit)

	cursor, err := r.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("decode orders: %w", err)
	}
	return orders, total, nil
}

func (r *OrderRepository) Save(ctx context.Context, order models.Order, expected models.OrderStatus) (bool, error) {
	res, err := r.orders.ReplaceOne(ctx, bson.M{"_id": order.ID, "status": expected}, order)
	if err != nil {
		return false, fmt.Errorf("save order %s: %w", order.ID.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error) {
	res, err := r.orders.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("transition order %s: %w", id.Hex(), err)
	}
	return res.MatchedCount > 0, nil
}
