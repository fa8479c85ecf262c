package database

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

// ProductLedger keeps product stock in the products collection. Every
// movement is one guarded $inc, so concurrent reservations can never push
// stock below zero.
type ProductLedger struct {
	products *mongo.Collection
}

func NewProductLedger(db *mongo.Database) *ProductLedger {
	return &ProductLedger{products: db.Collection(ProductsCollection)}
}

func activeProduct(id primitive.ObjectID) bson.M {
	return bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
	}
}

func (l *ProductLedger) Product(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	err := l.products.FindOne(ctx, activeProduct(id)).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, apperror.NotFound("Product " + id.Hex())
	}
	if err != nil {
		return models.Product{}, apperror.Server("Failed to load product", err)
	}
	return product, nil
}

// Reserve takes qty units. When the guarded update matches nothing the
// product is read again to tell a missing product from a short one.
func (l *ProductLedger) Reserve(ctx context.Context, id primitive.ObjectID, qty int) (int, error) {
	filter := activeProduct(id)
	filter["stock"] = bson.M{"$gte": qty}
	update := bson.M{"$inc": bson.M{"stock": -qty}}

	var updated models.Product
	err := l.products.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err == nil {
		return updated.Stock, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperror.Server("Failed to update stock", err)
	}

	current, err := l.Product(ctx, id)
	if err != nil {
		return 0, err
	}
	return current.Stock, apperror.InsufficientStock(id.Hex(), current.Name, current.Stock, qty)
}

// Release returns qty units. Soft-deleted products still take their stock back.
func (l *ProductLedger) Release(ctx context.Context, id primitive.ObjectID, qty int) (int, error) {
	var updated models.Product
	err := l.products.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"stock": qty}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, apperror.NotFound("Product " + id.Hex())
	}
	if err != nil {
		return 0, apperror.Server("Failed to update stock", err)
	}
	return updated.Stock, nil
}
