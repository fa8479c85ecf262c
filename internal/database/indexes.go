package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func EnsureProductIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(ProductsCollection).Indexes()

	activeIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "isDeleted", Value: 1}, {Key: "isActive", Value: 1}},
		Options: options.Index().SetName("isDeleted_isActive"),
	}

	logger.Info("creating index", zap.String("collection", ProductsCollection), zap.String("index", "isDeleted_isActive"))
	if _, err := indexes.CreateOne(ctx, activeIndex); err != nil {
		logger.Warn("product index error", zap.Error(err))
		return err
	}
	return nil
}

func EnsureOrderIndexes(db *mongo.Database, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection(OrdersCollection).Indexes()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("status_createdAt"),
		},
	}

	logger.Info("creating indexes", zap.String("collection", OrdersCollection), zap.Int("count", len(models)))
	if _, err := indexes.CreateMany(ctx, models); err != nil {
		logger.Warn("order index error", zap.Error(err))
		return err
	}
	return nil
}
