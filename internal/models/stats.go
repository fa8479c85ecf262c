package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type StatusCount struct {
	Status OrderStatus `bson:"_id" json:"status"`
	Count  int64       `bson:"count" json:"count"`
}

type ProductSales struct {
	ProductID primitive.ObjectID `bson:"_id" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	TotalSold int64              `bson:"totalSold" json:"totalSold"`
	Revenue   float64            `bson:"revenue" json:"revenue"`
}

// OrderStats backs the admin dashboard.
type OrderStats struct {
	TotalOrders    int64          `json:"totalOrders"`
	TotalRevenue   float64        `json:"totalRevenue"`
	OrdersByStatus []StatusCount  `json:"ordersByStatus"`
	TopProducts    []ProductSales `json:"topProducts"`
}
