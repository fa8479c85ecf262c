package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
)

// Ledger owns product stock. Reserve and Release must be single atomic
// updates at the storage layer; Reserve never drives stock below zero.
type Ledger interface {
	Product(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	Reserve(ctx context.Context, id primitive.ObjectID, qty int) (int, error)
	Release(ctx context.Context, id primitive.ObjectID, qty int) (int, error)
}

// Store persists order documents. Orders are never deleted.
type Store interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID, page models.Page) ([]models.Order, int64, error)
	FindAll(ctx context.Context, filter models.OrderFilter, page models.Page) ([]models.Order, int64, error)
	// Save replaces the order only while its stored status still equals expected.
	Save(ctx context.Context, order models.Order, expected models.OrderStatus) (bool, error)
	// TransitionStatus flips the status to `to` only if the stored status is one of from.
	TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error)
	Stats(ctx context.Context) (models.OrderStats, error)
}

// Transactor runs fn inside a multi-document transaction. The ctx handed to
// fn must be passed to every store and ledger call that should join it.
// Implementations return apperror.ErrTransactionsUnsupported when the
// deployment cannot provide transactions at all.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier hands a created order to the confirmation channel. It must not
// block the caller and it never reports failure.
type Notifier interface {
	Notify(order models.Order, email string)
}
