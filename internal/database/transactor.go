package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/apperror"
)

// Transactor runs a function inside a MongoDB session transaction. The
// context passed to fn is the session context; every collection call made
// with it joins the transaction.
type Transactor struct {
	client *mongo.Client
}

func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{client: client}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	if IsTransactionUnsupported(err) {
		return fmt.Errorf("%w: %v", apperror.ErrTransactionsUnsupported, err)
	}
	return err
}
