package orders

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/metrics"
)

const (
	ModeAtomic     = "atomic"
	ModeSequential = "sequential"
)

// LedgerOp moves stock for one product. Negative deltas reserve, positive deltas release.
type LedgerOp struct {
	ProductID primitive.ObjectID
	Name      string
	Delta     int
}

// Transition is one order write plus the stock movements that must accompany it.
type Transition struct {
	Name    string
	OrderID primitive.ObjectID
	Order   func(ctx context.Context) error
	Ledger  []LedgerOp
}

// CommitResult reports how a transition was committed. Shortfalls lists ledger
// operations that could not be applied; only the sequential path produces them.
type CommitResult struct {
	Mode       string
	Shortfalls []LedgerOp
}

// Committer applies a Transition.
type Committer interface {
	Commit(ctx context.Context, t Transition) (CommitResult, error)
}

func applyLedgerOp(ctx context.Context, ledger Ledger, op LedgerOp) error {
	switch {
	case op.Delta < 0:
		_, err := ledger.Reserve(ctx, op.ProductID, -op.Delta)
		return err
	case op.Delta > 0:
		_, err := ledger.Release(ctx, op.ProductID, op.Delta)
		return err
	}
	return nil
}

// releaseOfMissingProduct is the one ledger failure tolerated on both paths:
// stock cannot be returned to a product that no longer exists.
func releaseOfMissingProduct(op LedgerOp, err error) bool {
	return op.Delta > 0 && apperror.Is(err, apperror.KindNotFound)
}

// AtomicCommitter writes the order and every stock movement in one transaction.
// Any failure aborts all of it.
type AtomicCommitter struct {
	tx     Transactor
	ledger Ledger
	logger *zap.Logger
}

func NewAtomicCommitter(tx Transactor, ledger Ledger, logger *zap.Logger) *AtomicCommitter {
	return &AtomicCommitter{tx: tx, ledger: ledger, logger: logger}
}

func (c *AtomicCommitter) Commit(ctx context.Context, t Transition) (CommitResult, error) {
	res := CommitResult{Mode: ModeAtomic}
	err := c.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		// The transaction body may be retried on transient errors.
		res.Shortfalls = nil
		if err := t.Order(txCtx); err != nil {
			return err
		}
		for _, op := range t.Ledger {
			if err := applyLedgerOp(txCtx, c.ledger, op); err != nil {
				if releaseOfMissingProduct(op, err) {
					c.logger.Warn("stock release skipped, product no longer exists",
						zap.String("transition", t.Name),
						zap.String("orderId", t.OrderID.Hex()),
						zap.String("productId", op.ProductID.Hex()))
					res.Shortfalls = append(res.Shortfalls, op)
					continue
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CommitResult{Mode: ModeAtomic}, err
	}
	return res, nil
}

// SequentialCommitter applies the same writes one after another without any
// transaction. It is only used when the deployment cannot run transactions.
//
// The order write happens first. A ledger operation that fails afterwards is
// logged and recorded as a shortfall but does not fail the commit, so an order
// can exist whose stock was never reserved. That window is accepted for
// deployments without transactions.
type SequentialCommitter struct {
	ledger  Ledger
	logger  *zap.Logger
	metrics *metrics.Orders
}

func NewSequentialCommitter(ledger Ledger, logger *zap.Logger, m *metrics.Orders) *SequentialCommitter {
	return &SequentialCommitter{ledger: ledger, logger: logger, metrics: m}
}

func (c *SequentialCommitter) Commit(ctx context.Context, t Transition) (CommitResult, error) {
	res := CommitResult{Mode: ModeSequential}
	if err := t.Order(ctx); err != nil {
		return res, err
	}
	for _, op := range t.Ledger {
		if err := applyLedgerOp(ctx, c.ledger, op); err != nil {
			c.logger.Warn("stock update failed after order write without transaction",
				zap.String("transition", t.Name),
				zap.String("orderId", t.OrderID.Hex()),
				zap.String("productId", op.ProductID.Hex()),
				zap.Int("delta", op.Delta),
				zap.Error(err))
			c.metrics.Shortfall(t.Name)
			res.Shortfalls = append(res.Shortfalls, op)
		}
	}
	return res, nil
}

// FallbackCommitter prefers the atomic path and switches to the sequential
// path for the rest of the process once the deployment reports that it cannot
// run transactions. The call that discovers this is retried sequentially.
type FallbackCommitter struct {
	primary  Committer
	fallback Committer
	degraded atomic.Bool
	logger   *zap.Logger
}

// NewFallbackCommitter starts in atomic mode when transactional is true, as
// decided by a startup capability probe.
func NewFallbackCommitter(atomicC, sequentialC Committer, transactional bool, logger *zap.Logger) *FallbackCommitter {
	f := &FallbackCommitter{primary: atomicC, fallback: sequentialC, logger: logger}
	f.degraded.Store(!transactional)
	return f
}

func (f *FallbackCommitter) Mode() string {
	if f.degraded.Load() {
		return ModeSequential
	}
	return ModeAtomic
}

func (f *FallbackCommitter) Commit(ctx context.Context, t Transition) (CommitResult, error) {
	if !f.degraded.Load() {
		res, err := f.primary.Commit(ctx, t)
		if !errors.Is(err, apperror.ErrTransactionsUnsupported) {
			return res, err
		}
		if f.degraded.CompareAndSwap(false, true) {
			f.logger.Warn("transactions not supported, continuing without transaction",
				zap.String("transition", t.Name),
				zap.Error(err))
		}
	}
	res, err := f.fallback.Commit(ctx, t)
	if err != nil {
		return res, fmt.Errorf("%s without transaction: %w", t.Name, err)
	}
	return res, nil
}
