package orders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

var cancellableStatuses = []models.OrderStatus{models.StatusPending, models.StatusProcessing}

// CancelOrder flips a pending or processing order to cancelled and returns
// every reserved unit to stock, through the same committer as placement.
func (s *Service) CancelOrder(ctx context.Context, who models.Identity, id primitive.ObjectID) (models.Order, error) {
	const op = "cancel"

	order, err := s.loadAccessible(ctx, op, who, id, "Not authorized to cancel this order")
	if err != nil {
		return models.Order{}, err
	}
	if err := checkCancellable(order.Status); err != nil {
		return models.Order{}, s.fail(op, err)
	}

	now := s.now()
	ledgerOps := make([]LedgerOp, 0, len(order.Lines))
	for _, line := range order.Lines {
		ledgerOps = append(ledgerOps, LedgerOp{ProductID: line.ProductID, Name: line.Name, Delta: line.Quantity})
	}

	res, err := s.committer.Commit(ctx, Transition{
		Name:    op,
		OrderID: order.ID,
		Order: func(ctx context.Context) error {
			ok, err := s.store.TransitionStatus(ctx, order.ID, cancellableStatuses, models.StatusCancelled, now)
			if err != nil {
				return err
			}
			if !ok {
				return apperror.BadRequest("Order can no longer be cancelled")
			}
			return nil
		},
		Ledger: ledgerOps,
	})
	if err != nil {
		return models.Order{}, s.fail(op, s.classify(err, "Failed to cancel order",
			zap.String("orderId", order.ID.Hex())))
	}

	order.Status = models.StatusCancelled
	order.UpdatedAt = now

	s.metrics.Cancelled(res.Mode)
	s.logger.Info("order cancelled",
		zap.String("orderId", order.ID.Hex()),
		zap.String("by", who.ID.Hex()),
		zap.String("mode", res.Mode),
		zap.Int("shortfalls", len(res.Shortfalls)))
	return order, nil
}

func checkCancellable(status models.OrderStatus) error {
	if status.Cancellable() {
		return nil
	}
	if status == models.StatusCancelled {
		return apperror.BadRequest("Order is already cancelled")
	}
	return apperror.BadRequest("Cannot cancel shipped or delivered orders")
}

// MarkPaid records the payment provider's confirmation and moves a pending
// order to processing.
func (s *Service) MarkPaid(ctx context.Context, who models.Identity, id primitive.ObjectID, result models.PaymentResult) (models.Order, error) {
	const op = "pay"

	order, err := s.loadAccessible(ctx, op, who, id, "Not authorized to update this order")
	if err != nil {
		return models.Order{}, err
	}
	if order.Status == models.StatusCancelled {
		return models.Order{}, s.fail(op, apperror.BadRequest("Cannot pay for a cancelled order"))
	}
	if order.IsPaid {
		return models.Order{}, s.fail(op, apperror.BadRequest("Order is already paid"))
	}

	expected := order.Status
	now := s.now()
	order.IsPaid = true
	order.PaidAt = &now
	order.PaymentResult = &result
	if order.Status == models.StatusPending {
		order.Status = models.StatusProcessing
	}
	order.UpdatedAt = now

	if err := s.save(ctx, op, order, expected); err != nil {
		return models.Order{}, err
	}
	s.logger.Info("order paid", zap.String("orderId", order.ID.Hex()), zap.String("paymentId", result.ID))
	return order, nil
}

type StatusUpdate struct {
	Status         models.OrderStatus
	TrackingNumber string
	Notes          string
}

// UpdateStatus is the administrative transition along
// pending → processing → shipped → delivered. Moving to cancelled goes through
// CancelOrder so reserved stock is returned.
func (s *Service) UpdateStatus(ctx context.Context, who models.Identity, id primitive.ObjectID, upd StatusUpdate) (models.Order, error) {
	const op = "status"

	if !who.IsAdmin() {
		return models.Order{}, s.fail(op, apperror.Forbidden("Admin access required"))
	}
	if _, ok := models.ParseOrderStatus(string(upd.Status)); !ok {
		return models.Order{}, s.fail(op, apperror.BadRequest("Invalid order status"))
	}

	if upd.Status == models.StatusCancelled {
		order, err := s.CancelOrder(ctx, who, id)
		if err != nil {
			return models.Order{}, err
		}
		if upd.TrackingNumber == "" && upd.Notes == "" {
			return order, nil
		}
		applyAnnotations(&order, upd)
		if err := s.save(ctx, op, order, models.StatusCancelled); err != nil {
			return models.Order{}, err
		}
		return order, nil
	}

	order, err := s.loadAccessible(ctx, op, who, id, "Admin access required")
	if err != nil {
		return models.Order{}, err
	}
	if order.Status == models.StatusCancelled {
		return models.Order{}, s.fail(op, apperror.BadRequest("Cannot update a cancelled order"))
	}
	if upd.Status.Rank() < order.Status.Rank() {
		return models.Order{}, s.fail(op, apperror.BadRequest("Cannot move order from %s back to %s", order.Status, upd.Status))
	}

	expected := order.Status
	now := s.now()
	order.Status = upd.Status
	if upd.Status == models.StatusDelivered && !order.IsDelivered {
		order.IsDelivered = true
		order.DeliveredAt = &now
	}
	applyAnnotations(&order, upd)
	order.UpdatedAt = now

	if err := s.save(ctx, op, order, expected); err != nil {
		return models.Order{}, err
	}
	s.logger.Info("order status updated",
		zap.String("orderId", order.ID.Hex()),
		zap.String("from", string(expected)),
		zap.String("to", string(order.Status)))
	return order, nil
}

func applyAnnotations(order *models.Order, upd StatusUpdate) {
	if upd.TrackingNumber != "" {
		order.TrackingNumber = upd.TrackingNumber
	}
	if upd.Notes != "" {
		order.Notes = upd.Notes
	}
}

func (s *Service) save(ctx context.Context, op string, order models.Order, expected models.OrderStatus) error {
	ok, err := s.store.Save(ctx, order, expected)
	if err != nil {
		return s.fail(op, s.classify(err, "Failed to update order", zap.String("orderId", order.ID.Hex())))
	}
	if !ok {
		return s.fail(op, apperror.BadRequest("Order was modified concurrently, please retry"))
	}
	return nil
}

func (s *Service) loadAccessible(ctx context.Context, op string, who models.Identity, id primitive.ObjectID, denied string) (models.Order, error) {
	order, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Order{}, s.fail(op, s.classify(err, "Failed to fetch order", zap.String("orderId", id.Hex())))
	}
	if !who.CanAccess(order) {
		return models.Order{}, s.fail(op, apperror.Forbidden(denied))
	}
	return order, nil
}
