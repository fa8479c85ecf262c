package orders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

func (s *Service) GetOrder(ctx context.Context, who models.Identity, id primitive.ObjectID) (models.Order, error) {
	return s.loadAccessible(ctx, "get", who, id, "Not authorized to view this order")
}

// ListUserOrders returns the caller's own orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, who models.Identity, page models.Page) ([]models.Order, models.PageInfo, error) {
	page = NormalizePage(page)
	orders, total, err := s.store.FindByUser(ctx, who.ID, page)
	if err != nil {
		return nil, models.PageInfo{}, s.classify(err, "Failed to fetch orders", zap.String("userId", who.ID.Hex()))
	}
	return orders, models.NewPageInfo(page, total), nil
}

// ListAllOrders is the administrative listing, optionally filtered by status.
func (s *Service) ListAllOrders(ctx context.Context, who models.Identity, filter models.OrderFilter, page models.Page) ([]models.Order, models.PageInfo, error) {
	if !who.IsAdmin() {
		return nil, models.PageInfo{}, apperror.Forbidden("Admin access required")
	}
	page = NormalizePage(page)
	orders, total, err := s.store.FindAll(ctx, filter, page)
	if err != nil {
		return nil, models.PageInfo{}, s.classify(err, "Failed to fetch orders")
	}
	return orders, models.NewPageInfo(page, total), nil
}

func (s *Service) Stats(ctx context.Context, who models.Identity) (models.OrderStats, error) {
	if !who.IsAdmin() {
		return models.OrderStats{}, apperror.Forbidden("Admin access required")
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return models.OrderStats{}, s.classify(err, "Failed to compute order stats")
	}
	return stats, nil
}

// NormalizePage applies the listing defaults and caps the page size.
func NormalizePage(p models.Page) models.Page {
	if p.Number < 1 {
		p.Number = models.DefaultPage
	}
	if p.Number > models.MaxPage {
		p.Number = models.MaxPage
	}
	if p.Limit < 1 {
		p.Limit = models.DefaultLimit
	}
	if p.Limit > models.MaxLimit {
		p.Limit = models.MaxLimit
	}
	return p
}
