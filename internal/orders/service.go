// Package orders implements order placement, cancellation and the rest of the
// order lifecycle on top of a stock ledger and an order store.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/pricing"
)

type Service struct {
	ledger    Ledger
	store     Store
	committer Committer
	notifier  Notifier
	metrics   *metrics.Orders
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Orders) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(ledger Ledger, store Store, committer Committer, notifier Notifier, logger *zap.Logger, opts ...Option) *Service {
	v := validator.New()
	v.SetTagName("binding")

	s := &Service{
		ledger:    ledger,
		store:     store,
		committer: committer,
		notifier:  notifier,
		logger:    logger,
		validate:  v,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CartLine struct {
	ProductID primitive.ObjectID
	Quantity  int
}

type PlaceOrderInput struct {
	Lines           []CartLine
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
}

func (in PlaceOrderInput) validate(v *validator.Validate) error {
	if len(in.Lines) == 0 {
		return apperror.BadRequest("No order items")
	}
	if !in.PaymentMethod.Valid() {
		return apperror.BadRequest("Invalid payment method")
	}
	for _, l := range in.Lines {
		if l.ProductID.IsZero() {
			return apperror.BadRequest("invalid productId")
		}
		if l.Quantity <= 0 {
			return apperror.BadRequest("quantity must be greater than zero")
		}
	}
	if err := v.Struct(in.ShippingAddress); err != nil {
		return apperror.BadRequest("invalid shipping address: %s", describeValidation(err))
	}
	return nil
}

// mergeLines folds repeated products into one line, keeping first-seen order.
func mergeLines(lines []CartLine) []CartLine {
	index := make(map[primitive.ObjectID]int, len(lines))
	out := make([]CartLine, 0, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

// PlaceOrder validates the cart against live stock, prices it, and commits the
// order together with the stock reservations.
func (s *Service) PlaceOrder(ctx context.Context, who models.Identity, in PlaceOrderInput) (models.Order, error) {
	const op = "place"

	if err := in.validate(s.validate); err != nil {
		return models.Order{}, s.fail(op, err)
	}
	cart := mergeLines(in.Lines)

	lines := make([]models.OrderLine, 0, len(cart))
	priced := make([]pricing.Line, 0, len(cart))
	ledgerOps := make([]LedgerOp, 0, len(cart))

	for _, item := range cart {
		product, err := s.ledger.Product(ctx, item.ProductID)
		if err != nil {
			return models.Order{}, s.fail(op, s.classify(err, "Failed to create order",
				zap.String("productId", item.ProductID.Hex())))
		}
		if product.Stock < item.Quantity {
			return models.Order{}, s.fail(op, apperror.InsufficientStock(
				product.ID.Hex(), product.Name, product.Stock, item.Quantity))
		}

		unit := pricing.UnitPrice(product)
		lines = append(lines, models.OrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.ImagePath,
			UnitPrice: unit,
			Quantity:  item.Quantity,
		})
		priced = append(priced, pricing.Line{UnitPrice: unit, Quantity: item.Quantity})
		ledgerOps = append(ledgerOps, LedgerOp{ProductID: product.ID, Name: product.Name, Delta: -item.Quantity})
	}

	totals := pricing.Calculate(priced)
	now := s.now()
	order := models.Order{
		ID:              primitive.NewObjectID(),
		UserID:          who.ID,
		Lines:           lines,
		ShippingAddress: in.ShippingAddress,
		PaymentMethod:   in.PaymentMethod,
		ItemsPrice:      totals.ItemsPrice,
		TaxPrice:        totals.TaxPrice,
		ShippingPrice:   totals.ShippingPrice,
		TotalPrice:      totals.TotalPrice,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	res, err := s.committer.Commit(ctx, Transition{
		Name:    op,
		OrderID: order.ID,
		Order: func(ctx context.Context) error {
			doc := order.Clone()
			return s.store.Insert(ctx, &doc)
		},
		Ledger: ledgerOps,
	})
	if err != nil {
		return models.Order{}, s.fail(op, s.classify(err, "Failed to create order",
			zap.String("orderId", order.ID.Hex()),
			zap.String("userId", who.ID.Hex())))
	}

	s.metrics.Placed(res.Mode)
	s.logger.Info("order created",
		zap.String("orderId", order.ID.Hex()),
		zap.String("userId", who.ID.Hex()),
		zap.String("mode", res.Mode),
		zap.Int("shortfalls", len(res.Shortfalls)),
		zap.Float64("totalPrice", order.TotalPrice))

	if s.notifier != nil {
		s.notifier.Notify(order.Clone(), who.Email)
	}
	return order, nil
}

// classify passes domain errors through and turns everything else into a
// logged ServerError.
func (s *Service) classify(err error, message string, fields ...zap.Field) error {
	if apperror.KindOf(err) != apperror.KindServer {
		return err
	}
	s.logger.Error(message, append(fields, zap.Error(err))...)
	return apperror.Server(message, err)
}

func (s *Service) fail(op string, err error) error {
	s.metrics.Failed(op, string(apperror.KindOf(err)))
	return err
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := lowerCamel(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " is too short"
	}
	return field + " is invalid"
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
