// Package memstore is an in-process implementation of the stock ledger, the
// order store and the transactor. It backs the "memory" store driver and the
// order pipeline tests.
//
// Transactions are serialized against each other and keep an undo log; a
// failed transaction replays the log backwards so none of its writes survive.
// A Store built with Transactions(false) behaves like a standalone document
// server: every transaction attempt fails with ErrTransactionsUnsupported.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperror"
	"storefront/internal/models"
)

type Option func(*Store)

// Transactions toggles multi-document transaction support.
func Transactions(enabled bool) Option {
	return func(s *Store) { s.transactional = enabled }
}

type Store struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]models.Product
	orders   map[primitive.ObjectID]models.Order

	txMu          sync.Mutex
	transactional bool
}

func New(opts ...Option) *Store {
	s := &Store{
		products:      make(map[primitive.ObjectID]models.Product),
		orders:        make(map[primitive.ObjectID]models.Order),
		transactional: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

type tx struct {
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// record registers an undo step. Callers hold s.mu.
func (s *Store) record(ctx context.Context, undo func()) {
	if t := txFrom(ctx); t != nil {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) Transactional() bool {
	return s.transactional
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional {
		return apperror.ErrTransactionsUnsupported
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.mu.Lock()
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// PutProduct inserts or replaces a catalog product. It is not part of any transaction.
func (s *Store) PutProduct(p models.Product) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
	return p
}

func (s *Store) Product(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || p.IsDeleted {
		return models.Product{}, apperror.NotFound("Product " + id.Hex())
	}
	return p, nil
}

func (s *Store) Reserve(ctx context.Context, id primitive.ObjectID, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || p.IsDeleted {
		return 0, apperror.NotFound("Product " + id.Hex())
	}
	if p.Stock < qty {
		return p.Stock, apperror.InsufficientStock(id.Hex(), p.Name, p.Stock, qty)
	}
	p.Stock -= qty
	s.products[id] = p
	s.record(ctx, func() { s.adjust(id, qty) })
	return p.Stock, nil
}

func (s *Store) Release(ctx context.Context, id primitive.ObjectID, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, apperror.NotFound("Product " + id.Hex())
	}
	p.Stock += qty
	s.products[id] = p
	s.record(ctx, func() { s.adjust(id, -qty) })
	return p.Stock, nil
}

func (s *Store) adjust(id primitive.ObjectID, delta int) {
	if p, ok := s.products[id]; ok {
		p.Stock += delta
		s.products[id] = p
	}
}

func (s *Store) Insert(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, exists := s.orders[order.ID]; exists {
		return apperror.Server("Failed to create order", errDuplicateKey)
	}
	s.orders[order.ID] = order.Clone()
	id := order.ID
	s.record(ctx, func() { delete(s.orders, id) })
	return nil
}

func (s *Store) FindByID(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperror.NotFound("Order")
	}
	return o.Clone(), nil
}

func (s *Store) FindByUser(_ context.Context, userID primitive.ObjectID, page models.Page) ([]models.Order, int64, error) {
	list, total := s.list(page, func(o models.Order) bool { return o.UserID == userID })
	return list, total, nil
}

func (s *Store) FindAll(_ context.Context, filter models.OrderFilter, page models.Page) ([]models.Order, int64, error) {
	list, total := s.list(page, func(o models.Order) bool {
		return filter.Status == nil || o.Status == *filter.Status
	})
	return list, total, nil
}

// list returns one page of matching orders, newest first, and the total match
// count taken under the same lock.
func (s *Store) list(page models.Page, match func(models.Order) bool) ([]models.Order, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	total := int64(len(out))
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})

	skip := page.Skip()
	if skip < 0 || skip >= total {
		return []models.Order{}, total
	}
	end := skip + page.Limit
	if page.Limit <= 0 || end > total {
		end = total
	}
	return out[skip:end], total
}

func (s *Store) Save(ctx context.Context, order models.Order, expected models.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.orders[order.ID]
	if !ok || prev.Status != expected {
		return false, nil
	}
	s.orders[order.ID] = order.Clone()
	s.record(ctx, func() { s.orders[prev.ID] = prev })
	return true, nil
}

func (s *Store) TransitionStatus(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, st := range from {
		if o.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	prev := o.Clone()
	o.Status = to
	o.UpdatedAt = at
	s.orders[id] = o
	s.record(ctx, func() { s.orders[id] = prev })
	return true, nil
}
