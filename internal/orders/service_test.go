package orders_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storefront/internal/apperror"
	"storefront/internal/memstore"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/orders"
)

type sentNotice struct {
	order models.Order
	email string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) Notify(order models.Order, email string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{order: order, email: email})
}

// staleLedger reports a fixed stock level on reads, simulating a competing
// request that drained stock between the pre-check and the commit.
type staleLedger struct {
	orders.Ledger
	reported map[primitive.ObjectID]int
}

func (l staleLedger) Product(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	p, err := l.Ledger.Product(ctx, id)
	if err != nil {
		return p, err
	}
	if stock, ok := l.reported[id]; ok {
		p.Stock = stock
	}
	return p, nil
}

type fixture struct {
	store     *memstore.Store
	service   *orders.Service
	committer *orders.FallbackCommitter
	notifier  *recordingNotifier
	logs      *observer.ObservedLogs
	now       time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	transactional bool
	ledger        func(*memstore.Store) orders.Ledger
}

func withoutTransactions() fixtureOption {
	return func(c *fixtureConfig) { c.transactional = false }
}

func withStaleStock(reported map[primitive.ObjectID]int) fixtureOption {
	return func(c *fixtureConfig) {
		c.ledger = func(s *memstore.Store) orders.Ledger { return staleLedger{Ledger: s, reported: reported} }
	}
}

func newFixture(t *testing.T, store *memstore.Store, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{transactional: true, ledger: func(s *memstore.Store) orders.Ledger { return s }}
	for _, opt := range opts {
		opt(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	m := metrics.NewOrders(prometheus.NewRegistry())
	ledger := cfg.ledger(store)

	committer := orders.NewFallbackCommitter(
		orders.NewAtomicCommitter(store, ledger, logger),
		orders.NewSequentialCommitter(ledger, logger, m),
		cfg.transactional,
		logger,
	)
	notifier := &recordingNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := orders.NewService(ledger, store, committer, notifier, logger,
		orders.WithMetrics(m),
		orders.WithClock(func() time.Time { return now }))

	return &fixture{store: store, service: svc, committer: committer, notifier: notifier, logs: logs, now: now}
}

func customer() models.Identity {
	return models.Identity{ID: primitive.NewObjectID(), Role: models.RoleUser, Email: "buyer@example.com"}
}

func admin() models.Identity {
	return models.Identity{ID: primitive.NewObjectID(), Role: models.RoleAdmin, Email: "admin@example.com"}
}

func address() models.ShippingAddress {
	return models.ShippingAddress{
		Name:    "Ada Lovelace",
		Street:  "12 Analytical Row",
		City:    "London",
		State:   "LDN",
		ZipCode: "N1 9GU",
		Country: "UK",
		Phone:   "+441234567890",
	}
}

func cart(lines ...orders.CartLine) orders.PlaceOrderInput {
	return orders.PlaceOrderInput{Lines: lines, ShippingAddress: address(), PaymentMethod: models.PaymentCOD}
}

func stockOf(t *testing.T, s *memstore.Store, id primitive.ObjectID) int {
	t.Helper()
	p, err := s.Product(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestPlaceAndCancelEndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []fixtureOption
		mode string
	}{
		{name: "with transactions", mode: orders.ModeAtomic},
		{name: "without transactions", opts: []fixtureOption{withoutTransactions()}, mode: orders.ModeSequential},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New(memstore.Transactions(tc.mode == orders.ModeAtomic))
			f := newFixture(t, store, tc.opts...)
			a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5, ImagePath: "/uploads/a.png"})
			who := customer()

			order, err := f.service.PlaceOrder(ctx, who, cart(orders.CartLine{ProductID: a.ID, Quantity: 3}))
			require.NoError(t, err)

			assert.Equal(t, 2, stockOf(t, store, a.ID))
			assert.Equal(t, 60.0, order.ItemsPrice)
			assert.Equal(t, 10.0, order.ShippingPrice)
			assert.Equal(t, 6.0, order.TaxPrice)
			assert.Equal(t, 76.0, order.TotalPrice)
			assert.Equal(t, models.StatusPending, order.Status)
			assert.Equal(t, who.ID, order.UserID)
			assert.Equal(t, f.now, order.CreatedAt)
			require.Len(t, order.Lines, 1)
			assert.Equal(t, models.OrderLine{ProductID: a.ID, Name: "A", Image: "/uploads/a.png", UnitPrice: 20, Quantity: 3}, order.Lines[0])
			assert.Equal(t, tc.mode, f.committer.Mode())

			stored, err := f.store.FindByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, order.TotalPrice, stored.TotalPrice)

			cancelled, err := f.service.CancelOrder(ctx, who, order.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, cancelled.Status)
			assert.Equal(t, 5, stockOf(t, store, a.ID))

			stored, _ = f.store.FindByID(ctx, order.ID)
			assert.Equal(t, models.StatusCancelled, stored.Status)
		})
	}
}

func TestPlaceOrderRejectsOversell(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})

	_, err := f.service.PlaceOrder(ctx, customer(), cart(orders.CartLine{ProductID: a.ID, Quantity: 10}))

	require.True(t, apperror.Is(err, apperror.KindInsufficientStock), "got %v", err)
	assert.Equal(t, 5, stockOf(t, store, a.ID))
	all, total, _ := store.FindAll(ctx, models.OrderFilter{}, models.Page{Number: 1, Limit: 10})
	assert.Zero(t, total)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.sent)
}

func TestAtomicPlacementIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := store.PutProduct(models.Product{Name: "A", Price: 10, Stock: 5})
	b := store.PutProduct(models.Product{Name: "B", Price: 10, Stock: 1})
	f := newFixture(t, store, withStaleStock(map[primitive.ObjectID]int{b.ID: 10}))

	_, err := f.service.PlaceOrder(ctx, customer(), cart(
		orders.CartLine{ProductID: a.ID, Quantity: 2},
		orders.CartLine{ProductID: b.ID, Quantity: 5},
	))

	require.True(t, apperror.Is(err, apperror.KindInsufficientStock), "got %v", err)
	assert.Equal(t, 5, stockOf(t, store, a.ID))
	assert.Equal(t, 1, stockOf(t, store, b.ID))
	_, total, _ := store.FindAll(ctx, models.OrderFilter{}, models.Page{Number: 1, Limit: 10})
	assert.Zero(t, total, "no order may survive an aborted transaction")
	assert.Equal(t, orders.ModeAtomic, f.committer.Mode(), "a stock conflict must not trigger the fallback")
}

// Without transactions an order can be persisted even though one of its
// reservations fails afterwards. This is the accepted weak-consistency window;
// the test pins the behaviour rather than asserting strict consistency.
func TestSequentialPlacementKnownConsistencyGap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.Transactions(false))
	a := store.PutProduct(models.Product{Name: "A", Price: 10, Stock: 5})
	b := store.PutProduct(models.Product{Name: "B", Price: 10, Stock: 1})
	f := newFixture(t, store, withoutTransactions(), withStaleStock(map[primitive.ObjectID]int{b.ID: 10}))

	order, err := f.service.PlaceOrder(ctx, customer(), cart(
		orders.CartLine{ProductID: a.ID, Quantity: 2},
		orders.CartLine{ProductID: b.ID, Quantity: 5},
	))
	require.NoError(t, err)

	_, err = store.FindByID(ctx, order.ID)
	assert.NoError(t, err, "order stays persisted")
	assert.Equal(t, 3, stockOf(t, store, a.ID))
	assert.Equal(t, 1, stockOf(t, store, b.ID), "ledger still refuses to go negative")
	assert.Equal(t, 1, f.logs.FilterMessage("stock update failed after order write without transaction").Len())
}

func TestCapabilityFailureSwitchesToSequential(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(memstore.Transactions(false))
	a := store.PutProduct(models.Product{Name: "A", Price: 50, Stock: 10})
	// The probe claimed transactions were available; the store disagrees.
	f := newFixture(t, store)
	require.Equal(t, orders.ModeAtomic, f.committer.Mode())

	for i := 0; i < 3; i++ {
		_, err := f.service.PlaceOrder(ctx, customer(), cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
		require.NoError(t, err)
	}

	assert.Equal(t, orders.ModeSequential, f.committer.Mode())
	assert.Equal(t, 7, stockOf(t, store, a.ID))
	assert.Equal(t, 1, f.logs.FilterMessage("transactions not supported, continuing without transaction").Len())
}

func TestCancellationRestoresExactlyWhatWasReserved(t *testing.T) {
	for _, transactional := range []bool{true, false} {
		ctx := context.Background()
		store := memstore.New(memstore.Transactions(transactional))
		var opts []fixtureOption
		if !transactional {
			opts = append(opts, withoutTransactions())
		}
		f := newFixture(t, store, opts...)
		p1 := store.PutProduct(models.Product{Name: "P1", Price: 30, Stock: 10})
		p2 := store.PutProduct(models.Product{Name: "P2", Price: 45, Stock: 4})
		who := customer()

		order, err := f.service.PlaceOrder(ctx, who, cart(
			orders.CartLine{ProductID: p1.ID, Quantity: 2},
			orders.CartLine{ProductID: p2.ID, Quantity: 1},
		))
		require.NoError(t, err)
		assert.Equal(t, 105.0, order.ItemsPrice)
		assert.Equal(t, 0.0, order.ShippingPrice)

		before1, before2 := stockOf(t, store, p1.ID), stockOf(t, store, p2.ID)
		_, err = f.service.CancelOrder(ctx, who, order.ID)
		require.NoError(t, err)

		assert.Equal(t, before1+2, stockOf(t, store, p1.ID), "transactional=%v", transactional)
		assert.Equal(t, before2+1, stockOf(t, store, p2.ID), "transactional=%v", transactional)

		_, err = f.service.CancelOrder(ctx, who, order.ID)
		assert.True(t, apperror.Is(err, apperror.KindBadRequest), "second cancel must be rejected")
		assert.Equal(t, before1+2, stockOf(t, store, p1.ID), "stock is restored only once")
	}
}

func TestCancellationRejectedOnceShipped(t *testing.T) {
	for _, status := range []models.OrderStatus{models.StatusShipped, models.StatusDelivered} {
		t.Run(string(status), func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			f := newFixture(t, store)
			a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})
			who := customer()

			order, err := f.service.PlaceOrder(ctx, who, cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
			require.NoError(t, err)
			order.Status = status
			ok, err := store.Save(ctx, order, models.StatusPending)
			require.NoError(t, err)
			require.True(t, ok)

			_, err = f.service.CancelOrder(ctx, who, order.ID)
			require.True(t, apperror.Is(err, apperror.KindBadRequest))
			assert.Equal(t, "Cannot cancel shipped or delivered orders", apperror.PublicMessage(err))

			stored, _ := store.FindByID(ctx, order.ID)
			assert.Equal(t, status, stored.Status)
			assert.Equal(t, 4, stockOf(t, store, a.ID))
		})
	}
}

func TestOrderSnapshotsSurviveCatalogEdits(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})
	who := customer()

	order, err := f.service.PlaceOrder(ctx, who, cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)

	edited, _ := store.Product(ctx, a.ID)
	edited.Price = 99
	edited.Name = "A (renamed)"
	store.PutProduct(edited)

	got, err := f.service.GetOrder(ctx, who, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.ItemsPrice)
	assert.Equal(t, order.TotalPrice, got.TotalPrice)
	assert.Equal(t, "A", got.Lines[0].Name)
	assert.Equal(t, 20.0, got.Lines[0].UnitPrice)
}

func TestPlaceOrderValidation(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})

	tests := []struct {
		name string
		in   orders.PlaceOrderInput
		kind apperror.Kind
	}{
		{"empty cart", cart(), apperror.KindBadRequest},
		{"zero quantity", cart(orders.CartLine{ProductID: a.ID, Quantity: 0}), apperror.KindBadRequest},
		{"unknown product", cart(orders.CartLine{ProductID: primitive.NewObjectID(), Quantity: 1}), apperror.KindNotFound},
		{"bad payment method", orders.PlaceOrderInput{
			Lines:           []orders.CartLine{{ProductID: a.ID, Quantity: 1}},
			ShippingAddress: address(),
			PaymentMethod:   "barter",
		}, apperror.KindBadRequest},
		{"short phone", orders.PlaceOrderInput{
			Lines:           []orders.CartLine{{ProductID: a.ID, Quantity: 1}},
			ShippingAddress: func() models.ShippingAddress { a := address(); a.Phone = "123"; return a }(),
			PaymentMethod:   models.PaymentStripe,
		}, apperror.KindBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.PlaceOrder(ctx, customer(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Equal(t, 5, stockOf(t, store, a.ID))
		})
	}
}

func TestPlaceOrderMergesRepeatedLines(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})

	_, err := f.service.PlaceOrder(ctx, customer(), cart(
		orders.CartLine{ProductID: a.ID, Quantity: 3},
		orders.CartLine{ProductID: a.ID, Quantity: 3},
	))
	require.True(t, apperror.Is(err, apperror.KindInsufficientStock), "merged quantity 6 exceeds stock 5")

	order, err := f.service.PlaceOrder(ctx, customer(), cart(
		orders.CartLine{ProductID: a.ID, Quantity: 2},
		orders.CartLine{ProductID: a.ID, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, 4, order.Lines[0].Quantity)
	assert.Equal(t, 1, stockOf(t, store, a.ID))
}

func TestPlaceOrderUsesSalePrice(t *testing.T) {
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 100, SaleEnabled: true, SalePrice: 80, Stock: 5})

	order, err := f.service.PlaceOrder(context.Background(), customer(), cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, 80.0, order.Lines[0].UnitPrice)
	assert.Equal(t, 80.0, order.ItemsPrice)
}

func TestConfirmationIsHandedToNotifier(t *testing.T) {
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})
	who := customer()

	order, err := f.service.PlaceOrder(context.Background(), who, cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
	require.NoError(t, err)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, order.ID, f.notifier.sent[0].order.ID)
	assert.Equal(t, who.Email, f.notifier.sent[0].email)
}

func TestConcurrentAtomicPlacementsNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	f := newFixture(t, store)
	a := store.PutProduct(models.Product{Name: "A", Price: 20, Stock: 5})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.PlaceOrder(ctx, customer(), cart(orders.CartLine{ProductID: a.ID, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
			} else if apperror.Is(err, apperror.KindInsufficientStock) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, placed)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 0, stockOf(t, store, a.ID))
	_, total, _ := store.FindAll(ctx, models.OrderFilter{}, models.Page{Number: 1, Limit: 100})
	assert.EqualValues(t, 5, total)
}
