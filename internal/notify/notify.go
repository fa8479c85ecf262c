// Package notify delivers order confirmations off the request path.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/models"
)

// Sender delivers one confirmation. Implementations may block.
type Sender interface {
	Send(ctx context.Context, order models.Order, email string) error
}

// Dispatcher runs each confirmation in its own goroutine with a timeout.
// Failures are logged and never reach the caller.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Notify(order models.Order, email string) {
	if email == "" {
		d.logger.Debug("order confirmation skipped, no email", zap.String("orderId", order.ID.Hex()))
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("order confirmation panicked",
					zap.String("orderId", order.ID.Hex()),
					zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sender.Send(ctx, order, email); err != nil {
			d.logger.Warn("order confirmation failed",
				zap.String("orderId", order.ID.Hex()),
				zap.Error(err))
			return
		}
		d.logger.Info("order confirmation sent", zap.String("orderId", order.ID.Hex()))
	}()
}

// Wait blocks until in-flight confirmations finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender only records the confirmation. It is used when no SMTP host is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(_ context.Context, order models.Order, email string) error {
	s.Logger.Info("order confirmation",
		zap.String("orderId", order.ID.Hex()),
		zap.String("to", email),
		zap.Float64("totalPrice", order.TotalPrice),
		zap.Int("lines", len(order.Lines)))
	return nil
}
