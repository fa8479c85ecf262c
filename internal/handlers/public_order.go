package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/idempotency"
	"storefront/internal/models"
	"storefront/internal/orders"
)

// OrderService is the order pipeline as the HTTP layer sees it.
type OrderService interface {
	PlaceOrder(ctx context.Context, who models.Identity, in orders.PlaceOrderInput) (models.Order, error)
	GetOrder(ctx context.Context, who models.Identity, id primitive.ObjectID) (models.Order, error)
	ListUserOrders(ctx context.Context, who models.Identity, page models.Page) ([]models.Order, models.PageInfo, error)
	ListAllOrders(ctx context.Context, who models.Identity, filter models.OrderFilter, page models.Page) ([]models.Order, models.PageInfo, error)
	MarkPaid(ctx context.Context, who models.Identity, id primitive.ObjectID, result models.PaymentResult) (models.Order, error)
	CancelOrder(ctx context.Context, who models.Identity, id primitive.ObjectID) (models.Order, error)
	UpdateStatus(ctx context.Context, who models.Identity, id primitive.ObjectID, upd orders.StatusUpdate) (models.Order, error)
	Stats(ctx context.Context, who models.Identity) (models.OrderStats, error)
}

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	Product   string `json:"product"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type createOrderRequest struct {
	OrderItems      []createOrderItemRequest `json:"orderItems"`
	ShippingAddress models.ShippingAddress   `json:"shippingAddress" binding:"-"`
	PaymentMethod   string                   `json:"paymentMethod"`
}

func (r createOrderRequest) toInput() (orders.PlaceOrderInput, error) {
	in := orders.PlaceOrderInput{
		Lines:           make([]orders.CartLine, 0, len(r.OrderItems)),
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   models.PaymentMethod(strings.ToLower(strings.TrimSpace(r.PaymentMethod))),
	}
	for _, item := range r.OrderItems {
		raw := strings.TrimSpace(item.Product)
		if raw == "" {
			raw = strings.TrimSpace(item.ProductID)
		}
		productID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return orders.PlaceOrderInput{}, apperror.BadRequest("invalid productId")
		}
		in.Lines = append(in.Lines, orders.CartLine{ProductID: productID, Quantity: item.Quantity})
	}
	return in, nil
}

/* =========================
   CREATE ORDER
========================= */

// CreateOrder places an order for the caller. With an Idempotency-Key header
// a retried request replays the first response.
func CreateOrder(svc OrderService, idem idempotency.Store, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperror.BadRequest("invalid request body"))
			return
		}
		in, err := req.toInput()
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		ctx := c.Request.Context()
		key := strings.TrimSpace(c.GetHeader(idempotency.Header))
		if key == "" || idem == nil {
			place(c, svc, logger, route, who, in, nil)
			return
		}

		scope := who.ID.Hex()
		rec, err := idem.Lookup(ctx, scope, key)
		if err != nil {
			logger.Warn("idempotency lookup failed, placing without it", zap.String("key", key), zap.Error(err))
			place(c, svc, logger, route, who, in, nil)
			return
		}
		if rec != nil {
			replay(c, rec)
			return
		}

		claimed, err := idem.Claim(ctx, scope, key)
		if err != nil {
			logger.Warn("idempotency claim failed, placing without it", zap.String("key", key), zap.Error(err))
			place(c, svc, logger, route, who, in, nil)
			return
		}
		if !claimed {
			if rec, err := idem.Lookup(ctx, scope, key); err == nil && rec != nil && rec.State == idempotency.StateDone {
				replay(c, rec)
				return
			}
			inProgress(c)
			return
		}

		place(c, svc, logger, route, who, in, func(status int, body []byte, placeErr error) {
			// Completion must survive a cancelled request context.
			bg := context.WithoutCancel(ctx)
			if placeErr != nil {
				if err := idem.Abandon(bg, scope, key); err != nil {
					logger.Warn("idempotency abandon failed", zap.String("key", key), zap.Error(err))
				}
				return
			}
			if err := idem.Complete(bg, scope, key, idempotency.Record{StatusCode: status, Body: body}); err != nil {
				logger.Warn("idempotency complete failed", zap.String("key", key), zap.Error(err))
			}
		})
	}
}

func place(c *gin.Context, svc OrderService, logger *zap.Logger, route string, who models.Identity, in orders.PlaceOrderInput, done func(status int, body []byte, err error)) {
	order, err := svc.PlaceOrder(c.Request.Context(), who, in)
	if err != nil {
		if done != nil {
			done(0, nil, err)
		}
		respondWithError(c, logger, route, err)
		return
	}

	body, err := json.Marshal(gin.H{"success": true, "order": order})
	if err != nil {
		if done != nil {
			done(0, nil, err)
		}
		respondWithError(c, logger, route, apperror.Server("Failed to create order", err))
		return
	}
	if done != nil {
		done(http.StatusCreated, body, nil)
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func replay(c *gin.Context, rec *idempotency.Record) {
	if rec.State != idempotency.StateDone {
		inProgress(c)
		return
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(rec.StatusCode, "application/json; charset=utf-8", rec.Body)
}

func inProgress(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusConflict, gin.H{
		"success":  false,
		"message":  "A request with this Idempotency-Key is already in progress",
		"category": "conflict",
	})
}

/* =========================
   CUSTOMER ORDERS
========================= */

func GetMyOrders(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		page, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		list, info, err := svc.ListUserOrders(c.Request.Context(), who, page)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orders": list, "pagination": info})
	}
}

func GetOrder(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		id, err := orderIDParam(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		order, err := svc.GetOrder(c.Request.Context(), who, id)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	}
}

func PayOrder(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/pay"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		id, err := orderIDParam(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		var result models.PaymentResult
		if err := c.ShouldBindJSON(&result); err != nil {
			respondWithError(c, logger, route, apperror.BadRequest("invalid request body"))
			return
		}

		order, err := svc.MarkPaid(c.Request.Context(), who, id, result)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	}
}

func CancelOrder(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/cancel"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		id, err := orderIDParam(c)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		order, err := svc.CancelOrder(c.Request.Context(), who, id)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Order cancelled successfully",
			"order":   order,
		})
	}
}
