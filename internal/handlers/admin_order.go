package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/models"
	"storefront/internal/orders"
)

type updateStatusRequest struct {
	Status         string `json:"status" binding:"required"`
	TrackingNumber string `json:"trackingNumber"`
	Notes          string `json:"notes"`
}

func GetAllOrders(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/all"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		page, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}

		var filter models.OrderFilter
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			status, ok := models.ParseOrderStatus(raw)
			if !ok {
				respondWithError(c, logger, route, apperror.BadRequest("Invalid order status"))
				return
			}
			filter.Status = &status
		}

		list, info, err := svc.ListAllOrders(c.Request.Context(), who, filter, page)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "orders": list, "pagination": info})
	}
}

func UpdateOrderStatus(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/status"

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, logger, route, apperror.BadRequest("status is required"))
			return
		}
		updateStatus(c, svc, logger, route, orders.StatusUpdate{
			Status:         models.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
			TrackingNumber: strings.TrimSpace(req.TrackingNumber),
			Notes:          strings.TrimSpace(req.Notes),
		})
	}
}

// DeliverOrder is the shortcut for moving an order to delivered.
func DeliverOrder(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		updateStatus(c, svc, logger, "PUT /api/orders/:id/deliver", orders.StatusUpdate{Status: models.StatusDelivered})
	}
}

func updateStatus(c *gin.Context, svc OrderService, logger *zap.Logger, route string, upd orders.StatusUpdate) {
	who, ok := identity(c, logger, route)
	if !ok {
		return
	}
	id, err := orderIDParam(c)
	if err != nil {
		respondWithError(c, logger, route, err)
		return
	}

	order, err := svc.UpdateStatus(c.Request.Context(), who, id, upd)
	if err != nil {
		respondWithError(c, logger, route, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "order": order})
}

func OrderAnalytics(svc OrderService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/analytics/orders"

		who, ok := identity(c, logger, route)
		if !ok {
			return
		}
		stats, err := svc.Stats(c.Request.Context(), who)
		if err != nil {
			respondWithError(c, logger, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}
