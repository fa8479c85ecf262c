package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"storefront/internal/idempotency"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
)

type RouterConfig struct {
	Orders         OrderService
	Idempotency    idempotency.Store
	JWTSecret      string
	RequestTimeout time.Duration
	Health         HealthStatus
	HTTPMetrics    *metrics.HTTP
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(logger), middleware.Recovery(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware())
	}

	r.GET("/health", Health(cfg.Health, logger))
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Gatherer)))
	}

	api := r.Group("/api")
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	user := middleware.UserAuth(cfg.JWTSecret, logger)
	admin := middleware.AdminAuth(cfg.JWTSecret, logger)

	orders := api.Group("/orders")
	{
		orders.POST("", user, CreateOrder(cfg.Orders, cfg.Idempotency, logger))
		orders.GET("", user, GetMyOrders(cfg.Orders, logger))
		orders.GET("/admin/all", admin, GetAllOrders(cfg.Orders, logger))
		orders.GET("/:id", user, GetOrder(cfg.Orders, logger))
		orders.PUT("/:id/pay", user, PayOrder(cfg.Orders, logger))
		orders.PUT("/:id/cancel", user, CancelOrder(cfg.Orders, logger))
		orders.PUT("/:id/status", admin, UpdateOrderStatus(cfg.Orders, logger))
		orders.PUT("/:id/deliver", admin, DeliverOrder(cfg.Orders, logger))
	}

	api.GET("/analytics/orders", admin, OrderAnalytics(cfg.Orders, logger))

	return r
}
