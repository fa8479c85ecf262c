package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/middleware"
	"storefront/internal/models"
)

// respondWithError maps err onto its HTTP status and the public error body.
// Server errors are logged here; their causes never reach the client.
func respondWithError(c *gin.Context, logger *zap.Logger, route string, err error) {
	kind := apperror.KindOf(err)
	status := apperror.HTTPStatus(kind)

	body := gin.H{
		"success":  false,
		"message":  apperror.PublicMessage(err),
		"category": string(kind),
	}
	var stock *apperror.StockError
	if errors.As(err, &stock) {
		body["productId"] = stock.ProductID
		body["available"] = stock.Available
		body["requested"] = stock.Requested
	}

	fields := []zap.Field{
		zap.String("route", route),
		zap.String("requestId", middleware.RequestIDFrom(c)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Debug("request rejected", fields...)
	}
	c.AbortWithStatusJSON(status, body)
}

func identity(c *gin.Context, logger *zap.Logger, route string) (models.Identity, bool) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		logger.Error("identity missing on authenticated route", zap.String("route", route))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success":  false,
			"message":  "Not authorized, token failed",
			"category": "unauthorized",
		})
	}
	return who, ok
}

func orderIDParam(c *gin.Context) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		return primitive.NilObjectID, apperror.BadRequest("Invalid order id")
	}
	return id, nil
}
