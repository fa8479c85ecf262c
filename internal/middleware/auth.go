package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/models"
)

const identityKey = "identity"

// Claims is the access token payload. Tokens are issued elsewhere; userId is
// preferred and sub is accepted as a fallback.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Role   string `json:"role,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func parseIdentity(header, secret string) (models.Identity, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return models.Identity{}, errors.New("missing token")
	}

	parts := strings.Split(raw, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return models.Identity{}, errors.New("invalid token format")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	subject := strings.TrimSpace(claims.UserID)
	if subject == "" {
		subject = strings.TrimSpace(claims.Subject)
	}
	if subject == "" {
		return models.Identity{}, errors.New("userId claim missing")
	}
	userID, err := primitive.ObjectIDFromHex(subject)
	if err != nil {
		return models.Identity{}, errors.New("invalid userId")
	}

	role := claims.Role
	if role == "" {
		role = models.RoleUser
	}
	return models.Identity{ID: userID, Role: role, Email: claims.Email}, nil
}

// AuthGuard validates the bearer token and stores the caller's identity on the
// context. With allowedRoles set, other roles are refused with 403.
func AuthGuard(secret string, logger *zap.Logger, allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, err := parseIdentity(c.GetHeader("Authorization"), secret)
		if err != nil {
			logger.Info("auth rejected", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success":  false,
				"message":  "Not authorized, token failed",
				"category": "unauthorized",
			})
			return
		}

		if len(allowedRoles) > 0 {
			match := false
			for _, r := range allowedRoles {
				if who.Role == r {
					match = true
					break
				}
			}
			if !match {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success":  false,
					"message":  "Admin access required",
					"category": "forbidden",
				})
				return
			}
		}

		c.Set(identityKey, who)
		c.Next()
	}
}

func UserAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return AuthGuard(secret, logger)
}

func AdminAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return AuthGuard(secret, logger, models.RoleAdmin)
}

// IdentityFrom returns the identity set by AuthGuard.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	who, ok := v.(models.Identity)
	return who, ok
}
