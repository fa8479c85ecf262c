package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storefront/internal/models"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims jwt.Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func guardedRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", guard, func(c *gin.Context) {
		who, ok := IdentityFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": who.ID.Hex(), "role": who.Role, "email": who.Email})
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserAuth(t *testing.T) {
	userID := primitive.NewObjectID()
	r := guardedRouter(UserAuth(testSecret, zap.NewNop()))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", signed(t, Claims{UserID: userID.Hex()}, "other"), http.StatusUnauthorized},
		{"missing subject", signed(t, Claims{Role: models.RoleUser}, testSecret), http.StatusUnauthorized},
		{"bad object id", signed(t, Claims{UserID: "42"}, testSecret), http.StatusUnauthorized},
		{"expired", signed(t, Claims{UserID: userID.Hex(), RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}, testSecret), http.StatusUnauthorized},
		{"userId claim", signed(t, Claims{UserID: userID.Hex()}, testSecret), http.StatusOK},
		{"sub claim", signed(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID.Hex()}}, testSecret), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.header)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestUserAuthDefaultsRole(t *testing.T) {
	userID := primitive.NewObjectID()
	r := guardedRouter(UserAuth(testSecret, zap.NewNop()))

	w := call(r, signed(t, Claims{UserID: userID.Hex(), Email: "a@b.c"}, testSecret))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	want := `{"email":"a@b.c","id":"` + userID.Hex() + `","role":"user"}`
	if w.Body.String() != want {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestAdminAuth(t *testing.T) {
	userID := primitive.NewObjectID()
	r := guardedRouter(AdminAuth(testSecret, zap.NewNop()))

	if w := call(r, signed(t, Claims{UserID: userID.Hex(), Role: models.RoleUser}, testSecret)); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for user role, got %d", w.Code)
	}
	if w := call(r, signed(t, Claims{UserID: userID.Hex(), Role: models.RoleAdmin}, testSecret)); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin role, got %d", w.Code)
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)), Recovery(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
	entries := logs.FilterMessage("request").AllUntimed()
	if len(entries) != 1 || entries[0].ContextMap()["requestId"] != "req-123" {
		t.Fatalf("expected one request log with id, got %+v", entries)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic to be logged")
	}
}
