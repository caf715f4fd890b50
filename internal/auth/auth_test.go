package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerify_validToken(t *testing.T) {
	v := NewVerifier(testSecret, false)
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username:          "alice",
		Groups:            []string{"mcp-registry-user"},
		AccessibleServers: []string{"fininfo"},
	})

	ctx, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ctx.Username != "alice" {
		t.Errorf("Username = %q", ctx.Username)
	}
	if !ctx.HasGroup("mcp-registry-user") {
		t.Error("group missing from context")
	}
	if ctx.IsAdmin {
		t.Error("IsAdmin unexpectedly true")
	}
}

func TestVerify_subjectFallback(t *testing.T) {
	v := NewVerifier(testSecret, false)
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "bob",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	ctx, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ctx.Username != "bob" {
		t.Errorf("Username = %q, want subject fallback bob", ctx.Username)
	}
}

func TestVerify_rejectsBadSignature(t *testing.T) {
	v := NewVerifier("other-secret", false)
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "mallory",
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("token with wrong signature accepted")
	}
}

func TestVerify_rejectsExpired(t *testing.T) {
	v := NewVerifier(testSecret, false)
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Username: "alice",
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func setupRouter(v *Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Middleware(v, zap.NewNop()), func(c *gin.Context) {
		authCtx, _ := FromGin(c)
		c.JSON(http.StatusOK, gin.H{"username": authCtx.Username, "is_admin": authCtx.IsAdmin})
	})
	return r
}

func TestMiddleware_missingToken(t *testing.T) {
	r := setupRouter(NewVerifier(testSecret, false))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestMiddleware_validToken(t *testing.T) {
	r := setupRouter(NewVerifier(testSecret, false))
	token := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: "alice",
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestMiddleware_devModeAnonymousAdmin(t *testing.T) {
	r := setupRouter(NewVerifier("", true))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"is_admin":true`) || !strings.Contains(body, `"username":"anonymous"`) {
		t.Errorf("body = %s", body)
	}
}
