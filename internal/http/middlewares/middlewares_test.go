package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/projecthub/internal/actorctx"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type fakeVerifier struct {
	claims map[string]*auth.Claims
}

func (f fakeVerifier) VerifyAccessToken(_ context.Context, token string) (*auth.Claims, error) {
	c, ok := f.claims[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return c, nil
}

func claimsFor(sub string, roles ...string) *auth.Claims {
	c := &auth.Claims{RealmAccess: auth.RealmAccess{Roles: roles}}
	c.Subject = sub
	return c
}

type fakeUsers struct {
	byID map[string]user.User
}

func (f fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	m := middlewares.NewAuthMiddleware(fakeVerifier{claims: map[string]*auth.Claims{
		"admin-token": claimsFor("kc-admin", "ADMIN", "USER"),
		"user-token":  claimsFor("kc-user", "USER"),
	}})
	users := fakeUsers{byID: map[string]user.User{
		"u-1": {ID: "u-1", ExternalID: "kc-user"},
		"u-2": {ID: "u-2", ExternalID: "kc-other"},
	}}

	r := gin.New()
	r.Use(middlewares.RequestID())
	api := r.Group("/api", m.RequireAuth())
	api.GET("/me", func(c *gin.Context) {
		actor, _ := actorctx.UserIDFrom(c.Request.Context())
		c.String(http.StatusOK, actor)
	})
	api.DELETE("/users/:id", m.RequireRole("ADMIN"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.GET("/users/:id/document", m.RequireSelfOrRole("ADMIN", "id", users), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAndRoles(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/me", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/me", "nope", http.StatusUnauthorized},
		{"valid token", http.MethodGet, "/api/me", "user-token", http.StatusOK},
		{"admin only as user", http.MethodDelete, "/api/users/u-2", "user-token", http.StatusForbidden},
		{"admin only as admin", http.MethodDelete, "/api/users/u-2", "admin-token", http.StatusNoContent},
		{"own document", http.MethodGet, "/api/users/u-1/document", "user-token", http.StatusOK},
		{"someone else's document", http.MethodGet, "/api/users/u-2/document", "user-token", http.StatusForbidden},
		{"unknown user as user", http.MethodGet, "/api/users/u-9/document", "user-token", http.StatusForbidden},
		{"any document as admin", http.MethodGet, "/api/users/u-9/document", "admin-token", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.token)
			if w.Code != tt.want {
				t.Fatalf("got %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireAuth_PutsActorOnRequestContext(t *testing.T) {
	w := do(newAuthRouter(), http.MethodGet, "/api/me", "admin-token")
	if w.Body.String() != "kc-admin" {
		t.Fatalf("actor = %q", w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := middlewares.NewRateLimiter(0.001, 2)
	r := gin.New()
	r.POST("/signup", rl.RateLimiterMiddleware(middlewares.KeyByIP), func(c *gin.Context) { c.Status(http.StatusCreated) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/signup", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("10.0.0.1"); w.Code != http.StatusCreated {
			t.Fatalf("request %d within burst got %d", i, w.Code)
		}
	}

	w := send("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}

	if w := send("10.0.0.2"); w.Code != http.StatusCreated {
		t.Fatalf("other clients have their own bucket, got %d", w.Code)
	}
}

func TestRequireJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name string
		body string
		ct   string
		want int
	}{
		{"json", `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"text", `{}`, "text/plain", http.StatusUnsupportedMediaType},
		{"empty body", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMaxBodyBytes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/x", middlewares.MaxBodyBytes(4), func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.Status(http.StatusRequestEntityTooLarge)
				return
			}
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("too long"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d", w.Code)
	}
}
