package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/taskflow/internal/app"
	"github.com/geocoder89/taskflow/internal/config"
	"github.com/geocoder89/taskflow/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminEmail    = "root@example.com"
	adminPassword = "rootpass1"
)

func testConfig() config.Config {
	return config.Config{
		Env:             "test",
		StoreDriver:     config.StoreDriverMemory,
		AuthzCache:      config.CacheNone,
		AuthzCacheTTL:   time.Minute,
		AdminEmail:      adminEmail,
		AdminPassword:   adminPassword,
		AdminFirstName:  "Root",
		AdminLastName:   "Admin",
		OTelServiceName: "taskflow-test",
		LoginRateLimit:  1000,
		LoginRateWindow: time.Minute,
		MaxBodyBytes:    1 << 20,
	}
}

func setupRouter(t *testing.T, cfg config.Config, opts ...app.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	opts = append([]app.Option{app.WithHasher(security.NewHasher(bcrypt.MinCost))}, opts...)
	a, err := app.New(context.Background(), cfg, logger, opts...)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(a.Close)

	if _, err := a.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	return a.Router
}

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func (c apiClient) do(method, path, token string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func (c apiClient) expect(w *httptest.ResponseRecorder, status int) {
	c.t.Helper()
	if w.Code != status {
		c.t.Fatalf("got status %d, want %d, body=%s", w.Code, status, w.Body.String())
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body: %v body=%s", err, w.Body.String())
	}
	return out
}

type tokenBody struct {
	Token string `json:"token"`
}

type detailBody struct {
	Detail string `json:"detail"`
}

type profileBody struct {
	User struct {
		ID        int64  `json:"id"`
		Email     string `json:"email"`
		SuperUser bool   `json:"super_user"`
	} `json:"user"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type taskBody struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority"`
	ResponsibleID int64   `json:"responsible_id"`
	ExecutorIDs   []int64 `json:"executor_ids"`
}

func (c apiClient) register(email string) string {
	c.t.Helper()
	w := c.do(http.MethodPost, "/accounts/register", "", map[string]any{
		"email":      email,
		"password":   "password123",
		"first_name": "Test",
		"last_name":  "User",
	})
	c.expect(w, http.StatusCreated)
	return decode[tokenBody](c.t, w).Token
}

func (c apiClient) login(email, password string) string {
	c.t.Helper()
	w := c.do(http.MethodPost, "/accounts/login", "", map[string]any{"email": email, "password": password})
	c.expect(w, http.StatusOK)
	return decode[tokenBody](c.t, w).Token
}

func (c apiClient) me(token string) profileBody {
	c.t.Helper()
	w := c.do(http.MethodGet, "/accounts/me", token, nil)
	c.expect(w, http.StatusOK)
	return decode[profileBody](c.t, w)
}

func httptestRequest(method, path, contentType, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
