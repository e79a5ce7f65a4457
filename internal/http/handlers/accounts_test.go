package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/geocoder89/taskflow/internal/accounts"
	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/http/handlers"
	"github.com/geocoder89/taskflow/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type fakeAccounts struct {
	RegisterFn   func(ctx context.Context, req user.RegisterRequest) (user.Token, error)
	LoginFn      func(ctx context.Context, req user.LoginRequest) (user.Token, error)
	LogoutFn     func(ctx context.Context, u user.User, token string) error
	ProfileFn    func(ctx context.Context, u user.User) (accounts.Profile, error)
	AssignRoleFn func(ctx context.Context, userID int64, name rbac.RoleName) (rbac.UserRole, error)
	RemoveRoleFn func(ctx context.Context, userID int64, name rbac.RoleName) error
}

func (f *fakeAccounts) Register(ctx context.Context, req user.RegisterRequest) (user.Token, error) {
	return f.RegisterFn(ctx, req)
}

func (f *fakeAccounts) Login(ctx context.Context, req user.LoginRequest) (user.Token, error) {
	return f.LoginFn(ctx, req)
}

func (f *fakeAccounts) Logout(ctx context.Context, u user.User, token string) error {
	return f.LogoutFn(ctx, u, token)
}

func (f *fakeAccounts) Profile(ctx context.Context, u user.User) (accounts.Profile, error) {
	return f.ProfileFn(ctx, u)
}

func (f *fakeAccounts) AssignRole(ctx context.Context, userID int64, name rbac.RoleName) (rbac.UserRole, error) {
	return f.AssignRoleFn(ctx, userID, name)
}

func (f *fakeAccounts) RemoveRole(ctx context.Context, userID int64, name rbac.RoleName) error {
	return f.RemoveRoleFn(ctx, userID, name)
}

// withUser stands in for the auth middleware.
func withUser(u user.User, token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.CtxUser, u)
		c.Set(middlewares.CtxToken, token)
		c.Next()
	}
}

func accountsRouter(svc handlers.AccountsService, u *user.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewAccountsHandler(svc)

	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	authed := r.Group("")
	if u != nil {
		authed.Use(withUser(*u, "tok-1"))
	}
	authed.POST("/logout", h.Logout)
	authed.GET("/me", h.Me)
	authed.PUT("/users/:id/roles/:role", h.AssignRole)
	authed.DELETE("/users/:id/roles/:role", h.RemoveRole)
	return r
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func detailOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal body: %v body=%s", err, w.Body.String())
	}
	return body.Detail
}

const registerBody = `{"email":"a@example.com","password":"password123","first_name":"A","last_name":"B"}`

func TestRegister(t *testing.T) {
	cases := map[string]struct {
		err        error
		wantStatus int
		wantDetail string
	}{
		"created":        {wantStatus: http.StatusCreated},
		"duplicate":      {err: user.ErrEmailTaken, wantStatus: http.StatusBadRequest, wantDetail: "Email already registered"},
		"internal error": {err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantDetail: "Could not create user"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeAccounts{
				RegisterFn: func(ctx context.Context, req user.RegisterRequest) (user.Token, error) {
					if req.Email != "a@example.com" {
						t.Fatalf("unexpected email %q", req.Email)
					}
					return user.Token{Value: "abc"}, tc.err
				},
			}

			w := send(accountsRouter(svc, nil), http.MethodPost, "/register", registerBody)
			if w.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantDetail != "" && detailOf(t, w) != tc.wantDetail {
				t.Fatalf("unexpected detail %q", detailOf(t, w))
			}
			if tc.err == nil && w.Body.String() != `{"token":"abc"}` {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestRegister_InvalidBodyNeverReachesService(t *testing.T) {
	svc := &fakeAccounts{
		RegisterFn: func(context.Context, user.RegisterRequest) (user.Token, error) {
			t.Fatal("service should not be called")
			return user.Token{}, nil
		},
	}

	w := send(accountsRouter(svc, nil), http.MethodPost, "/register", `{"email":"nope","password":"short"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRegister_PasswordByteLimit(t *testing.T) {
	called := 0
	svc := &fakeAccounts{
		RegisterFn: func(context.Context, user.RegisterRequest) (user.Token, error) {
			called++
			return user.Token{Value: "abc"}, nil
		},
	}
	r := accountsRouter(svc, nil)

	body := func(password string) string {
		return `{"email":"a@example.com","password":"` + password + `","first_name":"A","last_name":"B"}`
	}

	// 40 runes but 80 bytes
	w := send(r, http.MethodPost, "/register", body(strings.Repeat("é", 40)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	var resp struct {
		Fields []handlers.FieldError `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal body: %v", err)
	}
	if len(resp.Fields) != 1 || resp.Fields[0].Field != "password" || resp.Fields[0].Rule != "maxbytes" {
		t.Fatalf("unexpected fields %+v", resp.Fields)
	}
	if called != 0 {
		t.Fatal("service should not be called for an oversize password")
	}

	w = send(r, http.MethodPost, "/register", body(strings.Repeat("a", 72)))
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &fakeAccounts{
		LoginFn: func(context.Context, user.LoginRequest) (user.Token, error) {
			return user.Token{}, accounts.ErrInvalidCredentials
		},
	}

	w := send(accountsRouter(svc, nil), http.MethodPost, "/login", `{"email":"a@example.com","password":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if got := detailOf(t, w); got != "Invalid credentials" {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestLogout(t *testing.T) {
	u := user.User{ID: 7, Email: "a@example.com"}

	var gotToken string
	svc := &fakeAccounts{
		LogoutFn: func(_ context.Context, got user.User, token string) error {
			if got.ID != 7 {
				t.Fatalf("unexpected user %d", got.ID)
			}
			gotToken = token
			return nil
		},
	}

	w := send(accountsRouter(svc, &u), http.MethodPost, "/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotToken != "tok-1" {
		t.Fatalf("expected the request token to be revoked, got %q", gotToken)
	}

	svc.LogoutFn = func(context.Context, user.User, string) error { return user.ErrTokenNotFound }
	w = send(accountsRouter(svc, &u), http.MethodPost, "/logout", "")
	if w.Code != http.StatusNotFound || detailOf(t, w) != "Token not found" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestLogout_WithoutUserIsUnauthorized(t *testing.T) {
	w := send(accountsRouter(&fakeAccounts{}, nil), http.MethodPost, "/logout", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestMe(t *testing.T) {
	u := user.User{ID: 3, Email: "m@example.com"}
	svc := &fakeAccounts{
		ProfileFn: func(_ context.Context, got user.User) (accounts.Profile, error) {
			return accounts.Profile{
				User:        got,
				Roles:       []rbac.RoleName{rbac.RoleManager},
				Permissions: []rbac.PermissionName{rbac.CreateTask},
			}, nil
		},
	}

	w := send(accountsRouter(svc, &u), http.MethodGet, "/me", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}

	var p accounts.Profile
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("failed to unmarshal profile: %v", err)
	}
	if p.User.ID != 3 || len(p.Roles) != 1 || p.Roles[0] != rbac.RoleManager {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestAssignRole(t *testing.T) {
	admin := user.User{ID: 1, SuperUser: true}

	cases := map[string]struct {
		path       string
		err        error
		wantStatus int
		wantDetail string
	}{
		"lowercase role is normalized": {path: "/users/5/roles/manager", wantStatus: http.StatusOK},
		"unknown user":                 {path: "/users/5/roles/ADMIN", err: user.ErrNotFound, wantStatus: http.StatusNotFound, wantDetail: "User not found"},
		"unknown role":                 {path: "/users/5/roles/OWNER", err: rbac.ErrRoleNotFound, wantStatus: http.StatusNotFound, wantDetail: "Role not found"},
		"bad id":                       {path: "/users/zero/roles/ADMIN", wantStatus: http.StatusBadRequest, wantDetail: "Invalid id"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &fakeAccounts{
				AssignRoleFn: func(_ context.Context, userID int64, role rbac.RoleName) (rbac.UserRole, error) {
					if userID != 5 {
						t.Fatalf("unexpected user id %d", userID)
					}
					return rbac.UserRole{UserID: userID, RoleID: 2}, tc.err
				},
			}

			w := send(accountsRouter(svc, &admin), http.MethodPut, tc.path, "")
			if w.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			if tc.wantDetail != "" && detailOf(t, w) != tc.wantDetail {
				t.Fatalf("unexpected detail %q", detailOf(t, w))
			}
			if tc.wantStatus == http.StatusOK && w.Body.String() != `{"role":"MANAGER","user_id":5}` {
				t.Fatalf("unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestRemoveRole(t *testing.T) {
	admin := user.User{ID: 1, SuperUser: true}

	var gotRole rbac.RoleName
	svc := &fakeAccounts{
		RemoveRoleFn: func(_ context.Context, _ int64, role rbac.RoleName) error {
			gotRole = role
			return nil
		},
	}

	w := send(accountsRouter(svc, &admin), http.MethodDelete, "/users/5/roles/user", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNoContent)
	}
	if gotRole != rbac.RoleUser {
		t.Fatalf("expected USER, got %q", gotRole)
	}
}
