package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/geocoder89/taskflow/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func TestReadyz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	cases := map[string]struct {
		checks     map[string]handlers.Check
		wantStatus int
		wantBody   string
	}{
		"no dependencies": {checks: nil, wantStatus: http.StatusOK, wantBody: `"status":"ready"`},
		"all up":          {checks: map[string]handlers.Check{"postgres": up}, wantStatus: http.StatusOK, wantBody: `"postgres":"ok"`},
		"one down":        {checks: map[string]handlers.Check{"postgres": up, "redis": down}, wantStatus: http.StatusServiceUnavailable, wantBody: `"redis":"dial tcp: refused"`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := gin.New()
			r.GET("/readyz", handlers.NewHealthHandler(tc.checks).Readyz)

			w := send(r, http.MethodGet, "/readyz", "")
			if w.Code != tc.wantStatus {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tc.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Fatalf("expected %s in body %s", tc.wantBody, w.Body.String())
			}
		})
	}
}
