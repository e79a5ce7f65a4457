package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/geocoder89/taskflow/internal/actorctx"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	log.InfoContext(ctx, "inside span")
	span.End()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
}

func TestLogger_AddsRequestAttribution(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "prod")

	ctx := actorctx.WithRequestID(context.Background(), "req-7")
	ctx = actorctx.WithUser(ctx, user.User{ID: 12})
	log.InfoContext(ctx, "role assigned")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-7", rec["request_id"])
	assert.Equal(t, 12.0, rec["user_id"])
	assert.NotContains(t, rec, "trace_id")
}

func TestLogger_DebugOnlyInDev(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "prod").Debug("hidden")
	assert.Zero(t, buf.Len())

	newLogger(&buf, "dev").Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestProm_ObserveDecision(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	p.ObserveDecision("CREATE_TASK", true, nil)
	p.ObserveDecision("CREATE_TASK", false, nil)
	p.ObserveDecision("CREATE_TASK", false, nil)
	p.ObserveDecision("CREATE_TASK", false, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.AuthzDecisions.WithLabelValues("CREATE_TASK", "allow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.AuthzDecisions.WithLabelValues("CREATE_TASK", "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.AuthzDecisions.WithLabelValues("CREATE_TASK", "error")))
}

func TestProm_ObserveDB(t *testing.T) {
	p := NewProm(prometheus.NewRegistry())

	require.NoError(t, p.ObserveDB("users.get_by_id", func() error { return nil }))
	err := p.ObserveDB("users.get_by_id", func() error { return errors.New("connection reset") })
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.DbErrorsTotal.WithLabelValues("users.get_by_id", "connection")))

	err = p.ObserveDB("users.get_by_id", func() error { return fmt.Errorf("scan: %w", pgx.ErrNoRows) })
	require.ErrorIs(t, err, pgx.ErrNoRows)
	assert.Equal(t, 1, testutil.CollectAndCount(p.DbErrorsTotal), "a miss must not add an error series")
}

func TestClassifyDBErr(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"unique":      {err: &pgconn.PgError{Code: "23505"}, want: "unique_violation"},
		"foreign key": {err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"}), want: "foreign_key_violation"},
		"other pg":    {err: &pgconn.PgError{Code: "42P01"}, want: "pg_42P01"},
		"deadline":    {err: context.DeadlineExceeded, want: "timeout"},
		"canceled":    {err: context.Canceled, want: "canceled"},
		"opaque":      {err: errors.New("boom"), want: "unknown"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyDBErr(tc.err))
		})
	}
}

func TestInitTracer_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TracerConfig{ServiceName: "taskflow-test", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
