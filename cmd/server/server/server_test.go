package server

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/cachewatch/cmd/server/config"
	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Metrics.Enabled = false
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestNewService_ArchiveDisabled(t *testing.T) {
	cfg := testConfig(t)

	svc, err := NewService(context.Background(), cfg, zerolog.Nop(), metrics.NewNoOpCollector())
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.History(context.Background(), "", 10)
	assert.ErrorIs(t, err, errors.ErrArchiveDisabled)

	_, err = svc.ProbeFlight(context.Background())
	assert.Equal(t, errors.CodeUnavailable, errors.GetCode(err))
}

func TestNewService_SQLiteArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = true
	cfg.Archive.Driver = "sqlite"
	cfg.Archive.DSN = ":memory:"

	svc, err := NewService(context.Background(), cfg, zerolog.Nop(), metrics.NewNoOpCollector())
	require.NoError(t, err)
	defer svc.Close()

	plans, err := svc.History(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestNewService_BadArchiveDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = true
	cfg.Archive.Driver = "postgres"

	_, err := NewService(context.Background(), cfg, zerolog.Nop(), metrics.NewNoOpCollector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open plan archive")
}

func TestServer_Handler(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{
		Enabled: true,
		Type:    "bearer",
		BearerAuth: config.BearerAuthConfig{
			Tokens: map[string]string{"ops-token": "ops"},
		},
	}
	cfg.CORSOrigins = []string{"https://ops.example"}

	svc, err := NewService(context.Background(), cfg, zerolog.Nop(), metrics.NewNoOpCollector())
	require.NoError(t, err)
	srv := New(cfg, svc, zerolog.Nop(), metrics.NewNoOpCollector(), nil)
	defer srv.Shutdown(context.Background())

	t.Run("health check is public", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("dashboard requires a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions/shutdown", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cors preflight is answered without a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/snapshot", nil)
		req.Header.Set("Origin", "https://ops.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		req.Header.Set("Access-Control-Request-Headers", "Authorization")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://ops.example", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("authorized request reaches the handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.Header.Set("Authorization", "Bearer ops-token")
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"size"`)
	})
}

func TestServer_StartAndShutdown(t *testing.T) {
	cfg := testConfig(t)

	svc, err := NewService(context.Background(), cfg, zerolog.Nop(), metrics.NewNoOpCollector())
	require.NoError(t, err)
	srv := New(cfg, svc, zerolog.Nop(), metrics.NewNoOpCollector(), nil)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	require.Eventually(t, func() bool {
		addr := srv.Addr()
		if strings.HasSuffix(addr, ":0") {
			return false
		}
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "ok")
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestZlog_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(zerolog.New(&buf), "dashboard")

	l.Warn("Dropped execution plan", "host", "http://a:1", "error", stderrors.New("bad json"), 42, "ignored", "plans", 3)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"component":"dashboard"`)
	assert.Contains(t, out, `"host":"http://a:1"`)
	assert.Contains(t, out, `"error":"bad json"`)
	assert.Contains(t, out, `"plans":3`)
	assert.NotContains(t, out, "ignored")
}

func TestServiceTimer(t *testing.T) {
	m := serviceMetrics{metrics.NewNoOpCollector()}
	timer := m.StartTimer("refresh_plans")
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
