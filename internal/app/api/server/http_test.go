package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/donations/internal/app/service/donation"
	eventlog "github.com/fatflowers/donations/internal/app/service/gateway_event_log"
	nh "github.com/fatflowers/donations/internal/app/service/notification_handler"
	"github.com/fatflowers/donations/internal/app/service/reconciler"
	"github.com/fatflowers/donations/internal/app/service/statistics"
	"github.com/fatflowers/donations/internal/platform/db/dbtest"
	"github.com/fatflowers/donations/internal/repository"
	cfgpkg "github.com/fatflowers/donations/pkg/config"
)

func testConfig() *cfgpkg.Config {
	cfg := &cfgpkg.Config{}
	cfg.Auth.JWTSecret = "server-test"
	cfg.RateLimit.RPS = 100
	cfg.RateLimit.Burst = 100
	cfg.OTEL.ServiceName = "donations-test"
	cfg.CORS.AllowedOrigins = []string{"https://give.example.org"}
	return cfg
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	cfg := testConfig()
	gdb := dbtest.New(t)
	repos := repository.New(gdb)

	r := newEngine(cfg)
	require.NoError(t, registerRoutes(routeParams{
		Engine:     r,
		Log:        log,
		Config:     cfg,
		DB:         gdb,
		Prometheus: newPrometheus(cfg, log),
		Donations:  donation.NewService(cfg, repos, nil, nil, log),
		Statistics: statistics.New(gdb),
		Webhooks:   nh.New(nil, reconciler.NewService(repos, nil, log), eventlog.New(gdb, log), log),
	}))
	return r
}

func serve(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewPrometheus_DisabledWithoutAddress(t *testing.T) {
	require.Nil(t, newPrometheus(&cfgpkg.Config{}, zap.NewNop().Sugar()))
}

func TestRoutes(t *testing.T) {
	r := newTestEngine(t)

	w := serve(r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/swagger/doc.json", nil).Code)

	// admin requires a token carrying the admin role
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodPost, "/api/v1/admin/statistics", nil).Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/donations/x", map[string]string{"Authorization": "Bearer nope"}).Code)

	// anonymous reads go through
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/donations/x", nil).Code)

	// no decoder registered for stripe in this engine
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/v2/payment/webhook/stripe", nil).Code)
}

func TestCORS(t *testing.T) {
	r := newTestEngine(t)

	w := serve(r, http.MethodOptions, "/api/v1/donations", map[string]string{
		"Origin":                        "https://give.example.org",
		"Access-Control-Request-Method": "POST",
	})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://give.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/healthz", map[string]string{"Origin": "https://evil.example.com"})
	require.Equal(t, http.StatusForbidden, w.Code)
}
