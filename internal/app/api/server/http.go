package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/donations/docs"
	"github.com/fatflowers/donations/internal/app/api/handlers"
	mw "github.com/fatflowers/donations/internal/app/api/middleware"
	"github.com/fatflowers/donations/internal/app/service/donation"
	nh "github.com/fatflowers/donations/internal/app/service/notification_handler"
	"github.com/fatflowers/donations/internal/app/service/statistics"
	cfgpkg "github.com/fatflowers/donations/pkg/config"
	"github.com/fatflowers/donations/pkg/metrics"
	"github.com/fatflowers/donations/pkg/types"
)

func newEngine(cfg *cfgpkg.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", mw.RequestIDHeader},
			ExposeHeaders: []string{mw.RequestIDHeader, "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

// newPrometheus returns nil when no metrics listener is configured.
func newPrometheus(cfg *cfgpkg.Config, log *zap.SugaredLogger) *metrics.Prometheus {
	if cfg.MetricsAddr == "" {
		return nil
	}
	p := metrics.NewPrometheus(metrics.NewPrometheusOptions{Subsystem: "donations", Logger: log})
	p.SetListenAddress(cfg.MetricsAddr)
	return p
}

type routeParams struct {
	fx.In

	Engine     *gin.Engine
	Log        *zap.SugaredLogger
	Config     *cfgpkg.Config
	DB         *gorm.DB
	Prometheus *metrics.Prometheus
	Donations  *donation.Service
	Statistics *statistics.Service
	Webhooks   *nh.NotificationHandler
}

func registerRoutes(p routeParams) error {
	r, log, cfg := p.Engine, p.Log, p.Config

	if p.Prometheus != nil {
		p.Prometheus.Use(r)
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("health check pool: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warnw("auth.jwt_secret is empty, bearer tokens will be rejected")
	}
	auth := mw.AuthMiddleware(mw.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer))
	logged := []gin.HandlerFunc{mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware(log)}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(logged...)
	handlers.RegisterHealthRoutes(pub, sqlDB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(auth)
	apiV1.Use(logged...)

	limiter := mw.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, mw.KeyByUserOrIP())
	handlers.RegisterDonationRoutes(apiV1, p.Donations, limiter.Handler(), log)
	handlers.RegisterUserRoutes(apiV1.Group("/me"), p.Donations, log)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin", mw.RequireRole(types.RoleAdmin)), p.Donations, p.Statistics, log)

	// Gateway webhooks authenticate by signature, not bearer token.
	apiV2Payment := r.Group("/api/v2/payment")
	apiV2Payment.Use(logged...)
	handlers.RegisterPaymentWebhookRoutes(apiV2Payment, p.Webhooks, log)
	return nil
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine, prom *metrics.Prometheus) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			err := srv.Shutdown(shutdownCtx)
			if prom != nil && prom.Server() != nil {
				err = errors.Join(err, prom.Server().Shutdown(shutdownCtx))
			}
			return err
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine, newPrometheus),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
