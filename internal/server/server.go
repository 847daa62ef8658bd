// Package server exposes the entitlement services over HTTP. The surface
// is deliberately thin: state reads and writes, usage recording, and the
// user quota-grant collection, all JSON.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	appconfig "github.com/souqline/entitlements/internal/config"
	"github.com/souqline/entitlements/internal/entitlement/domain"
	"github.com/souqline/entitlements/internal/userquota"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Kind slugs accepted in entity routes, mapped to their services.
const (
	KindSubscriptions       = "subscriptions"
	KindSubscriptionsV2     = "v2-subscriptions"
	KindAddons              = "addons"
	KindPayToPublish        = "pay-to-publish"
	KindPaymentTransactions = "payment-transactions"
)

type Server struct {
	engine   *gin.Engine
	cfg      appconfig.Config
	log      *zap.Logger
	kinds    map[string]domain.Service
	quotaSvc *userquota.Service
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      appconfig.Config
	Log      *zap.Logger
	QuotaSvc *userquota.Service

	SubscriptionV1 domain.Service `name:"subscription"`
	SubscriptionV2 domain.Service `name:"subscription_v2"`
	Addon          domain.Service `name:"addon"`
	PayToPublish   domain.Service `name:"pay_to_publish"`
	Transaction    domain.Service `name:"payment_transaction"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		log:    p.Log.Named("server"),
		kinds: map[string]domain.Service{
			KindSubscriptions:       p.SubscriptionV1,
			KindSubscriptionsV2:     p.SubscriptionV2,
			KindAddons:              p.Addon,
			KindPayToPublish:        p.PayToPublish,
			KindPaymentTransactions: p.Transaction,
		},
		quotaSvc: p.QuotaSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	entities := v1.Group("/entities/:kind")
	entities.GET("/:id", s.GetEntity)
	entities.PUT("/:id", s.PutEntity)
	entities.DELETE("/:id", s.DeleteEntity)
	entities.POST("/:id/usage", s.RecordUsage)
	entities.POST("/:id/usage/validate", s.ValidateUsage)

	users := v1.Group("/users/:user_id")
	users.GET("/quota-grants", s.ListQuotaGrants)
	users.PUT("/quota-grants", s.UpsertQuotaGrant)
	users.DELETE("/quota-grants/:transaction_id", s.DeleteQuotaGrant)
}

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg appconfig.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)
