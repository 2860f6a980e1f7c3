// Package server wires the HTTP surface: the Paystack webhook endpoint,
// the payment confirmation flow, subscription management, and service
// endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/commercekit/paystack-gateway/internal/audit"
	auditdomain "github.com/commercekit/paystack-gateway/internal/audit/domain"
	"github.com/commercekit/paystack-gateway/internal/clock"
	"github.com/commercekit/paystack-gateway/internal/config"
	"github.com/commercekit/paystack-gateway/internal/events"
	"github.com/commercekit/paystack-gateway/internal/observability"
	obsmiddleware "github.com/commercekit/paystack-gateway/internal/observability/logger"
	obsmetrics "github.com/commercekit/paystack-gateway/internal/observability/metrics"
	"github.com/commercekit/paystack-gateway/internal/order"
	orderdomain "github.com/commercekit/paystack-gateway/internal/order/domain"
	"github.com/commercekit/paystack-gateway/internal/payment"
	"github.com/commercekit/paystack-gateway/internal/payment/checkout"
	"github.com/commercekit/paystack-gateway/internal/payment/confirmation"
	"github.com/commercekit/paystack-gateway/internal/payment/reconcile"
	"github.com/commercekit/paystack-gateway/internal/payment/refund"
	"github.com/commercekit/paystack-gateway/internal/payment/webhook"
	"github.com/commercekit/paystack-gateway/internal/paystack"
	"github.com/commercekit/paystack-gateway/internal/ratelimit"
	"github.com/commercekit/paystack-gateway/internal/subscription"
	subdomain "github.com/commercekit/paystack-gateway/internal/subscription/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	audit.Module,
	events.Module,
	clock.Module,
	order.Module,
	subscription.Module,
	ratelimit.Module,
	payment.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock

	orders      orderdomain.Repository
	orderSvc    orderdomain.Service
	subs        subdomain.Repository
	client      *paystack.Client
	checkoutSvc *checkout.Service
	confirmSvc  *confirmation.Engine
	refundSvc   *refund.Service
	reconciler  *reconcile.Reconciler
	dispatcher  *webhook.Dispatcher
	auditSvc    auditdomain.Service
	limiter     *ratelimit.WebhookLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Orders      orderdomain.Repository
	OrderSvc    orderdomain.Service
	Subs        subdomain.Repository
	Client      *paystack.Client
	CheckoutSvc *checkout.Service
	ConfirmSvc  *confirmation.Engine
	RefundSvc   *refund.Service
	Reconciler  *reconcile.Reconciler
	Dispatcher  *webhook.Dispatcher
	AuditSvc    auditdomain.Service
	Limiter     *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		genID:       p.GenID,
		clock:       p.Clock,
		orders:      p.Orders,
		orderSvc:    p.OrderSvc,
		subs:        p.Subs,
		client:      p.Client,
		checkoutSvc: p.CheckoutSvc,
		confirmSvc:  p.ConfirmSvc,
		refundSvc:   p.RefundSvc,
		reconciler:  p.Reconciler,
		dispatcher:  p.Dispatcher,
		auditSvc:    p.AuditSvc,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/paystack", s.webhookRateLimit(), s.HandlePaystackWebhook)

	api := s.engine.Group("/api")
	{
		api.POST("/payments/paystack/checkout", s.HandleCheckout)
		api.POST("/payments/paystack/confirm", s.HandleConfirmPayment)
		api.GET("/payments/paystack/receipt/:orderHash", s.HandleReceiptCheck)
		api.POST("/payments/paystack/refund", s.HandleCreateRefund)

		api.POST("/subscriptions/:uuid/cancel", s.HandleCancelSubscription)
		api.POST("/subscriptions/:uuid/resync", s.HandleResyncSubscription)

		api.GET("/gateway/meta", s.HandleGatewayMeta)
	}
}
