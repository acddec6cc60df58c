package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/eventcover/internal/checkout"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
	"github.com/smallbiznis/eventcover/internal/config"
	"github.com/smallbiznis/eventcover/internal/events"
	"github.com/smallbiznis/eventcover/internal/observability"
	obsmiddleware "github.com/smallbiznis/eventcover/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eventcover/internal/observability/metrics"
	obstracing "github.com/smallbiznis/eventcover/internal/observability/tracing"
	"github.com/smallbiznis/eventcover/internal/payment"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	"github.com/smallbiznis/eventcover/internal/policy"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	stripeclient "github.com/smallbiznis/eventcover/internal/providers/stripe"
	"github.com/smallbiznis/eventcover/internal/quote"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"github.com/smallbiznis/eventcover/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	events.Module,
	ratelimit.Module,
	stripeclient.Module,
	quote.Module,
	policy.Module,
	payment.Module,
	checkout.Module,
	fx.Provide(registerGin),
	fx.Provide(provideCheckoutLimiter),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

// RateLimiter decides whether a client key may create another checkout session.
type RateLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Result
}

func provideCheckoutLimiter(l *ratelimit.CheckoutLimiter) RateLimiter {
	return l
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

// useJSONFieldNames makes binding errors report json field names.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, _ *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine          *gin.Engine
	cfg             config.Config
	paymentSvc      paymentdomain.Service
	checkoutSvc     checkoutdomain.Service
	quoteSvc        quotedomain.Service
	policySvc       policydomain.Service
	checkoutLimiter RateLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	PaymentSvc      paymentdomain.Service
	CheckoutSvc     checkoutdomain.Service
	QuoteSvc        quotedomain.Service
	PolicySvc       policydomain.Service
	CheckoutLimiter RateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		paymentSvc:      p.PaymentSvc,
		checkoutSvc:     p.CheckoutSvc,
		quoteSvc:        p.QuoteSvc,
		policySvc:       p.PolicySvc,
		checkoutLimiter: p.CheckoutLimiter,
	}
	svc.registerWebhookRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)
	api.GET("/webhook-events", s.ListWebhookEvents)

	// -------- Checkout --------
	sessions := api.Group("/checkout/sessions")
	sessions.POST("", s.CheckoutRateLimit(), s.CreateCheckoutSession)
	sessions.POST("/inline", s.CheckoutRateLimit(), s.CreateInlineCheckoutSession)
	sessions.POST("/validate-metadata", s.ValidateSessionMetadata)
	sessions.GET("", s.ListCheckoutSessions)
	sessions.GET("/:id", s.GetCheckoutSession)
	sessions.GET("/:id/payment", s.GetCheckoutPaymentDetails)

	// -------- Quotes / Policies --------
	api.GET("/quotes/:id", s.GetQuoteByID)
	api.GET("/policies/:id", s.GetPolicyByID)

	// -------- Config --------
	api.GET("/config/stripe", s.GetStripeConfig)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
