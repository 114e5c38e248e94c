package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/washbay/internal/access"
	"github.com/smallbiznis/washbay/internal/auth/relay"
	"github.com/smallbiznis/washbay/internal/auth/session"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	"github.com/smallbiznis/washbay/internal/edge"
	"github.com/smallbiznis/washbay/internal/hostresolver"
	"github.com/smallbiznis/washbay/internal/observability"
	obslogger "github.com/smallbiznis/washbay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/washbay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/washbay/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/smallbiznis/washbay/internal/providers/pdf"
	"github.com/smallbiznis/washbay/internal/reconcile"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves the HTTP surface. The domain modules it depends on are
// composed by each binary.
var Module = fx.Module("http.server",
	session.Module,
	edge.Module,
	access.Module,
	relay.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics `optional:"true"`
	Tokens      *session.Tokens
	Sessions    *session.Manager
	Edge        *edge.Router
	Log         *zap.Logger
}

// NewEngine installs the global middleware chain. Routes registered on the
// returned engine all run behind identity loading and the edge router.
func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(session.LoadIdentity(p.Tokens, p.Sessions))
	r.Use(p.Edge.Middleware(p.Log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	return r
}

func registerGin(p EngineParams) *gin.Engine {
	return NewEngine(p)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
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
	engine     *gin.Engine
	cfg        config.Config
	resolver   *hostresolver.Resolver
	gate       *access.Gate
	tenants    tenantdomain.Service
	billing    billingdomain.Service
	payments   paymentdomain.Service
	webhooks   paymentdomain.WebhookService
	documents  pdf.Provider
	reconciler *reconcile.Reconciler
	log        *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Resolver   *hostresolver.Resolver
	Gate       *access.Gate
	Tenants    tenantdomain.Service
	Billing    billingdomain.Service
	Payments   paymentdomain.Service
	Webhooks   paymentdomain.WebhookService
	Documents  pdf.Provider          `optional:"true"`
	Reconciler *reconcile.Reconciler `optional:"true"`
	Log        *zap.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		resolver:   p.Resolver,
		gate:       p.Gate,
		tenants:    p.Tenants,
		billing:    p.Billing,
		payments:   p.Payments,
		webhooks:   p.Webhooks,
		documents:  p.Documents,
		reconciler: p.Reconciler,
		log:        p.Log.Named("server"),
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterPublicRoutes()
	s.RegisterTenantRoutes()
	s.RegisterAdminRoutes()
	s.RegisterCronRoutes()
}

// RegisterPublicRoutes serves plans and gateway webhooks.
func (s *Server) RegisterPublicRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.ListPlans)
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

// RegisterTenantRoutes serves the tenant-scoped API. Billing and plan status
// stay reachable while the plan is blocked so the tenant can settle it.
func (s *Server) RegisterTenantRoutes() {
	tenant := s.engine.Group("/api/tenant",
		s.gate.TenantRequired(),
		s.gate.MemberRequired(),
	)

	tenant.GET("/plan-status", s.gate.PermissionRequired(access.PermPlanStatusRead), s.GetPlanStatus)
	tenant.POST("/billing", s.gate.PermissionRequired(access.PermBillingManage), s.BillingAction)
	tenant.GET("/invoices/:id", s.gate.PermissionRequired(access.PermBillingManage), s.GetInvoice)
	tenant.GET("/invoices/:id/pdf", s.gate.PermissionRequired(access.PermBillingManage), s.DownloadInvoicePDF)

	team := tenant.Group("/members", s.gate.ActivePlanRequired())
	team.GET("", s.ListMembers)
	team.PATCH("/:userId", s.gate.PermissionRequired(access.PermMembersManage), s.UpdateMember)
	team.DELETE("/:userId", s.gate.PermissionRequired(access.PermMembersManage), s.RemoveMember)
}

// RegisterAdminRoutes serves super-admin operations. The edge router already
// restricts /api/admin to super-admins.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/api/admin", s.SuperAdminRequired())

	admin.GET("/tenants/:id", s.AdminGetTenant)
	admin.POST("/tenants/:id/activate", s.AdminSetTenantActive(true))
	admin.POST("/tenants/:id/deactivate", s.AdminSetTenantActive(false))
}

func (s *Server) RegisterCronRoutes() {
	if s.reconciler == nil {
		return
	}
	cron := s.engine.Group("/api/cron", s.CronSecretRequired())

	cron.POST("/plan-changes", s.RunCronJob(reconcile.JobScheduledPlanChanges))
	cron.POST("/reminders", s.RunCronJob(reconcile.JobInvoiceReminders))
}
