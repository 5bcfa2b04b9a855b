package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/app"
	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/cache"
	"github.com/charlesng35/crmhub/internal/handlers"
	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/realtime"
	"github.com/charlesng35/crmhub/internal/security"
	"github.com/charlesng35/crmhub/internal/storage"
	"github.com/charlesng35/crmhub/pkg/mail"
)

// Dependencies are the long-lived collaborators the HTTP layer is built from.
// Only DB, Config, JWT and Sessions are required.
type Dependencies struct {
	DB         *gorm.DB
	Config     *app.Config
	JWT        *iauth.JWTService
	Sessions   *iauth.SessionService
	Hub        *realtime.Hub
	Mailer     mail.Mailer
	Storage    storage.Backend
	RateStore  middleware.RateStore
	Redis      *cache.RedisClient
	Monitoring *monitoring.Module
	Providers  *providers.Registry
	// Services reuses an already wired service layer.
	Services *Services
}

// NewRouter builds the Gin engine, wires middleware and registers the /api/v1 routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	cfg := deps.Config

	if deps.Hub == nil {
		deps.Hub = realtime.NewHub(cfg.Server.CORS.AllowedOrigins...)
	}
	svc := deps.Services
	if svc == nil {
		var err error
		svc, err = NewServices(ServiceDeps{
			DB:        deps.DB,
			Config:    cfg,
			Sessions:  deps.Sessions,
			Hub:       deps.Hub,
			Mailer:    deps.Mailer,
			Storage:   deps.Storage,
			Providers: deps.Providers,
		})
		if err != nil {
			return nil, err
		}
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}
	requests, window := cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	metricsPath := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger("/health", "/health/live", "/health/ready", metricsPath))
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(securityOptions(cfg.Server.Headers)...))
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	r.Use(middleware.RateLimit(rateStore, requests, window))

	registerHealthRoutes(r, cfg.Monitoring.Health.Enabled, deps.Monitoring.Health())
	registerHealthChecks(deps)
	if cfg.Monitoring.Prometheus.Enabled {
		r.GET(metricsPath, gin.WrapH(deps.Monitoring.Handler()))
	}

	public := r.Group("/api/v1")
	protected := r.Group("/api/v1")
	protected.Use(middleware.Auth(deps.JWT, deps.Sessions), middleware.PathIDs(), middleware.Tenant(svc.Resolver))

	authHandler := handlers.NewAuthHandler(svc.Accounts)
	registerAuthRoutes(public, protected, authHandler, handlers.NewOAuthHandler(svc.SSO))

	registerOrganizationRoutes(public, protected, organizationHandlers{
		Organizations: handlers.NewOrganizationHandler(svc.Organizations),
		Members:       handlers.NewMembershipHandler(svc.Memberships),
		Roles:         handlers.NewRoleHandler(svc.Roles, svc.Checker),
		Teams:         handlers.NewTeamHandler(svc.Teams),
		Invitations:   handlers.NewInvitationHandler(svc.Invitations),
		Subscription:  handlers.NewSubscriptionHandler(svc.Subscriptions),
		Audit:         handlers.NewAuditHandler(svc.Audit),
	}, svc.Checker)

	registerCRMRoutes(protected, svc)

	registerNotificationRoutes(protected,
		handlers.NewNotificationHandler(svc.Notifications),
		handlers.NewRealtimeHandler(deps.Hub),
	)

	securityHandler, err := handlers.NewSecurityHandler(security.NewAuditor(deps.DB, cfg))
	if err != nil {
		return nil, err
	}
	monitoringHandler := handlers.NewMonitoringHandler(handlers.MonitoringOptions{
		Health:          deps.Monitoring.Health(),
		MetricsEnabled:  cfg.Monitoring.Prometheus.Enabled,
		MetricsEndpoint: metricsPath,
		Connections:     deps.Hub,
	})
	registerOperatorRoutes(protected, securityHandler, monitoringHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func securityOptions(h app.HeadersConfig) []middleware.SecurityOption {
	var opts []middleware.SecurityOption
	if csp := strings.TrimSpace(h.ContentSecurityPolicy); csp != "" {
		opts = append(opts, middleware.WithContentSecurityPolicy(csp))
	}
	if !h.HSTS {
		opts = append(opts, middleware.WithoutHSTS())
	}
	return opts
}
