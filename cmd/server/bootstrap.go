package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/api"
	"github.com/charlesng35/crmhub/internal/app"
	"github.com/charlesng35/crmhub/internal/app/maintenance"
	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/cache"
	"github.com/charlesng35/crmhub/internal/database"
	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/realtime"
	"github.com/charlesng35/crmhub/internal/storage"
	"github.com/charlesng35/crmhub/pkg/logger"
	"github.com/charlesng35/crmhub/pkg/mail"
)

// runtimeStack is everything serve keeps alive until shutdown.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *cache.RedisClient
	Sessions   *iauth.SessionService
	Services   *api.Services
	Hub        *realtime.Hub
	Monitoring *monitoring.Module
	Cleaner    *maintenance.Cleaner
	RateStore  middleware.RateStore
	Router     *gin.Engine
}

// loadRuntimeConfig applies the dotenv file, loads configuration, fills any
// generated secrets and installs the global logger.
func loadRuntimeConfig(opts *rootOptions) (*app.Config, error) {
	if path := strings.TrimSpace(opts.envFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
	}

	cfg, err := loadApplicationConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	for key := range generated {
		logger.WithModule("bootstrap").Warn("generated runtime secret; set it explicitly to survive restarts", zap.String("key", key))
	}
	return cfg, nil
}

// loadApplicationConfig accepts a directory or a file inside one; an empty
// path searches the default locations.
func loadApplicationConfig(path string) (*app.Config, error) {
	if path = strings.TrimSpace(path); path == "" {
		return app.LoadConfig()
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("config path %q does not exist", path)
	case err != nil:
		return nil, fmt.Errorf("stat config path: %w", err)
	case !info.IsDir():
		path = filepath.Dir(path)
	}
	return app.LoadConfig(path)
}

// openDatabase connects and brings the schema up to date.
func openDatabase(cfg *app.Config) (*gorm.DB, error) {
	conn := cfg.Database.Connection()
	db, err := database.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}
	logger.WithModule("database").Info("database ready", zap.String("driver", conn.Driver))
	return db, nil
}

// connectRedis returns nil when Redis is disabled or unreachable; callers
// then fall back to the cache_entries table.
func connectRedis(cfg *app.Config, log *zap.Logger) *cache.RedisClient {
	if !cfg.Cache.Redis.Enabled {
		return nil
	}
	client, err := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
	if err != nil {
		log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
		return nil
	}
	log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
	return client
}

// bootstrapRuntime builds the serve stack. On error whatever was already
// started is torn down again.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (stack *runtimeStack, err error) {
	stack = &runtimeStack{}
	defer func() {
		if err != nil {
			stack.Shutdown(context.Background(), log)
			stack = nil
		}
	}()

	if os.Getenv("GIN_DEBUG") != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	if stack.DB, err = openDatabase(cfg); err != nil {
		return stack, err
	}
	stack.Redis = connectRedis(cfg, log)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return stack, fmt.Errorf("initialise jwt service: %w", err)
	}
	if stack.Sessions, err = iauth.NewSessionService(stack.DB, jwtSvc, cfg.Auth.SessionServiceConfig()); err != nil {
		return stack, fmt.Errorf("initialise session service: %w", err)
	}
	if stack.Monitoring, err = monitoring.NewModule(monitoring.Options{}); err != nil {
		return stack, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)
	stack.Hub = realtime.NewHub(cfg.Server.CORS.AllowedOrigins...)

	backend, err := storage.New(ctx, cfg.Storage.BackendConfig())
	if err != nil {
		return stack, fmt.Errorf("initialise storage: %w", err)
	}

	// Counters and claims go to Redis when it is up. The cache_entries table
	// is swept either way.
	dbStore := cache.NewDatabaseStore(stack.DB)
	var shared cache.Store = dbStore
	stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	if stack.Redis != nil {
		shared = stack.Redis
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	}

	stack.Services, err = buildServices(stack.DB, cfg, &api.ServiceDeps{
		Sessions: stack.Sessions,
		Hub:      stack.Hub,
		Storage:  backend,
		Claims:   shared,
	})
	if err != nil {
		return stack, err
	}

	m := cfg.Maintenance
	stack.Cleaner = maintenance.NewCleaner(maintenance.Dependencies{
		Sessions: stack.Sessions,
		Tokens:   stack.Services.Tokens,
		Audit:    stack.Services.Audit,
		Reports:  stack.Services.ScheduledReports,
		Cache:    dbStore,
	},
		maintenance.WithAuditRetentionDays(m.AuditRetentionDays),
		maintenance.WithSchedule(maintenance.JobSessions, m.SessionSchedule),
		maintenance.WithSchedule(maintenance.JobAudit, m.AuditSchedule),
		maintenance.WithSchedule(maintenance.JobTokens, m.TokenSchedule),
		maintenance.WithSchedule(maintenance.JobReports, m.ReportSchedule),
	)
	if err = stack.Cleaner.Start(); err != nil {
		return stack, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:         stack.DB,
		Config:     cfg,
		JWT:        jwtSvc,
		Sessions:   stack.Sessions,
		Hub:        stack.Hub,
		Storage:    backend,
		RateStore:  stack.RateStore,
		Redis:      stack.Redis,
		Monitoring: stack.Monitoring,
		Services:   stack.Services,
	})
	if err != nil {
		return stack, fmt.Errorf("build api router: %w", err)
	}
	return stack, nil
}

// buildServices wires the service layer. Without extra deps it builds its
// own session service and mailer, which is all the CLI commands need.
func buildServices(db *gorm.DB, cfg *app.Config, extra *api.ServiceDeps) (*api.Services, error) {
	var deps api.ServiceDeps
	if extra != nil {
		deps = *extra
	}
	deps.DB, deps.Config = db, cfg

	if deps.Sessions == nil {
		jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise jwt service: %w", err)
		}
		if deps.Sessions, err = iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig()); err != nil {
			return nil, fmt.Errorf("initialise session service: %w", err)
		}
	}
	if deps.Mailer == nil {
		mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
		if err != nil {
			return nil, fmt.Errorf("initialise mailer: %w", err)
		}
		deps.Mailer = mailer
	}

	svc, err := api.NewServices(deps)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}
	return svc, nil
}

// Shutdown stops producers first (websocket hub, cron) and closes the stores
// they write to last. It gives up waiting on cron jobs when ctx ends.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}
	if s.Hub != nil {
		s.Hub.Shutdown()
	}
	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("close redis", zap.Error(err))
		}
	}
	closeDatabase(s.DB, log)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		log.Warn("close database", zap.Error(err))
	}
}
