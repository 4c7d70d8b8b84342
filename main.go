package main

import (
	"context"
	"io"
	"net/http"

	"gatekeeper/account"
	"gatekeeper/auth"
	"gatekeeper/authority"
	"gatekeeper/bizerror"
	"gatekeeper/common"
	"gatekeeper/config"
	"gatekeeper/infra/health"
	"gatekeeper/infra/metrics"
	"gatekeeper/infra/tracing"
	"gatekeeper/mail"
	"gatekeeper/persistence"
	"gatekeeper/ratelimit"
	"gatekeeper/security"
	"gatekeeper/servehttp"
	"gatekeeper/session"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	common.ConfigureLogger(settings.LogLevel, settings.LogFormat)
	logrus.Info("service start")

	ds := startDatabase()
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	authority.ConfigureRoleCache(settings.RoleCacheTTL)
	security.BcryptCost = settings.BcryptCost
	security.ActivePasswordPolicy = settings.PasswordPolicy()
	seed(settings)

	codec, err := security.NewTokenCodec(settings.SecretKey, settings.AccessTokenExpire, settings.PasswordResetTokenExpire)
	if err != nil {
		logrus.Fatalf("token codec: %v", err)
	}
	transport, err := mail.NewTransport(settings.MailTransportConfig())
	if err != nil {
		logrus.Fatalf("mail transport: %v", err)
	}
	mailer := mail.NewTemplateMailer(transport, settings.MailFrom, settings.MailFromName)

	if settings.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics.ActiveMetrics = metrics.NewMetrics(registry)
		if err := metrics.ActiveMetrics.RegisterDBStats(ds.SQLDB()); err != nil {
			logrus.Warnf("database pool metrics unavailable: %v", err)
		}
	}
	if settings.TracingEnabled {
		var registerer prometheus.Registerer
		if metrics.ActiveMetrics != nil {
			registerer = metrics.ActiveMetrics.Registerer()
		}
		closer, err := tracing.InitGlobalTracer(common.GetServiceName(), registerer)
		if err != nil {
			logrus.Fatalf("tracer: %v", err)
		}
		defer closeQuietly(closer)
	}

	var redisClient *redis.Client
	if settings.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: settings.RedisAddr})
		defer closeQuietly(redisClient)
	}

	engine := buildEngine(settings, ds, redisClient, codec, mailer)
	if err := servehttp.StartHTTPServer(settings.ListenAddr, engine); err != nil {
		logrus.Errorf("http server: %v", err)
	}
	logrus.Info("[QUIT] service exiting")
}

func startDatabase() *persistence.DataSourceManager {
	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		logrus.Fatalf("parse database config failed %v", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == persistence.DriverMySQL {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v", err)
		}
	}

	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database connection failed %v", err)
	}

	// database migration (race condition)
	db := ds.GormDB(context.Background())
	if err := authority.MigrateSchema(db); err != nil {
		logrus.Fatalf("database migration failed %v", err)
	}
	if err := account.MigrateSchema(db); err != nil {
		logrus.Fatalf("database migration failed %v", err)
	}
	return ds
}

func seed(settings *config.Settings) {
	ctx := context.Background()
	if err := authority.DefaultSecurityConfiguration(ctx); err != nil {
		logrus.Fatalf("failed to seed roles and permissions: %v", err)
	}
	if settings.CreateDefaultAdmin {
		err := account.EnsureDefaultAdmin(ctx, account.DefaultAdmin{
			Email:    settings.DefaultAdminEmail,
			Username: settings.DefaultAdminUsername,
			Password: settings.DefaultAdminPassword,
		})
		if err != nil {
			logrus.Fatalf("failed to create the default admin: %v", err)
		}
	}
}

func buildEngine(settings *config.Settings, ds *persistence.DataSourceManager, redisClient *redis.Client,
	codec *security.TokenCodec, mailer mail.Mailer) *gin.Engine {

	prefix := settings.APIV1Prefix
	auth.PathAuth = prefix + "/auth"
	account.PathUsers = prefix + "/users"
	authority.PathRbac = prefix + "/rbac"
	mail.PathMail = prefix + "/mail"
	health.PathHealth = prefix + "/health"

	engine := gin.New()
	engine.Use(gin.LoggerWithWriter(logrus.StandardLogger().Writer()))
	if metrics.ActiveMetrics != nil {
		engine.Use(metrics.ActiveMetrics.GinMiddleware())
	}
	engine.Use(tracing.TracingIngress(), bizerror.ErrorHandling(), servehttp.CORS(settings.CORSOrigins))

	authEndpoints, authenticated, anonymous := rateLimits(settings, redisClient)
	authFilter := auth.BearerAuthFilter(codec)
	protected := chain([]gin.HandlerFunc{authFilter}, authenticated...)

	engine.GET("/", chain(anonymous, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to " + settings.ProjectName, "version": config.Version})
	})...)
	health.RegisterHealthRestAPI(engine, health.NewChecker(ds, redisClient), anonymous...)
	if metrics.ActiveMetrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.ActiveMetrics.Handler()))
	}

	auth.RegisterAuthRestAPI(engine, auth.NewService(codec, mailer, settings.FrontendURL), protected, authEndpoints...)
	account.RegisterUsersRestAPI(engine, protected...)
	authority.RegisterRbacRestAPI(engine, chain(protected, session.RequirePermissions(authority.PermManageRoles))...)
	mail.RegisterMailRestAPI(engine, mailer, chain(protected, session.RequirePermissions(authority.PermSendEmail))...)
	return engine
}

// rateLimits builds the limiting middlewares of the auth endpoints, the
// authenticated routes and the anonymous routes. All are empty when rate
// limiting is disabled.
func rateLimits(settings *config.Settings, redisClient *redis.Client) (authEndpoints, authenticated, anonymous []gin.HandlerFunc) {
	if !settings.RateLimitEnabled {
		return nil, nil, nil
	}
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, "gatekeeper:ratelimit")
	}

	build := func(value, scope string, keyFunc ratelimit.KeyFunc) []gin.HandlerFunc {
		limit, err := ratelimit.ParseLimit(value)
		if err != nil {
			logrus.Fatalf("rate limit of %s: %v", scope, err)
		}
		return []gin.HandlerFunc{ratelimit.Middleware(limiter, limit, scope, keyFunc)}
	}
	return build(settings.RateLimitAuthEndpoints, "auth", ratelimit.ByClientIP),
		build(settings.RateLimitAuthenticated, "authenticated", ratelimit.ByPrincipal),
		build(settings.RateLimitUnauthenticated, "anonymous", ratelimit.ByClientIP)
}

func chain(head []gin.HandlerFunc, tail ...gin.HandlerFunc) []gin.HandlerFunc {
	handlers := make([]gin.HandlerFunc, 0, len(head)+len(tail))
	return append(append(handlers, head...), tail...)
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logrus.Warnf("close: %v", err)
	}
}
