package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"ieltsprep/internal/config"
	"ieltsprep/internal/middleware"
	"ieltsprep/internal/observability"
	"ieltsprep/internal/services"
	"ieltsprep/internal/version"
)

// RouterServices bundles the service layer the router wires handlers to.
type RouterServices struct {
	Catalog      *services.PromptCatalog
	Gateway      services.GatewayInterface
	Assembler    services.AssemblerInterface
	ProviderKeys services.ProviderKeyServiceInterface
	Usage        services.UsageServiceInterface
	Records      services.TestRecordServiceInterface
	APIKeys      services.AuthAPIKeyServiceInterface
}

// NewRouter creates the Gin engine with all middleware and routes.
func NewRouter(cfg *config.Config, svc RouterServices, logger *observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(requestLogger(logger))

	// Health check endpoint (defined before any middleware)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "ieltsprep-backend"})
	})

	router.Use(observability.GinMiddleware(cfg.OpenTelemetry.ServiceName))
	router.Use(observability.ErrorSpanMiddleware())

	router.RedirectTrailingSlash = false

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With", middleware.APIKeyHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	generationHandler := NewGenerationHandler(cfg, svc.Catalog, svc.Gateway, svc.Assembler, svc.ProviderKeys, svc.Usage, svc.Records, logger)
	testsHandler := NewTestsHandler(svc.Records, logger)
	usageHandler := NewUsageHandler(svc.Usage, logger)
	providerKeyHandler := NewProviderKeyHandler(svc.ProviderKeys, logger)
	apiKeyHandler := NewAPIKeyHandler(svc.APIKeys, logger)
	catalogHandler := NewCatalogHandler(logger)

	requireAuth := middleware.RequireAuth(svc.APIKeys)
	validate := middleware.RequestValidationMiddleware(logger)

	v1 := router.Group("/v1")
	{
		v1.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"service":   "ieltsprep-backend",
				"version":   version.Version,
				"commit":    version.Commit,
				"buildTime": version.BuildTime,
			})
		})

		v1.GET("/question-types", catalogHandler.ListQuestionTypes)

		v1.POST("/generate", requireAuth, validate, generationHandler.GenerateTest)

		v1.GET("/tests", requireAuth, testsHandler.ListTests)
		v1.GET("/tests/:id", requireAuth, testsHandler.GetTest)

		v1.GET("/usage", requireAuth, usageHandler.GetUsage)

		v1.GET("/provider-key", requireAuth, providerKeyHandler.HasProviderKey)
		v1.PUT("/provider-key", requireAuth, validate, providerKeyHandler.SetProviderKey)
		v1.DELETE("/provider-key", requireAuth, providerKeyHandler.DeleteProviderKey)

		v1.POST("/api-keys", requireAuth, validate, apiKeyHandler.CreateAPIKey)
		v1.GET("/api-keys", requireAuth, apiKeyHandler.ListAPIKeys)
		v1.DELETE("/api-keys/:id", requireAuth, apiKeyHandler.DeleteAPIKey)
	}

	return router
}

// requestLogger logs every request through the observability logger.
func requestLogger(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"http.method":      c.Request.Method,
			"http.path":        c.Request.URL.Path,
			"http.status_code": statusCode,
			"http.latency_ms":  time.Since(start).Milliseconds(),
			"http.client_ip":   c.ClientIP(),
			"http.user_agent":  c.Request.UserAgent(),
		}
		if len(c.Errors) > 0 {
			fields["http.error"] = c.Errors.String()
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request failed", nil, fields)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request warning", fields)
		default:
			logger.Info(c.Request.Context(), "HTTP request", fields)
		}
	}
}
