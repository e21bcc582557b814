package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler/prometheus"
	"github.com/jwalitptl/hospital-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// ProtectedHandler mounts routes that authenticate with the given middleware
// where they need a caller identity.
type ProtectedHandler interface {
	RegisterRoutes(*gin.RouterGroup, gin.HandlerFunc)
}

type Handlers struct {
	Health      Handler
	Doctor      ProtectedHandler
	Schedule    ProtectedHandler
	Patient     ProtectedHandler
	Appointment ProtectedHandler
	Leave       ProtectedHandler
	Metrics     *prometheus.Handler
}

type Config struct {
	RequestTimeout time.Duration
	MetricsPath    string
	// RateLimit is nil when rate limiting is disabled
	RateLimit  *middleware.RateLimiterConfig
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   Config
}

func NewRouter(auth *middleware.AuthMiddleware, handlers Handlers, config Config) *Router {
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	middleware.RegisterBindingValidators()

	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.SizeLimit(middleware.DefaultSizeLimitConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)
	if config.RateLimit != nil {
		engine.Use(middleware.NewRateLimiter(*config.RateLimit).RateLimit())
	}
	engine.Use(middleware.ErrorHandler())
	if handlers.Metrics != nil {
		engine.Use(handlers.Metrics.Middleware())
	}

	return r
}

func (r *Router) Setup() {
	if r.handlers.Metrics != nil {
		r.engine.GET(r.config.MetricsPath, r.handlers.Metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.handlers.Health != nil {
		r.handlers.Health.RegisterRoutes(api)
	}

	authn := r.auth.Authenticate()
	for _, h := range []ProtectedHandler{
		r.handlers.Doctor,
		r.handlers.Schedule,
		r.handlers.Patient,
		r.handlers.Appointment,
		r.handlers.Leave,
	} {
		if h != nil {
			h.RegisterRoutes(api, authn)
		}
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
