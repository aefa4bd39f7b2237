package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-api/internal/middleware"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// RootHandler is mounted outside /api/v1, e.g. health and metrics.
type RootHandler interface {
	RegisterRoutes(gin.IRoutes)
}

type Router struct {
	engine       *gin.Engine
	auth         *middleware.AuthMiddleware
	authH        Handler
	userH        Handler
	appointmentH Handler
	wsH          RootHandler
	healthH      RootHandler
	metricsH     RootHandler
	config       RouterConfig
}

type RouterConfig struct {
	ServiceName      string
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
}

type Handlers struct {
	Auth        Handler
	User        Handler
	Appointment Handler
	Websocket   RootHandler
	Health      RootHandler
	Metrics     RootHandler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	handlers Handlers,
	log *logger.Logger,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:       engine,
		auth:         auth,
		authH:        handlers.Auth,
		userH:        handlers.User,
		appointmentH: handlers.Appointment,
		wsH:          handlers.Websocket,
		healthH:      handlers.Health,
		metricsH:     handlers.Metrics,
		config:       config,
	}

	// Recovery sits inside the tracing span so panics are recorded on it.
	engine.Use(
		otelgin.Middleware(config.ServiceName),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		middleware.ErrorLogger(log),
		middleware.Metrics(m),
		middleware.CORS(config.CORSConfig),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
	)

	if config.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func (r *Router) Setup() {
	if r.healthH != nil {
		r.healthH.RegisterRoutes(r.engine)
	}
	if r.metricsH != nil {
		r.metricsH.RegisterRoutes(r.engine)
	}

	// The websocket stays open past any request deadline.
	if r.wsH != nil {
		r.wsH.RegisterRoutes(r.engine.Group("", r.auth.Authenticate()))
	}

	api := r.engine.Group("/api/v1",
		middleware.SizeLimit(r.maxBodyBytes()),
		middleware.Timeout(r.config.RequestTimeout),
	)

	r.authH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.userH.RegisterRoutes(protected)
	r.appointmentH.RegisterRoutes(protected)
}

func (r *Router) maxBodyBytes() int64 {
	if r.config.MaxBodyBytes > 0 {
		return r.config.MaxBodyBytes
	}
	return middleware.DefaultMaxBodySize
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
