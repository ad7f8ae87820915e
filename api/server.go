package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/OldStager01/resilience-plane/api/docs"
	"github.com/OldStager01/resilience-plane/api/handlers"
	"github.com/OldStager01/resilience-plane/api/middleware"
	"github.com/OldStager01/resilience-plane/api/websocket"
	"github.com/OldStager01/resilience-plane/internal/auth"
	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/pkg/config"
)

const maxRequestBytes = 1 << 20

// ThrottleService is what the admission middleware and the throttle
// handler need from throttle.Manager.
type ThrottleService interface {
	middleware.Admitter
	handlers.ThrottleInspector
}

// HistoryReader is what the sample and health handlers need from
// sampler.History.
type HistoryReader interface {
	handlers.SampleReader
	handlers.LatestSample
}

// Dependencies wires the control-plane components into the API.
// The archive fields and DB stay nil when storage is disabled.
type Dependencies struct {
	Scaling  handlers.ScalingController
	Circuits handlers.CircuitInspector
	Cache    handlers.CacheAdmin
	Throttle ThrottleService
	History  HistoryReader
	Bus      *events.EventBus
	Auth     *auth.Service

	DB               handlers.Pinger
	DecisionArchive  handlers.DecisionArchive
	SampleArchive    handlers.SampleArchive
	EventArchive     handlers.EventArchive
	MetricsHandler   http.Handler
	RequestRecorder  *collector.RequestRecorder
	Sink             metrics.Sink
	SampleInterval   time.Duration
	SecureCookie     bool
	DisableAdmission bool
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.APIConfig
	deps       Dependencies
	wsHub      *websocket.Hub
	wsBridge   *websocket.EventBridge
	hubCancel  context.CancelFunc
}

func NewServer(cfg config.APIConfig, wsCfg config.WebSocketConfig, mode string, deps Dependencies) *Server {
	switch mode {
	case "production":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}
	if deps.Sink == nil {
		deps.Sink = metrics.NopSink{}
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		deps:   deps,
		wsHub:  websocket.NewHub(websocket.NewSettings(wsCfg)),
	}

	s.setupMiddleware()
	s.setupRoutes()

	hubCtx, cancel := context.WithCancel(context.Background())
	s.hubCancel = cancel
	go s.wsHub.Run(hubCtx)

	if deps.Bus != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Bus.SubscribeAll())
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.CORSFromConfig(s.config.CORS)))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.SecurityHeaders(s.deps.SecureCookie))
	s.router.Use(middleware.RequestSizeLimit(maxRequestBytes))
	s.router.Use(middleware.RequestMetrics(s.deps.RequestRecorder, s.deps.Sink))
}

func (s *Server) setupRoutes() {
	limits := handlers.Limits{Default: s.config.DefaultLimit, Max: s.config.MaxLimit}

	healthHandler := handlers.NewHealthHandler(s.deps.DB, s.deps.History, s.deps.SampleInterval)
	authHandler := handlers.NewAuthHandler(s.deps.Auth, s.deps.SecureCookie)
	scalingHandler := handlers.NewScalingHandler(s.deps.Scaling, s.deps.DecisionArchive, limits)
	circuitHandler := handlers.NewCircuitHandler(s.deps.Circuits)
	cacheHandler := handlers.NewCacheHandler(s.deps.Cache)
	throttleHandler := handlers.NewThrottleHandler(s.deps.Throttle)
	sampleHandler := handlers.NewSampleHandler(s.deps.History, s.deps.SampleArchive, s.deps.EventArchive, limits)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if s.deps.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.MetricsHandler))
	}

	docs.SwaggerInfo.BasePath = "/"
	s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	loginLimiter := middleware.NewIPRateLimiter(s.config.LoginRatePerMinute, s.config.LoginBurst)
	s.router.POST("/auth/login", middleware.LoginRateLimit(loginLimiter), authHandler.Login)

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	v1 := s.router.Group("/api/v1")
	if !s.deps.DisableAdmission && s.deps.Throttle != nil {
		v1.Use(middleware.Admission(s.deps.Throttle, nil))
	}
	{
		v1.GET("/status", scalingHandler.Status)
		v1.GET("/decisions", scalingHandler.Decisions)
		v1.GET("/decisions/:id", scalingHandler.Decision)
		v1.GET("/circuits", circuitHandler.List)
		v1.GET("/circuits/:name", circuitHandler.Get)
		v1.GET("/cache/stats", cacheHandler.Stats)
		v1.GET("/throttle", throttleHandler.Status)
		v1.GET("/samples", sampleHandler.Samples)
		v1.GET("/events", sampleHandler.Events)
	}

	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(s.deps.Auth))
	{
		protected.POST("/scale", scalingHandler.Scale)
		protected.POST("/circuits/:name/reset", circuitHandler.Reset)
		protected.DELETE("/cache/keys/:key", cacheHandler.DeleteKey)
		protected.DELETE("/cache", cacheHandler.DeletePrefix)
		protected.POST("/cache/clear", cacheHandler.Clear)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.WithComponent("api").Infof("Admin API listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.hubCancel()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
