package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aimerfeng/Gigsy/internal/auth"
	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/cache"
	"github.com/aimerfeng/Gigsy/internal/config"
	"github.com/aimerfeng/Gigsy/internal/dashboard"
	apierrors "github.com/aimerfeng/Gigsy/internal/errors"
	"github.com/aimerfeng/Gigsy/internal/event"
	"github.com/aimerfeng/Gigsy/internal/logging"
	"github.com/aimerfeng/Gigsy/internal/messaging"
	"github.com/aimerfeng/Gigsy/internal/middleware"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/aimerfeng/Gigsy/internal/profile"
	"github.com/aimerfeng/Gigsy/internal/project"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/aimerfeng/Gigsy/internal/wallet"
	"github.com/aimerfeng/Gigsy/internal/webhook"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Deps are the collaborators the API server is built from. Bus and Store are
// required; the rest fall back to in-process implementations when nil.
type Deps struct {
	Store store.Store
	Bus   broker.Bus

	// InFlight backs the Idempotency-Key guard
	InFlight cache.InFlight
	// Limiter enables per-caller rate limiting on mutations
	Limiter middleware.Limiter
	// Identity sources tried after locally issued tokens, e.g. OIDC
	ExternalIdentity []middleware.IdentitySource
}

// APIServer represents the main API server
type APIServer struct {
	config *config.Config
	router *gin.Engine
	store  store.Store

	authService      *auth.Service
	profileService   *profile.Service
	walletService    *wallet.Service
	projectService   *project.Service
	eventService     *event.Service
	messagingService *messaging.Service
	dashboardService *dashboard.Service
	webhookService   *webhook.Service

	authenticator *middleware.Authenticator
	hub           *messaging.Hub
	upgrader      *websocket.Upgrader
	inFlight      cache.InFlight
	limiter       middleware.Limiter
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, deps Deps) (*APIServer, error) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	profiles := profile.NewService(deps.Store, deps.Bus)
	wallets := wallet.NewService(deps.Store, deps.Bus)
	authService := auth.NewService(deps.Store, profiles, &cfg.JWT)

	hub, err := messaging.NewHub(deps.Bus)
	if err != nil {
		return nil, err
	}

	sources := append([]middleware.IdentitySource{middleware.NewLocalTokens(authService)}, deps.ExternalIdentity...)

	srv := &APIServer{
		config:           cfg,
		router:           router,
		store:            deps.Store,
		authService:      authService,
		profileService:   profiles,
		walletService:    wallets,
		projectService:   project.NewService(deps.Store, deps.Bus),
		eventService:     event.NewService(deps.Store, wallets, deps.Bus),
		messagingService: messaging.NewService(deps.Store, deps.Bus),
		dashboardService: dashboard.NewService(deps.Store),
		authenticator:    middleware.NewAuthenticator(profiles, sources...),
		hub:              hub,
		upgrader:         messaging.NewUpgrader(cfg.CORS.AllowedOrigins),
		inFlight:         deps.InFlight,
		limiter:          deps.Limiter,
	}
	if srv.inFlight == nil {
		srv.inFlight = cache.NewMemoryInFlight()
	}

	// without a secret, deliveries could not be verified
	if cfg.Webhook.Secret != "" {
		srv.webhookService, err = webhook.NewService(cfg.Webhook.Secret, profiles)
		if err != nil {
			hub.Close()
			return nil, err
		}
	}

	srv.setupRoutes()
	return srv, nil
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// EventService exposes the event service for the lifecycle scheduler
func (s *APIServer) EventService() *event.Service {
	return s.eventService
}

// Close disconnects live chat subscribers
func (s *APIServer) Close() {
	s.hub.Close()
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")

	authGroup := api.Group("/auth")
	if s.limiter != nil {
		authGroup.Use(middleware.RateLimit(s.limiter))
	}
	{
		authGroup.POST("/signup", s.handleSignup)
		authGroup.POST("/signin", s.handleSignin)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.POST("/signout", s.handleSignout)
	}

	if s.webhookService != nil {
		api.POST("/webhooks/identity", s.handleIdentityWebhook)
	}

	protected := api.Group("")
	protected.Use(s.authenticator.Authenticate())
	if s.limiter != nil {
		protected.Use(middleware.RateLimit(s.limiter))
	}
	protected.Use(middleware.Idempotency(s.inFlight, time.Duration(s.config.Idempotent.TTLSeconds)*time.Second))

	protected.GET("/me", s.handleGetMe)
	protected.GET("/me/dashboard", s.handleGetDashboard)

	users := protected.Group("/users")
	{
		users.GET("", middleware.RequireAdmin(), s.handleListUsers)
		users.GET("/:id/profile", s.handleGetProfile)
		users.PUT("/:id/profile", s.handleUpdateProfile)
		users.POST("/:id/verify", s.handleVerifyProfile)
		users.PUT("/:id/role", middleware.RequireAdmin(), s.handleSetRole)

		users.GET("/:id/wallet", s.handleGetWallet)
		users.GET("/:id/transactions", s.handleListTransactions)
		users.POST("/:id/transactions", s.handleCreateTransaction)
		users.POST("/:id/deposits", middleware.RequireAdmin(), s.handleCreditPackage)
		users.GET("/:id/bids", s.handleListBidsByBidder)
	}
	protected.GET("/wallet/packages", s.handleListPackages)
	protected.GET("/leaderboard", s.handleLeaderboard)

	projects := protected.Group("/projects")
	{
		projects.GET("", s.handleListProjects)
		projects.POST("", s.handleCreateProject)
		projects.GET("/:id", s.handleGetProject)
		projects.POST("/:id/complete", s.handleCompleteProject)
		projects.POST("/:id/cancel", s.handleCancelProject)
		projects.GET("/:id/bids", s.handleListBids)
		projects.POST("/:id/bids", s.handleSubmitBid)
		projects.GET("/:id/milestones", s.handleListMilestones)
		projects.POST("/:id/milestones", s.handleAddMilestone)
	}
	protected.POST("/bids/:id/accept", s.handleAcceptBid)
	protected.POST("/bids/:id/reject", s.handleRejectBid)
	protected.POST("/milestones/:id/complete", s.handleCompleteMilestone)

	events := protected.Group("/events")
	{
		events.GET("", s.handleListEvents)
		events.POST("", s.handleCreateEvent)
		events.GET("/:id", s.handleGetEvent)
		events.POST("/:id/cancel", s.handleCancelEvent)
		events.GET("/:id/registrations", s.handleListRegistrations)
		events.POST("/:id/registrations", s.handleRegister)
	}
	protected.POST("/registrations/:id/attendance", s.handleMarkAttendance)
	protected.POST("/registrations/:id/claim", s.handleClaimReward)

	conversations := protected.Group("/conversations")
	{
		conversations.GET("", s.handleListConversations)
		conversations.POST("", s.handleCreateConversation)
		conversations.GET("/:id/messages", s.handleListMessages)
		conversations.POST("/:id/messages", s.handleSendMessage)
		conversations.POST("/:id/seen", s.handleMarkSeen)
		conversations.GET("/:id/stream", s.handleStream)
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "api",
			"error":   "store unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// bindJSON decodes the request body, answering 400 on failure
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, apierrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

// pathID parses a UUID path parameter, answering 400 on failure
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.RespondError(c, apierrors.NewInvalidRequestError("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}
