package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/config"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/fault"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/models"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/services"
	"github.com/Hari-dev-21/rollbasedfeedback-new/internal/store"
)

type Server struct {
	config              *config.Config
	router              *gin.Engine
	httpServer          *http.Server
	hub                 *services.Hub
	formService         *services.FormService
	responseService     *services.ResponseService
	analyticsService    *services.AnalyticsService
	notificationService *services.NotificationService
}

func NewServer(cfg *config.Config, st *store.Store) *Server {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	hub := services.NewHub()
	notificationService := services.NewNotificationService(cfg, st, hub)
	formService := services.NewFormService(st, notificationService)
	analyticsService := services.NewAnalyticsService(cfg, st, formService)
	emailService := services.NewEmailService(cfg)
	responseService := services.NewResponseService(st, formService, analyticsService, notificationService, emailService)

	server := &Server{
		config:              cfg,
		router:              router,
		hub:                 hub,
		formService:         formService,
		responseService:     responseService,
		analyticsService:    analyticsService,
		notificationService: notificationService,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server
}

// Router exposes the configured engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupMiddleware() {
	corsConfig := cors.Config{
		AllowOrigins:     s.config.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-Actor"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	s.router.Use(cors.New(corsConfig))

	s.router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	s.router.Use(gin.Recovery())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	// Admin surface. The actor id comes from the upstream proxy; every
	// route in this group requires it.
	api := s.router.Group("/api")
	api.Use(requireActor())
	{
		forms := api.Group("/forms")
		{
			forms.POST("", s.createForm)
			forms.GET("", s.listForms)
			forms.GET("/:id", s.getForm)
			forms.PUT("/:id", s.updateForm)
			forms.DELETE("/:id", s.deleteForm)
			forms.GET("/:id/analytics", s.getFormAnalytics)
			forms.GET("/:id/responses", s.getFormResponses)
		}

		api.GET("/responses/:id", s.getResponse)
		api.GET("/dashboard", s.getDashboard)

		notifications := api.Group("/notifications")
		{
			notifications.GET("", s.listNotifications)
			notifications.GET("/unread-count", s.getUnreadCount)
			notifications.POST("/:id/read", s.markNotificationRead)
			notifications.POST("/read-all", s.markAllNotificationsRead)
		}

		api.GET("/ws", s.notificationSocket)
	}

	// Public surface. No actor, rate limited.
	public := s.router.Group("/public")
	if s.config.Server.RateLimiting.Enabled {
		public.Use(rateLimitMiddleware(s.config.Server.RateLimiting.RequestsPerMinute))
	}
	{
		public.GET("/forms/:id", s.getPublicForm)
		public.POST("/forms/:id/submit", s.submitResponse)
	}
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader("X-Actor")
		if actor == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "X-Actor header is required",
			})
			return
		}
		c.Set("actor", actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) string {
	return c.GetString("actor")
}

func rateLimitMiddleware(requestsPerMinute int) gin.HandlerFunc {
	// Simple in-memory rate limiter keyed by client IP.
	var mu sync.Mutex
	clients := make(map[string][]time.Time)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if timestamps, exists := clients[clientIP]; exists {
			var validTimestamps []time.Time
			for _, timestamp := range timestamps {
				if now.Sub(timestamp) < time.Minute {
					validTimestamps = append(validTimestamps, timestamp)
				}
			}
			clients[clientIP] = validTimestamps
		}

		if len(clients[clientIP]) >= requestsPerMinute {
			mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		clients[clientIP] = append(clients[clientIP], now)
		mu.Unlock()
		c.Next()
	}
}

// writeError maps service failures onto HTTP responses. Sentinel errors
// carry their own status; validation failures return their detail lists;
// anything unclassified is a 500.
func writeError(c *gin.Context, err error) {
	var validationErr *fault.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error:   validationErr.Error(),
			Code:    http.StatusBadRequest,
			Details: validationErr,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fault.ErrFormNotFound),
		errors.Is(err, fault.ErrResponseNotFound),
		errors.Is(err, fault.ErrNotificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fault.ErrFormExpired):
		status = http.StatusGone
	case errors.Is(err, fault.ErrFormInactive):
		status = http.StatusForbidden
	case fault.IsClientError(err):
		status = http.StatusBadRequest
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
		message = "internal server error"
	}

	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error:   message,
		Code:    status,
	})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   "1.0.0",
	})
}
