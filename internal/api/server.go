package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crm-insights/internal/config"
	"crm-insights/internal/crm"
	"crm-insights/internal/feed"
	"crm-insights/internal/redis"
	"crm-insights/internal/rollout"
	"crm-insights/internal/session"
)

type Server struct {
	log     *slog.Logger
	cfg     config.Config
	redis   *redis.Client
	store   *session.Store
	auth    *rollout.Auth
	service *crm.Service
	hub     *feed.Hub
	router  *gin.Engine
}

func NewServer(log *slog.Logger, cfg config.Config, redisClient *redis.Client, store *session.Store, auth *rollout.Auth, service *crm.Service, hub *feed.Hub) *Server {
	s := &Server{
		log:     log,
		cfg:     cfg,
		redis:   redisClient,
		store:   store,
		auth:    auth,
		service: service,
		hub:     hub,
		router:  gin.New(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.inputValidationMiddleware())
	r.Use(s.rateLimitMiddleware())

	r.GET("/healthz", s.health)
	r.GET("/rollout-token", s.sessionMiddleware(), s.rolloutToken)

	api := r.Group("/api")
	api.Use(s.sessionMiddleware())
	{
		sess := api.Group("/session")
		{
			sess.GET("/rollout-client", s.getRolloutClient)
			sess.POST("/rollout-client", s.setRolloutClient)
			sess.DELETE("/rollout-client", s.clearRolloutClient)
			sess.GET("/consumer-key", s.getConsumerKey)
			sess.POST("/consumer-key", s.setConsumerKey)
			sess.GET("/webhook-target", s.getWebhookTarget)
			sess.POST("/webhook-target", s.setWebhookTarget)
		}

		api.GET("/credentials", s.listCredentials)
		api.GET("/people", s.listPeople)
		api.GET("/users", s.listUsers)
		api.GET("/person-insights", s.personInsights)
		api.GET("/appointment-metadata", s.appointmentMetadata)
		api.POST("/appointments", s.createAppointment)

		api.GET("/webhooks", s.listWebhooks)
		api.POST("/webhooks", s.createWebhook)
		api.DELETE("/webhooks/:id", s.deleteWebhook)
		api.POST("/webhook-events", s.receiveWebhookEvent)
		api.GET("/webhook-events/stream", s.streamWebhookEvents)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ctx bounds handler work; the insights fan-out issues many upstream calls
// so the budget is generous.
func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 30*time.Second)
}
