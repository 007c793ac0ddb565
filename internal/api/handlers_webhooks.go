package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crm-insights/internal/feed"
)

func (s *Server) listWebhooks(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	hooks, err := s.service.ListWebhooks(ctx, sess.Prefs())
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": hooks})
}

func (s *Server) createWebhook(c *gin.Context) {
	var body struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	target := strings.TrimSpace(body.URL)
	sess := s.session(c)
	if target == "" {
		target = sess.Prefs().WebhookTargetURL
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be absolute http(s)"})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	hook, err := s.service.CreateWebhook(ctx, sess.Prefs(), target, body.Events)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"webhook": hook})
}

func (s *Server) deleteWebhook(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "webhook id is required"})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	if err := s.service.DeleteWebhook(ctx, sess.Prefs(), id); err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// receiveWebhookEvent accepts an upstream webhook delivery and pushes it to
// every connected feed client. Deliveries are accepted regardless of shape;
// a non-JSON body is rejected but nothing else is validated, the feed is a
// demo surface.
func (s *Server) receiveWebhookEvent(c *gin.Context) {
	var payload any
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	event := feed.Event{
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Payload:    payload,
	}
	s.hub.Broadcast(event)
	s.log.Info("webhook_event_received", "clients", s.hub.Count())
	c.JSON(http.StatusOK, gin.H{"ok": true, "clients": s.hub.Count()})
}

func (s *Server) streamWebhookEvents(c *gin.Context) {
	s.hub.Handle(c.Writer, c.Request)
}
