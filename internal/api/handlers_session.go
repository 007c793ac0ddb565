package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"crm-insights/internal/crm"
	"crm-insights/internal/logging"
	"crm-insights/internal/rollout"
)

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	redisOK := s.redis.Ping(ctx) == nil
	status := http.StatusOK
	if !redisOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "redis": redisOK})
}

// rolloutToken mints a short-lived bearer token for the embedded Rollout UI
// components running in the browser.
func (s *Server) rolloutToken(c *gin.Context) {
	sess := s.session(c)
	prefs := sess.Prefs()

	if _, err := s.auth.RequireClientCredentials(prefs); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rollout client credentials are not configured"})
		return
	}

	consumerKey := s.auth.ResolveConsumerKey(prefs, c.Query("consumerKey"))
	token, expiresAt, err := s.auth.MintToken(prefs, consumerKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expiresAt})
}

func (s *Server) getRolloutClient(c *gin.Context) {
	sess := s.session(c)
	prefs := sess.Prefs()

	resp := gin.H{
		"configured":    prefs.HasClientCredentials() || s.auth.HasEnvironmentCredentials(),
		"source":        "environment",
		"clientId":      s.auth.DefaultClientID(),
		"clientUpdated": nil,
	}
	if prefs.HasClientCredentials() {
		resp["source"] = "session"
		resp["clientId"] = prefs.ClientID
		resp["clientUpdated"] = prefs.ClientUpdatedAt
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) setRolloutClient(c *gin.Context) {
	var body struct {
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(body.ClientID) == "" || strings.TrimSpace(body.ClientSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clientId and clientSecret are required"})
		return
	}

	sess := s.session(c)
	sess.SetClientCredentials(body.ClientID, body.ClientSecret)
	s.log.Info("session_client_configured",
		"session_id", sess.ID(),
		"client_id", body.ClientID,
		"client_secret", logging.MaskSecret(body.ClientSecret))
	c.JSON(http.StatusOK, gin.H{"ok": true, "clientId": strings.TrimSpace(body.ClientID)})
}

func (s *Server) clearRolloutClient(c *gin.Context) {
	sess := s.session(c)
	sess.ClearClientCredentials()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) getConsumerKey(c *gin.Context) {
	sess := s.session(c)
	prefs := sess.Prefs()
	c.JSON(http.StatusOK, gin.H{
		"consumerKey": s.auth.ResolveConsumerKey(prefs, ""),
		"override":    prefs.ConsumerKey,
	})
}

func (s *Server) setConsumerKey(c *gin.Context) {
	var body struct {
		ConsumerKey string `json:"consumerKey"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	sess := s.session(c)
	sess.SetConsumerKey(body.ConsumerKey)
	c.JSON(http.StatusOK, gin.H{"consumerKey": s.auth.ResolveConsumerKey(sess.Prefs(), "")})
}

func (s *Server) getWebhookTarget(c *gin.Context) {
	sess := s.session(c)
	c.JSON(http.StatusOK, gin.H{"url": sess.Prefs().WebhookTargetURL})
}

func (s *Server) setWebhookTarget(c *gin.Context) {
	var body struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	target := strings.TrimSpace(body.URL)
	if target != "" {
		if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url must be absolute http(s)"})
			return
		}
	}

	sess := s.session(c)
	sess.SetWebhookTarget(target)
	c.JSON(http.StatusOK, gin.H{"url": target})
}

// upstreamError translates errors from the service layer into the most
// specific response we can give. Upstream rejections keep their status and
// body so the browser can show what the connector said.
func (s *Server) upstreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, rollout.ErrClientCredentialsNotConfigured):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "rollout client credentials are not configured"})
	case errors.Is(err, crm.ErrPersonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
	default:
		var validationErr *crm.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error(), "details": validationErr.Missing})
			return
		}
		var apiErr *rollout.APIError
		if errors.As(err, &apiErr) {
			status := apiErr.Status
			if status < 400 || status > 599 {
				status = http.StatusBadGateway
			}
			var details any
			if json.Unmarshal([]byte(apiErr.Body), &details) != nil {
				details = apiErr.Body
			}
			c.JSON(status, gin.H{"error": "rollout api request failed", "details": details})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	}
}
