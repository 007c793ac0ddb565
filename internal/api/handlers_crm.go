package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"crm-insights/internal/crm"
)

// resolveCredential picks the connected credential the request should use:
// the explicit credentialId query param when present, otherwise the
// session-cached default, otherwise the first credential listed upstream.
func (s *Server) resolveCredential(c *gin.Context) (string, bool) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	credentialID, err := s.service.ResolveDefaultCredentialID(ctx, sess, c.Query("credentialId"))
	if err != nil {
		s.upstreamError(c, err)
		return "", false
	}
	if credentialID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no connected credential available"})
		return "", false
	}
	return credentialID, true
}

func (s *Server) listCredentials(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	credentials, err := s.service.ListCredentials(ctx, sess.Prefs(), c.Query("consumerKey"))
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": credentials})
}

func (s *Server) listPeople(c *gin.Context) {
	credentialID, ok := s.resolveCredential(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	people, err := s.service.ListPeople(ctx, sess.Prefs(), credentialID, limit)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

func (s *Server) listUsers(c *gin.Context) {
	credentialID, ok := s.resolveCredential(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	users, err := s.service.ListUsers(ctx, sess.Prefs(), credentialID, limit)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (s *Server) personInsights(c *gin.Context) {
	identifier := strings.TrimSpace(c.Query("value"))
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	var identifierType crm.IdentifierType
	switch strings.TrimSpace(c.Query("identifierType")) {
	case "personId":
		identifierType = crm.IdentifyByID
	case "email":
		identifierType = crm.IdentifyByEmail
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifierType must be personId or email"})
		return
	}

	credentialID, ok := s.resolveCredential(c)
	if !ok {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	insights, err := s.service.GetInsights(ctx, sess.Prefs(), credentialID, identifier, identifierType)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (s *Server) appointmentMetadata(c *gin.Context) {
	credentialID, ok := s.resolveCredential(c)
	if !ok {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	meta, err := s.service.GetAppointmentMetadata(ctx, sess.Prefs(), credentialID)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (s *Server) createAppointment(c *gin.Context) {
	var req crm.AppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	credentialID, ok := s.resolveCredential(c)
	if !ok {
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess := s.session(c)
	created, err := s.service.CreateAppointment(ctx, sess.Prefs(), credentialID, req)
	if err != nil {
		s.upstreamError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
