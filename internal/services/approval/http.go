package approval

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/auth"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/metrics"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>`))

// NewHandler mounts the approval link, the admin reject route, health and
// metrics.
func NewHandler(s *Service, jwtSecret []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/approve", s.approve)
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/admin", auth.RequireAdmin(jwtSecret))
	admin.POST("/verifications/:id/reject", s.reject)
	return r
}

func render(c *gin.Context, code int, title, msg string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(code)
	_ = page.Execute(c.Writer, map[string]string{"Title": title, "Message": msg})
}

func (s *Service) approve(c *gin.Context) {
	id := strings.TrimSpace(c.Query("verificationId"))
	token := strings.TrimSpace(c.Query("token"))
	entry := entities.AuditEntry{Action: "approve", VerificationID: id, RemoteAddr: c.ClientIP()}
	log := s.log.With().Str("verification_id", id).Logger()

	defer func() {
		s.audit(c.Request.Context(), entry)
		metrics.ApprovalRequests.WithLabelValues(entry.Outcome).Inc()
	}()

	if id == "" || token == "" {
		entry.Outcome = entities.OutcomeBadRequest
		render(c, http.StatusBadRequest, "Invalid link", "The approval link is missing required parameters.")
		return
	}

	res, err := s.Approve(c.Request.Context(), id, token)
	switch {
	case err == nil && res.AlreadyApproved:
		entry.Outcome, entry.Detail = entities.OutcomeSuccess, "already_approved"
		render(c, http.StatusOK, "Already approved", "This verification request was already approved.")
	case err == nil:
		entry.Outcome = entities.OutcomeSuccess
		log.Info().Str("user_id", res.Verification.UserID).Msg("verification approved")
		render(c, http.StatusOK, "Approved", "The user "+res.Verification.Name+" is now verified.")
	case errors.Is(err, store.ErrNotFound):
		entry.Outcome = entities.OutcomeNotFound
		render(c, http.StatusNotFound, "Not found", "This verification request does not exist.")
	case errors.Is(err, ErrTokenInvalid):
		entry.Outcome = entities.OutcomeInvalidToken
		log.Warn().Str("remote_addr", entry.RemoteAddr).Msg("invalid approval token")
		render(c, http.StatusForbidden, "Invalid token", "The approval token is not valid for this request.")
	case errors.Is(err, ErrTokenExpired):
		entry.Outcome = entities.OutcomeExpiredToken
		render(c, http.StatusGone, "Link expired", "This approval link has expired.")
	case errors.Is(err, ErrRejected):
		entry.Outcome = entities.OutcomeRejectedConflict
		render(c, http.StatusConflict, "Request rejected", "This verification request was rejected and cannot be approved.")
	default:
		entry.Outcome, entry.Detail = entities.OutcomeInternalError, err.Error()
		log.Error().Err(err).Msg("approval failed")
		render(c, http.StatusInternalServerError, "Error", "The request could not be processed. Try again later.")
	}
}

func (s *Service) reject(c *gin.Context) {
	id := c.Param("id")
	entry := entities.AuditEntry{Action: "reject", VerificationID: id, RemoteAddr: c.ClientIP()}
	if sub, ok := c.Get("admin_subject"); ok {
		entry.Detail, _ = sub.(string)
	}
	defer func() { s.audit(c.Request.Context(), entry) }()

	err := s.Reject(c.Request.Context(), id)
	switch {
	case err == nil:
		entry.Outcome = entities.OutcomeSuccess
		c.JSON(http.StatusOK, gin.H{"id": id, "status": entities.VerificationRejected})
	case errors.Is(err, store.ErrNotFound):
		entry.Outcome = entities.OutcomeNotFound
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrStale):
		entry.Outcome = entities.OutcomeRejectedConflict
		c.JSON(http.StatusConflict, gin.H{"error": "verification is not pending"})
	default:
		entry.Outcome = entities.OutcomeInternalError
		s.log.Error().Err(err).Str("verification_id", id).Msg("reject failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
