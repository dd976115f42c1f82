package api

import (
	"context"
	"crypto/subtle"
	"encoding/csv"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cantikdist/edge-intake/internal/pipeline"
	"github.com/cantikdist/edge-intake/internal/relay"
)

// minExportSecretLen guards against trivially guessable admin secrets.
const minExportSecretLen = 16

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLeadBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "body is unreadable or too large")
		return
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, "body is empty")
		return
	}

	result := s.pipeline.Submit(
		r.Context(),
		body,
		clientKey(r),
		r.Header.Get("Idempotency-Key"),
		clientContext(r),
	)
	w.Header().Set("Idempotency-Key", result.IdempotencyKey)

	switch result.Outcome {
	case pipeline.Accepted:
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"ref":    result.Ref,
		})
	case pipeline.AcceptedWithWarning:
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"status":  "accepted",
			"ref":     result.Ref,
			"warning": result.Warning,
		})
	case pipeline.RateLimited:
		retryAfter := int(result.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate_limited",
		})
	case pipeline.Invalid:
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation_error",
			"fields": result.Fields,
		})
	case pipeline.CriticalFailure:
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "persistence_failed_critical",
		})
	default:
		s.writeError(w, http.StatusInternalServerError, "service misconfigured")
	}
}

func (s *Server) forwardEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		// Still a success for the caller; telemetry never errors outward.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.forwarder.Forward(r.Context(), body, relay.ClientContext{
		UserAgent:    r.UserAgent(),
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-IP"),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) exportLeads(w http.ResponseWriter, r *http.Request) {
	secret := s.cfg.Admin.ExportToken
	if len(secret) < minExportSecretLen {
		s.writeError(w, http.StatusServiceUnavailable, "service_not_configured")
		return
	}
	token := adminToken(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := queryInt(r, "limit", s.cfg.Store.ExportPageDefault)
	if max := s.cfg.Store.ExportPageMax; limit > max {
		limit = max
	}
	if limit <= 0 {
		limit = s.cfg.Store.ExportPageDefault
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	rows, err := s.leads.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("lead export failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "upstream_error")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="leads.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "business_name", "contact_name", "phone", "city", "category", "email", "submitted_at"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.ID,
			row.BusinessName,
			row.ContactName,
			row.Phone,
			row.City,
			row.Category,
			row.Email,
			row.SubmittedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Error("csv write failed", zap.Error(err))
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.leads.Ping(ctx); err != nil {
		// Coarse status only; collaborator identities stay internal.
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// adminToken pulls the shared secret from X-Admin-Token or a Bearer header.
func adminToken(r *http.Request) string {
	if t := r.Header.Get("X-Admin-Token"); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
