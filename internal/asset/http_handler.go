package asset

import (
	"errors"
	"log"
	"net/http"

	"assetrelay/internal/httpx"
)

const fetchFailedMessage = "Failed to fetch asset data"

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// upstreamBodier is satisfied by upstream errors that kept the response body.
type upstreamBodier interface {
	UpstreamBody() []byte
}

// Get handles GET /assets
// @Summary Creator asset bundle
// @Description Shirts and game passes for a creator, cached for ten minutes
// @Tags assets
// @Produce json
// @Param x-fidget-dot header string true "Shared secret"
// @Param username query string true "Creator name"
// @Param userId query string true "Creator user id"
// @Success 200 {object} Bundle
// @Failure 400 {string} string
// @Failure 403 {string} string
// @Failure 500 {object} httpx.FailureResponse
// @Router /assets [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := Query{
		Username: query.Get("username"),
		UserID:   query.Get("userId"),
	}
	if q.Username == "" || q.UserID == "" {
		httpx.Text(w, http.StatusBadRequest, "Missing username or userId")
		return
	}

	body, err := h.svc.Assets(r.Context(), q)
	if err != nil {
		log.Printf("assets %s: request_id=%s user_id=%s error=%v", Kind(err), httpx.RequestIDFrom(r), q.UserID, err)

		var details interface{}
		var ub upstreamBodier
		if errors.As(err, &ub) {
			details = httpx.UpstreamDetails(ub.UpstreamBody())
		}
		httpx.JSONFailure(w, http.StatusInternalServerError, fetchFailedMessage, err.Error(), details)
		return
	}

	httpx.RawJSON(w, http.StatusOK, body)
}

// Ready handles GET /readyz.
func (h *HTTPHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		log.Printf("readiness check failed: %v", err)
		httpx.Text(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	httpx.Text(w, http.StatusOK, "ready")
}
