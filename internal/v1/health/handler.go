package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/bus"
	"github.com/Drew-Chase/playarr/internal/v1/logging"
)

// UpstreamChecker checks reachability of the upstream media server.
type UpstreamChecker interface {
	Check(ctx context.Context, baseURL string) string
}

// DefaultUpstreamChecker probes the media server with a plain,
// unauthenticated HTTP GET against its root (the upstream resolver queries
// the same root, but with the admin token, to fetch the machine identifier).
type DefaultUpstreamChecker struct {
	httpClient *http.Client
}

// NewDefaultUpstreamChecker builds an UpstreamChecker with a bounded probe
// timeout, independent of the main upstream client's circuit breaker so a
// flapping media server doesn't also trip readiness checks into silence.
func NewDefaultUpstreamChecker(timeout time.Duration) *DefaultUpstreamChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DefaultUpstreamChecker{httpClient: &http.Client{Timeout: timeout}}
}

// Check verifies the media server responds to an unauthenticated GET /.
func (c *DefaultUpstreamChecker) Check(ctx context.Context, baseURL string) string {
	if baseURL == "" {
		return "unhealthy"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		logging.Error(ctx, "failed to build upstream health check request", zap.Error(err))
		return "unhealthy"
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Error(ctx, "upstream media server health check failed", zap.Error(err), zap.String("url", baseURL))
		return "unhealthy"
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		logging.Warn(ctx, "upstream media server returned server error", zap.Int("status", resp.StatusCode))
		return "unhealthy"
	}

	return "healthy"
}

// Handler manages health check endpoints.
type Handler struct {
	redisService    *bus.Service
	mediaServerURL  string
	upstreamEnabled bool
	upstreamChecker UpstreamChecker
}

// NewHandler creates a health check handler. mediaServerURL is probed on
// every readiness check; an empty URL disables the upstream check.
func NewHandler(redisService *bus.Service, mediaServerURL string) *Handler {
	return &Handler{
		redisService:    redisService,
		mediaServerURL:  mediaServerURL,
		upstreamEnabled: mediaServerURL != "",
		upstreamChecker: NewDefaultUpstreamChecker(5 * time.Second),
	}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. Always 200 if the process is alive.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. 200 only if every dependency is
// healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	if h.upstreamEnabled {
		upstreamStatus := h.checkUpstream(ctx)
		checks["media_server"] = upstreamStatus
		if upstreamStatus != "healthy" {
			allHealthy = false
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redisService == nil {
		return "healthy"
	}
	if err := h.redisService.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}

func (h *Handler) checkUpstream(ctx context.Context) string {
	if h.upstreamChecker == nil {
		return "unhealthy"
	}
	return h.upstreamChecker.Check(ctx, h.mediaServerURL)
}

// MarshalJSON implements custom JSON marshaling for consistent field order.
func (r ReadinessResponse) MarshalJSON() ([]byte, error) {
	type Alias ReadinessResponse
	return json.Marshal(&struct {
		*Alias
	}{Alias: (*Alias)(&r)})
}
