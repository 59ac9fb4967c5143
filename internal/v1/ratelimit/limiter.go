// Package ratelimit implements rate limiting using Redis or in-memory
// stores, keyed by authenticated user id where available and by client IP
// otherwise.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/auth"
	"github.com/Drew-Chase/playarr/internal/v1/config"
	"github.com/Drew-Chase/playarr/internal/v1/logging"
	"github.com/Drew-Chase/playarr/internal/v1/metrics"
)

// RateLimiter holds the limiter instances for each protected surface.
type RateLimiter struct {
	apiGlobal   *limiter.Limiter
	apiPublic   *limiter.Limiter
	apiRooms    *limiter.Limiter
	apiMessages *limiter.Limiter
	wsIP        *limiter.Limiter
	wsUser      *limiter.Limiter
	store       limiter.Store
}

// NewRateLimiter builds a RateLimiter from cfg, backed by Redis when
// redisClient is non-nil and an in-memory store otherwise.
func NewRateLimiter(cfg *config.RateLimitConfig, redisClient *redis.Client) (*RateLimiter, error) {
	rates := map[string]string{
		"global":   cfg.APIGlobal,
		"public":   cfg.APIPublic,
		"rooms":    cfg.APIRooms,
		"messages": cfg.APIMessages,
		"ws_ip":    cfg.WsIP,
		"ws_user":  cfg.WsUser,
	}
	parsed := make(map[string]limiter.Rate, len(rates))
	for name, formatted := range rates {
		rate, err := limiter.NewRateFromFormatted(formatted)
		if err != nil {
			return nil, fmt.Errorf("invalid %s rate %q: %w", name, formatted, err)
		}
		parsed[name] = rate
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "limiter:v1:"})
		if err != nil {
			return nil, fmt.Errorf("create redis limiter store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using in-memory store (Redis disabled)")
	}

	return &RateLimiter{
		apiGlobal:   limiter.New(store, parsed["global"]),
		apiPublic:   limiter.New(store, parsed["public"]),
		apiRooms:    limiter.New(store, parsed["rooms"]),
		apiMessages: limiter.New(store, parsed["messages"]),
		wsIP:        limiter.New(store, parsed["ws_ip"]),
		wsUser:      limiter.New(store, parsed["ws_user"]),
		store:       store,
	}, nil
}

// requestKey returns the rate-limit key and its label for metrics: the
// authenticated user id if RequireIdentity has already run, the client IP
// otherwise.
func requestKey(c *gin.Context) (key, limitType string) {
	if identity := auth.IdentityFromContext(c); identity.UserID != 0 {
		return strconv.FormatInt(identity.UserID, 10), "user"
	}
	return c.ClientIP(), "ip"
}

// GlobalMiddleware enforces the global per-user or per-IP rate limit,
// using the user limit once RequireIdentity has populated the context and
// the public IP limit otherwise.
func (rl *RateLimiter) GlobalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, limitType := requestKey(c)
		instance := rl.apiPublic
		if limitType == "user" {
			instance = rl.apiGlobal
		}
		rl.enforce(c, instance, key, limitType)
	}
}

// MiddlewareForEndpoint enforces a named endpoint's rate limit ("rooms" or
// "messages"), falling back to the global limit for unknown names.
func (rl *RateLimiter) MiddlewareForEndpoint(endpointType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var instance *limiter.Limiter
		switch endpointType {
		case "rooms":
			instance = rl.apiRooms
		case "messages":
			instance = rl.apiMessages
		default:
			instance = rl.apiGlobal
		}
		key, _ := requestKey(c)
		rl.enforce(c, instance, key, endpointType)
	}
}

func (rl *RateLimiter) enforce(c *gin.Context, instance *limiter.Limiter, key, limitType string) {
	ctx := c.Request.Context()
	result, err := instance.Get(ctx, key)
	if err != nil {
		// Fail open: availability beats strict enforcement when the store
		// itself is unreachable.
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		c.Next()
		return
	}

	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues(c.FullPath(), limitType).Inc()
		c.Header("Retry-After", strconv.FormatInt(result.Reset-time.Now().Unix(), 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests",
			"retry_after": result.Reset,
		})
		return
	}

	metrics.RateLimitRequests.WithLabelValues(c.FullPath()).Inc()
	c.Next()
}

// CheckWebSocket enforces the per-IP WebSocket connection rate limit before
// the upgrade happens. Returns false (having already written a response)
// when the limit is exceeded.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	result, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "websocket rate limiter store failed (ip)", zap.Error(err))
		return true
	}
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(result.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this IP"})
		return false
	}
	return true
}

// CheckWebSocketUser enforces the per-user WebSocket connection rate limit.
// Call this once the identity cookie has been parsed.
func (rl *RateLimiter) CheckWebSocketUser(ctx context.Context, userID int64) error {
	result, err := rl.wsUser.Get(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		logging.Error(ctx, "websocket rate limiter store failed (user)", zap.Error(err))
		return nil
	}
	if result.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "user").Inc()
		return fmt.Errorf("rate limit exceeded for user")
	}
	return nil
}

// StandardMiddleware exposes the underlying ulule/limiter gin middleware
// directly, for routes that just need the public rate without the
// user/IP branching above.
func (rl *RateLimiter) StandardMiddleware() gin.HandlerFunc {
	return mgin.NewMiddleware(rl.apiPublic)
}
