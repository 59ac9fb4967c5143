package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/auth"
	"github.com/Drew-Chase/playarr/internal/v1/logging"
	"github.com/Drew-Chase/playarr/internal/v1/party"
	"github.com/Drew-Chase/playarr/internal/v1/ratelimit"
	"github.com/Drew-Chase/playarr/internal/v1/upstream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deps bundles everything the route handlers need, assembled once in
// cmd/playarr/main.go and passed to RegisterRoutes.
type Deps struct {
	Hub        *party.Hub
	Resolver   *upstream.Resolver
	Transcoder *upstream.Orchestrator
	RateLimit  *ratelimit.RateLimiter
}

// RegisterRoutes mounts the watch-party REST surface and the WebSocket
// upgrade endpoint (spec §6) onto r, plus the media streaming route
// (SPEC_FULL.md §9) that fronts the Transcode Decision Orchestrator.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	api := r.Group("/api/v1")
	api.Use(auth.RequireIdentity())
	if deps.RateLimit != nil {
		api.Use(deps.RateLimit.GlobalMiddleware())
	}

	rooms := api.Group("/watch-party/rooms")
	{
		roomsMW := []gin.HandlerFunc{}
		if deps.RateLimit != nil {
			roomsMW = append(roomsMW, deps.RateLimit.MiddlewareForEndpoint("rooms"))
		}
		rooms.POST("", append(roomsMW, createRoomHandler(deps))...)
		rooms.GET("", listRoomsHandler(deps))
		rooms.GET("/mine", listMineHandler(deps))
		rooms.GET("/:id", getRoomHandler(deps))
		rooms.DELETE("/:id", closeRoomHandler(deps))
		rooms.POST("/:id/kick/:userId", kickHandler(deps))
		rooms.POST("/join/:code", joinByCodeHandler(deps))
	}

	api.GET("/media/:id/stream", streamHandler(deps))

	ws := r.Group("/ws")
	if deps.RateLimit != nil {
		ws.Use(func(c *gin.Context) {
			if !deps.RateLimit.CheckWebSocket(c) {
				c.Abort()
				return
			}
			c.Next()
		})
	}
	ws.GET("/party/:id", wsHandler(deps))
}

type createRoomRequest struct {
	Name           string           `json:"name" binding:"required"`
	AccessMode     party.AccessMode `json:"access_mode" binding:"required"`
	AllowedUserIDs []party.UserID   `json:"allowed_user_ids,omitempty"`
}

func createRoomHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)

		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			Abort(c, BadRequest(err.Error()))
			return
		}

		info, err := deps.Resolver.FetchUserInfo(c.Request.Context(), identity.IdentityToken)
		if err != nil {
			logging.Warn(c.Request.Context(), "failed to fetch user info, using cookie identity", zap.Error(err))
		}
		username := info.Username

		r, err := deps.Hub.Store.CreateRoom(party.CreateRoomParams{
			HostUserID:     party.UserID(identity.UserID),
			HostUsername:   username,
			Name:           req.Name,
			AccessMode:     req.AccessMode,
			AllowedUserIDs: req.AllowedUserIDs,
		})
		if err != nil {
			Abort(c, Internal(err.Error()))
			return
		}
		c.JSON(http.StatusCreated, deps.Hub.Store.View(r))
	}
}

// listRoomsHandler backs the bare GET /watch-party/rooms route (spec §6):
// every room visible to the caller per the access-control visibility rule
// (§4.3), not just the ones they host.
func listRoomsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		c.JSON(http.StatusOK, deps.Hub.Store.ListForUser(party.UserID(identity.UserID)))
	}
}

// listMineHandler backs GET /watch-party/rooms/mine (SPEC_FULL.md §9): only
// the rooms the caller is hosting.
func listMineHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		c.JSON(http.StatusOK, deps.Hub.Store.ListHostedBy(party.UserID(identity.UserID)))
	}
}

func getRoomHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseRoomID(c.Param("id"))
		if err != nil {
			Abort(c, BadRequest("invalid room id"))
			return
		}
		r, err := deps.Hub.Store.Get(id)
		if err != nil {
			Abort(c, NotFound("room not found"))
			return
		}
		c.JSON(http.StatusOK, deps.Hub.Store.View(r))
	}
}

func closeRoomHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		id, err := parseRoomID(c.Param("id"))
		if err != nil {
			Abort(c, BadRequest("invalid room id"))
			return
		}
		r, err := deps.Hub.Store.Get(id)
		if err != nil {
			Abort(c, NotFound("room not found"))
			return
		}
		if r.HostUserID != party.UserID(identity.UserID) {
			Abort(c, Forbidden("only the host may close a room"))
			return
		}
		deps.Hub.CloseRoom(r)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func kickHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		id, err := parseRoomID(c.Param("id"))
		if err != nil {
			Abort(c, BadRequest("invalid room id"))
			return
		}
		r, err := deps.Hub.Store.Get(id)
		if err != nil {
			Abort(c, NotFound("room not found"))
			return
		}
		if r.HostUserID != party.UserID(identity.UserID) {
			Abort(c, Forbidden("only the host may kick participants"))
			return
		}
		target, err := parseUserID(c.Param("userId"))
		if err != nil {
			Abort(c, BadRequest("invalid user id"))
			return
		}
		if !deps.Hub.KickUser(c.Request.Context(), r, target, "kicked by host") {
			Abort(c, NotFound("user is not connected to this room"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func joinByCodeHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		r, err := deps.Hub.Store.RedeemInviteCode(c.Param("code"), party.UserID(identity.UserID))
		if err != nil {
			Abort(c, NotFound("invite code not found"))
			return
		}
		c.JSON(http.StatusOK, deps.Hub.Store.View(r))
	}
}

func streamHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := auth.IdentityFromContext(c)
		mediaID := c.Param("id")
		quality := c.Query("quality")
		directPlay := c.Query("direct_play") == "1"
		partKey := c.Query("part_key")
		clientID := c.Query("client_id")
		if clientID == "" {
			clientID = upstream.NewTranscodeSessionID()
		}

		serverToken := identity.ServerToken
		if serverToken == "" {
			serverToken = deps.Resolver.ResolveWithFallback(c.Request.Context(), identity.IdentityToken)
		}

		result, err := deps.Transcoder.Decide(c.Request.Context(), upstream.TranscodeRequest{
			MediaID:          mediaID,
			Quality:          quality,
			ServerToken:      serverToken,
			SessionID:        upstream.NewTranscodeSessionID(),
			ClientIdentifier: clientID,
		}, directPlay, partKey)
		if err != nil {
			Abort(c, ServiceUnavailable(err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": result.URL})
	}
}

func wsHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := auth.FromRequest(c.Request)
		if err != nil {
			Abort(c, Unauthorized(err.Error()))
			return
		}
		id, err := parseRoomID(c.Param("id"))
		if err != nil {
			Abort(c, BadRequest("invalid room id"))
			return
		}
		r, err := deps.Hub.Store.Get(id)
		if err != nil {
			Abort(c, NotFound("room not found"))
			return
		}
		if !party.CanJoin(r, party.UserID(identity.UserID)) {
			Abort(c, Forbidden("not allowed to join this room"))
			return
		}
		if deps.RateLimit != nil {
			if err := deps.RateLimit.CheckWebSocketUser(c.Request.Context(), identity.UserID); err != nil {
				Abort(c, ServiceUnavailable(err.Error()))
				return
			}
		}

		info, err := deps.Resolver.FetchUserInfo(c.Request.Context(), identity.IdentityToken)
		username := c.Query("username")
		thumb := ""
		if err == nil {
			username = info.Username
			thumb = info.Thumb
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
			return
		}

		deps.Hub.HandleConnection(c.Request.Context(), party.JoinParams{
			Room:     r,
			UserID:   party.UserID(identity.UserID),
			Username: username,
			Thumb:    thumb,
			Conn:     conn,
		})
	}
}
