package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/pokerdash/internal/config"
	"github.com/kiliankoe/pokerdash/internal/metrics"
	"github.com/kiliankoe/pokerdash/internal/mw"
	"github.com/kiliankoe/pokerdash/internal/poker"
	"github.com/kiliankoe/pokerdash/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type createRoomRequest struct {
	OwnerName     string       `json:"ownerName" binding:"required"`
	VotingPreset  poker.Preset `json:"votingPreset" binding:"required"`
	TimerDuration int          `json:"timerDuration" binding:"min=0,max=86400"`
	AutoReveal    bool         `json:"autoReveal"`
}

type presetInfo struct {
	Name   poker.Preset      `json:"name"`
	Values []*poker.Estimate `json:"values"`
}

// New wires middleware, the room API and the raw WebSocket endpoint. The
// Socket.IO server is mounted separately because it owns a serve loop.
func New(cfg config.Config, rooms *poker.RoomManager, transport *ws.Server, apiLimiter *mw.RL) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(accessLog())
	r.Use(metrics.GinMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	if apiLimiter != nil {
		api.Use(mw.RateLimit(apiLimiter))
	}

	api.GET("/presets", func(c *gin.Context) {
		out := make([]presetInfo, 0, len(poker.Presets))
		for _, p := range poker.Presets {
			out = append(out, presetInfo{Name: p, Values: p.Values()})
		}
		c.JSON(http.StatusOK, out)
	})

	api.POST("/rooms", func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		id, err := rooms.CreateRoom(c.Request.Context(), req.OwnerName, req.VotingPreset, req.TimerDuration, req.AutoReveal)
		if errors.Is(err, poker.ErrInvalidSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_settings"})
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("create room")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"roomId": id})
	})

	// Only the owner and head count are exposed; room contents stay private.
	api.GET("/rooms/:roomId", func(c *gin.Context) {
		sum, err := rooms.Summary(c.Request.Context(), c.Param("roomId"))
		if errors.Is(err, poker.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		if err != nil {
			log.Error().Err(err).Str("room", c.Param("roomId")).Msg("room summary")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	if transport != nil {
		r.GET("/ws/:roomId", transport.ServeWS)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type"}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// accessLog logs HTTP requests, skipping the long-lived transport endpoints.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") || strings.HasPrefix(path, "/ws/") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}
