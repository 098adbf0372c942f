package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/pokerdash/internal/config"
	"github.com/kiliankoe/pokerdash/internal/hub"
	"github.com/kiliankoe/pokerdash/internal/mw"
	"github.com/kiliankoe/pokerdash/internal/poker"
	"github.com/kiliankoe/pokerdash/internal/server"
	"github.com/kiliankoe/pokerdash/internal/store"
	"github.com/kiliankoe/pokerdash/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var version = "dev" // Set at build time via -ldflags

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Pokerdash - Real-time planning poker rooms

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables (also read from .env):
  PORT              Port to listen on (default: 8080)
  APP_ENV           "dev" for console logs, anything else for JSON (default: dev)
  REDIS_URL         Redis URL for room storage; empty keeps rooms in memory
  ROOM_TTL          Lifetime of an untouched room (default: 6h)
  ROOM_ISOLATION    "none" or "room" to serialize commands per room (default: none)
  ALLOWED_ORIGINS   Comma-separated CORS and WebSocket origins (default: *)
  MESSAGE_RATE      Messages per second allowed per connection (default: 20)
  MESSAGE_BURST     Burst size for the per-connection limiter (default: 40)
  EXPORT_FILE       Append revealed rounds to this file (optional)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Pokerdash %s\n", version)
		return
	}

	cfg := config.Load()
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Env == "dev" {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(cw).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	var st store.Store
	if cfg.RedisURL != "" {
		rs := store.NewRedis(cfg.RedisURL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rs.Ping(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("redis unreachable")
		}
		defer rs.Close()
		st = rs
		log.Info().Msg("using redis room store")
	} else {
		st = store.NewMemory()
		log.Warn().Msg("REDIS_URL not set, rooms are kept in memory")
	}

	isolation, err := poker.ParseIsolation(cfg.Isolation)
	if err != nil {
		log.Fatal().Err(err).Msg("ROOM_ISOLATION")
	}

	h := hub.New()
	rm := poker.NewRoomManager(st, h,
		poker.WithTTL(cfg.RoomTTL),
		poker.WithIsolation(isolation),
		poker.WithExportFile(cfg.ExportFile),
	)

	msgLimiter := mw.NewRateLimiter(rate.Limit(cfg.MessageRate), cfg.MessageBurst, 10*time.Minute)
	go msgLimiter.Run()
	defer msgLimiter.Stop()
	apiLimiter := mw.NewRateLimiter(rate.Every(time.Second/5), 20, 2*time.Minute)
	go apiLimiter.Run()
	defer apiLimiter.Stop()

	gin.SetMode(gin.ReleaseMode)
	transport := ws.New(h, rm, msgLimiter)
	transport.AllowedOrigins = cfg.AllowedOrigins
	r := server.New(cfg, rm, transport, apiLimiter)
	io := transport.Mount(r)
	defer io.Close()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Info().Str("port", cfg.Port).Str("isolation", string(isolation)).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server")
	}
	log.Info().Msg("server closed")
}
