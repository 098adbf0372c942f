package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Env            string
	RedisURL       string
	RoomTTL        time.Duration
	Isolation      string
	AllowedOrigins []string
	MessageRate    float64
	MessageBurst   int
	ExportFile     string
}

// Load reads an optional .env file, then the environment.
func Load(files ...string) Config {
	_ = godotenv.Load(files...)
	return FromEnv()
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.Env = getenv("APP_ENV", "dev")
	c.RedisURL = os.Getenv("REDIS_URL")
	c.RoomTTL = getduration("ROOM_TTL", 6*time.Hour)
	c.Isolation = getenv("ROOM_ISOLATION", "none")
	c.AllowedOrigins = splitList(getenv("ALLOWED_ORIGINS", "*"))
	c.MessageRate = getfloat("MESSAGE_RATE", 20)
	c.MessageBurst = getint("MESSAGE_BURST", 40)
	c.ExportFile = os.Getenv("EXPORT_FILE")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil && d > 0 {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
