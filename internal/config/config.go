// Package config loads application settings from the environment.
// Every value has a default so the server starts with no environment at all.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIAddr          = ":8080"         // listen address for HTTP and websocket
	defaultDatabaseDSN      = "excelidraw.db" // sqlite file
	defaultRoomCacheTTLSec  = 10 * 60         // room directory cache TTL (10 minutes)
	defaultHistoryLimit     = 1000            // max chats returned by GET /chats/{id}
	defaultSendBuffer       = 256             // per-connection outbound queue length
	defaultMaxMessageBytes  = 1 << 20         // inbound frame limit (1MB)
	defaultMessageLog       = MessageLogSQL
	defaultMongoURI         = "mongodb://localhost:27017"
	defaultMongoDatabase    = "excelidraw"
	defaultShutdownTimeout  = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultRequireMember    = true
	defaultLogLevel         = "info"
	defaultClientServerURL  = "http://localhost:8080"
	defaultClientMinShape   = 2.0
	defaultClientDedupeSize = 512
)

// Message log backends.
const (
	MessageLogSQL   = "sql"
	MessageLogMongo = "mongo"
)

// defaultAllowedOrigins lists the browser origins allowed by CORS.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
}

// Config holds the server settings.
type Config struct {
	APIAddr       string        // listen address
	DatabaseDSN   string        // sqlite DSN for accounts, rooms and chats
	RedisAddr     string        // empty disables the room cache
	RoomCacheTTL  time.Duration // room cache entry lifetime
	AllowedOrigin []string      // CORS origins
	JWTSecret     string        // empty disables JWT session tokens
	HistoryLimit  int           // cap for GET /chats/{id}
	MessageLog    string        // MessageLogSQL or MessageLogMongo
	MongoURI      string
	MongoDatabase string
	LogLevel      string
	ShutdownWait  time.Duration
	RequireMember bool // reject chat from connections that have not joined the room
	Socket        SocketConfig
}

// SocketConfig tunes the per-connection websocket pumps.
type SocketConfig struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration // always below PongWait
}

// Load reads the server configuration from the environment.
// Missing or invalid values fall back to defaults.
func Load() Config {
	pongWait := envDuration("WS_PONG_WAIT", defaultPongWait)
	return Config{
		APIAddr:       envOr("API_ADDR", defaultAPIAddr),
		DatabaseDSN:   envOr("DATABASE_DSN", defaultDatabaseDSN),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RoomCacheTTL:  time.Duration(envInt("ROOM_CACHE_TTL_SEC", defaultRoomCacheTTLSec)) * time.Second,
		AllowedOrigin: envCSV("CORS_ALLOWED_ORIGINS", defaultAllowedOrigins),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		HistoryLimit:  envInt("HISTORY_LIMIT", defaultHistoryLimit),
		MessageLog:    envOr("MESSAGE_LOG_BACKEND", defaultMessageLog),
		MongoURI:      envOr("MONGO_URI", defaultMongoURI),
		MongoDatabase: envOr("MONGO_DATABASE", defaultMongoDatabase),
		LogLevel:      envOr("LOG_LEVEL", defaultLogLevel),
		ShutdownWait:  envDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		RequireMember: envBool("REQUIRE_MEMBERSHIP", defaultRequireMember),
		Socket: SocketConfig{
			SendBuffer:      envInt("WS_SEND_BUFFER", defaultSendBuffer),
			MaxMessageBytes: int64(envInt("WS_MAX_MESSAGE_BYTES", defaultMaxMessageBytes)),
			WriteTimeout:    envDuration("WS_WRITE_TIMEOUT", defaultWriteTimeout),
			PongWait:        pongWait,
			PingInterval:    pongWait * 9 / 10,
		},
	}
}

// DefaultSocketConfig returns the socket settings used when nothing is configured.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		SendBuffer:      defaultSendBuffer,
		MaxMessageBytes: defaultMaxMessageBytes,
		WriteTimeout:    defaultWriteTimeout,
		PongWait:        defaultPongWait,
		PingInterval:    defaultPongWait * 9 / 10,
	}
}

// ClientConfig holds the drawing client settings.
type ClientConfig struct {
	ServerURL    string  // http(s) base URL of the server
	SessionID    string  // identity token sent as ?sessionId=
	MinShapeSize float64 // rect/circle drags below this are discarded
	DedupeSize   int     // remembered inbound payloads
}

// LoadClient reads the drawing client configuration from the environment.
func LoadClient() ClientConfig {
	return ClientConfig{
		ServerURL:    envOr("EXCELIDRAW_SERVER", defaultClientServerURL),
		SessionID:    os.Getenv("EXCELIDRAW_SESSION"),
		MinShapeSize: envFloat("EXCELIDRAW_MIN_SHAPE", defaultClientMinShape),
		DedupeSize:   envInt("EXCELIDRAW_DEDUPE_SIZE", defaultClientDedupeSize),
	}
}

// SlogLevel maps LogLevel onto a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envOr returns the variable or def when unset.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt returns the variable as an int, or def when unset or invalid.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer, using default", "key", key, "value", v, "default", def)
			return def
		}
		return i
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid number, using default", "key", key, "value", v, "default", def)
			return def
		}
		return f
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean, using default", "key", key, "value", v, "default", def)
			return def
		}
		return b
	}
	return def
}

// envDuration accepts Go duration syntax ("15s", "2m").
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration, using default", "key", key, "value", v, "default", def)
			return def
		}
		return d
	}
	return def
}

// envCSV returns a comma separated list, or def when unset or empty.
func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
