package http

import (
	"encoding/json"
	"net/http"

	"github.com/VishalGohania/excelidraw/internal/handlers"
	"github.com/VishalGohania/excelidraw/internal/hub"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Rooms    *handlers.RoomHandler
	Chats    *handlers.ChatHandler
	Socket   *handlers.SocketHandler
	Registry *hub.Registry
	Gatherer prometheus.Gatherer // nil disables /metrics
}

// NewRouter mounts the health, metrics, REST and socket routes. CORS is
// enabled only when allowedOrigins is non-empty.
func NewRouter(h Handlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"Link"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if h.Registry != nil {
			body["connections"] = h.Registry.Count()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})
	if h.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/room/{slug}", h.Rooms.Get)
	r.Post("/room", h.Rooms.Create)
	r.Get("/rooms", h.Rooms.ListMine)
	r.Get("/chats/{roomId}", h.Chats.History)

	// Room socket. "/" is kept for clients that connect to the bare host.
	r.Get("/ws", h.Socket.ServeHTTP)
	r.Get("/", h.Socket.ServeHTTP)

	return r
}
