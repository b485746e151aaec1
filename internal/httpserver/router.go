package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"medchat/internal/security"
	"medchat/internal/service"
	"medchat/internal/ws"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	AppName     string
	CORSOrigins []string
	Tokens      *security.TokenService
	Events      *service.ChatEvents
	Broadcast   *ws.Broadcaster
	// Gateway serves /ws. It is mounted outside the request timeout.
	Gateway http.Handler
	// Ready reports backing store health for /health. Optional.
	Ready func(ctx context.Context) error
	// Connections reports open WebSocket connections on this instance. Optional.
	Connections func() int
	Log   zerolog.Logger
}

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(d.Log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": d.AppName + " chat API", "version": "1.0.0"})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ready(ctx); err != nil {
				d.Log.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
				return
			}
		}
		body := map[string]any{"status": "healthy"}
		if d.Connections != nil {
			body["connections"] = d.Connections()
		}
		writeJSON(w, http.StatusOK, body)
	})

	if d.Gateway != nil {
		r.Handle("/ws", d.Gateway)
	}

	h := &handlers{events: d.Events, broadcast: d.Broadcast, log: d.Log.With().Str("component", "http").Logger()}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(AuthMiddleware(d.Tokens))

		r.Post("/connections/{connectionID}/chat", h.getOrCreateChat)

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", h.listChats)
			r.Get("/unread", h.unreadTotal)
			r.Get("/{chatID}", h.chatDetails)
			r.Get("/{chatID}/access", h.chatAccess)
			r.Get("/{chatID}/messages", h.listMessages)
			r.Post("/{chatID}/messages", h.sendMessage)
			r.Post("/{chatID}/read", h.readAll)
			r.Get("/{chatID}/unread", h.chatUnread)
		})

		r.Route("/messages", func(r chi.Router) {
			r.Post("/{messageID}/read", h.markAsRead)
			r.Delete("/{messageID}", h.deleteMessage)
		})
	})

	return r
}

type handlers struct {
	events    *service.ChatEvents
	broadcast *ws.Broadcaster
	log       zerolog.Logger
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
