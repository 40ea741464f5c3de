package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rag-chat/internal/usecase"
)

// Deps are the collaborators of the HTTP surface. Limiter and Auth are
// optional.
type Deps struct {
	Chat           usecase.ChatUseCase
	RAG            usecase.RAGChatUseCase
	Limiter        RateLimiter
	Auth           *AuthManager
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

type Server struct {
	chat     usecase.ChatUseCase
	rag      usecase.RAGChatUseCase
	limiter  RateLimiter
	auth     *AuthManager
	timeout  time.Duration
	upgrader websocket.Upgrader
	log      *zerolog.Logger
}

func NewServer(d Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	l := d.Logger.With().Str("component", "http").Logger()
	return &Server{
		chat:    d.Chat,
		rag:     d.RAG,
		limiter: d.Limiter,
		auth:    d.Auth,
		timeout: d.RequestTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(d.AllowedOrigins),
		},
		log: &l,
	}
}

// Routes builds the router. Streaming routes skip the request timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Require())
		}

		r.Route("/api/chats/histories", func(r chi.Router) {
			r.Use(Timeout(s.timeout))
			r.Get("/", s.listSessions)
			r.Post("/create", s.createSession)
			r.Get("/{id}", s.getSession)
			r.Patch("/{id}", s.renameSession)
			r.Delete("/{id}", s.deleteSession)
			r.Get("/{id}/messages", s.listMessages)
		})

		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(RateLimit(s.limiter, ClientKey, "stream", s.log))
			}
			r.Get("/api/chats/stream", s.streamSSE)
		})

		r.Get("/ws/chat", s.serveWS)
	})
	return r
}

// originChecker allows the listed origins; "*" allows any. An empty list
// keeps gorilla's same-host check.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
