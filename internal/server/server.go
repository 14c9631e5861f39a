// Package server exposes the chat over a websocket and the question history
// over a small JSON API.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/systemshift/graphchat/internal/chat"
	"github.com/systemshift/graphchat/internal/history"
	"github.com/systemshift/graphchat/internal/metrics"
	"github.com/systemshift/graphchat/internal/qa"
)

// DefaultUser is the user id when no credentials are configured.
const DefaultUser = "admin"

// Breaker reports model gateway breaker state for health output.
type Breaker interface {
	State() string
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Store   history.Store
	Chain   qa.Answerer
	Chats   *chat.Manager
	Metrics *metrics.Collector
	Breaker Breaker
	Logger  *zap.Logger

	// Realm and Users configure basic auth. With no users auth is off and
	// every request acts as DefaultUser.
	Realm string
	Users map[string]string
}

// Server holds the HTTP server dependencies
type Server struct {
	store    history.Store
	chain    qa.Answerer
	chats    *chat.Manager
	metrics  *metrics.Collector
	breaker  Breaker
	logger   *zap.Logger
	realm    string
	users    map[string]string
	upgrader websocket.Upgrader
}

// New creates a new server.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realm := d.Realm
	if realm == "" {
		realm = "graphchat"
	}
	return &Server{
		store:   d.Store,
		chain:   d.Chain,
		chats:   d.Chats,
		metrics: d.Metrics,
		breaker: d.Breaker,
		logger:  logger.Named("server"),
		realm:   realm,
		users:   d.Users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if len(s.users) > 0 {
			r.Use(middleware.BasicAuth(s.realm, s.users))
		}
		r.Use(s.withUser)

		r.Route("/api", func(r chi.Router) {
			r.Get("/users/{id}/top", s.TopQueries)
			r.Get("/users/{id}/history", s.History)
			r.Post("/feedback", s.RecordFeedback)
		})
		r.Get("/ws", s.Chat)
	})

	return r
}

type ctxKey struct{}

// withUser stores the acting user id in the request context.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := DefaultUser
		if len(s.users) > 0 {
			user, _, _ = r.BasicAuth()
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	})
}

// UserFromContext returns the authenticated user id.
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(ctxKey{}).(string)
	return user
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
