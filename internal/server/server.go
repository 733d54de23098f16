package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/fragmede/hnreader/internal/newsletter"
	"github.com/fragmede/hnreader/internal/store"
)

const (
	sessionName = "hnreader_session"
	sessionKey  = "admin_id"
	apiKeyHdr   = "X-API-Key"

	// MinSecretLength is the shortest accepted session secret.
	MinSecretLength = 32
)

var ErrWeakSecret = fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)

// Store is the persistence the HTTP API needs.
type Store interface {
	AddSubscriber(ctx context.Context, email, name string) (store.Subscriber, error)
	Unsubscribe(ctx context.Context, email string) error
	SetSubscriberActive(ctx context.Context, id string, active bool) error
	GetSubscriber(ctx context.Context, id string) (store.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]store.Subscriber, error)
	ActiveSubscribers(ctx context.Context) ([]store.Subscriber, error)
	SetupAdmin(ctx context.Context, email, password, name string) (store.Admin, error)
	CreateAdmin(ctx context.Context, email, password, name string) (store.Admin, error)
	Authenticate(ctx context.Context, email, password string) (store.Admin, error)
	GetAdmin(ctx context.Context, id string) (store.Admin, error)
}

// Newsletter sends one digest to all active subscribers.
type Newsletter interface {
	Run(ctx context.Context) (newsletter.Report, error)
}

type Server struct {
	store    Store
	job      Newsletter
	sessions *sessions.CookieStore
	apiKey   string
	log      *log.Logger
}

// New builds the HTTP API. An empty secret gets a random one, which means
// sessions do not survive a restart.
func New(st Store, job Newsletter, secret, apiKey string, logger *log.Logger) (*Server, error) {
	logger = logger.WithPrefix("http")
	if secret == "" {
		buf := make([]byte, MinSecretLength)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		secret = string(buf)
		logger.Warn("no session secret configured, using a random one")
	}
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	cs := sessions.NewCookieStore([]byte(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		store:    st,
		job:      job,
		sessions: cs,
		apiKey:   apiKey,
		log:      logger,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/newsletter/subscribe", s.handleSubscribe)
		r.Get("/newsletter/unsubscribe", s.handleUnsubscribe)

		r.Post("/admin/setup", s.handleSetup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.With(s.adminOrAPIKey).Get("/send-newsletter", s.handleSendNewsletter)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/auth/me", s.handleMe)
			r.Get("/admin/newsletter/subscribers", s.handleListSubscribers)
			r.Post("/admin/newsletter/toggle-status", s.handleToggleStatus)
			r.Post("/admin/users", s.handleCreateAdmin)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur", time.Since(start).Round(time.Microsecond),
			"req_id", middleware.GetReqID(r.Context()),
		)
	})
}
