package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/fragmede/hnreader/internal/store"
)

type ctxKey struct{}

func adminFrom(ctx context.Context) (store.Admin, bool) {
	a, ok := ctx.Value(ctxKey{}).(store.Admin)
	return a, ok
}

// sessionAdmin loads the admin named by the request's session cookie.
func (s *Server) sessionAdmin(r *http.Request) (store.Admin, bool) {
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return store.Admin{}, false
	}
	id, ok := sess.Values[sessionKey].(string)
	if !ok || id == "" {
		return store.Admin{}, false
	}
	admin, err := s.store.GetAdmin(r.Context(), id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("loading session admin", "err", err)
		}
		return store.Admin{}, false
	}
	return admin, true
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, ok := s.sessionAdmin(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, admin)))
	})
}

// adminOrAPIKey accepts an admin session or, when an API key is
// configured, a matching X-API-Key header.
func (s *Server) adminOrAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if admin, ok := s.sessionAdmin(r); ok {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, admin)))
			return
		}
		key := r.Header.Get(apiKeyHdr)
		if s.apiKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin, err := s.store.Authenticate(r.Context(), req.Email, req.Password)
	if errors.Is(err, store.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		s.log.Error("login", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	sess, _ := s.sessions.Get(r, sessionName)
	sess.Values[sessionKey] = admin.ID
	if err := sess.Save(r, w); err != nil {
		s.log.Error("saving session", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	s.log.Info("admin logged in", "email", admin.Email)
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": "Logged in", "admin": admin})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessions.Get(r, sessionName)
	delete(sess.Values, sessionKey)
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		s.log.Error("clearing session", "err", err)
	}
	writeMessage(w, http.StatusOK, "Logged out")
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	admin, _ := adminFrom(r.Context())
	writeJSON(w, http.StatusOK, envelope{"success": true, "admin": admin})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin, err := s.store.SetupAdmin(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case errors.Is(err, store.ErrSetupComplete):
		writeError(w, http.StatusForbidden, "Setup already completed")
		return
	case isInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("setup", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to complete setup")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "message": "Admin setup complete", "userId": admin.ID})
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	admin, err := s.store.CreateAdmin(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case isInputError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("creating admin", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{"success": true, "userId": admin.ID})
}

func isInputError(err error) bool {
	return errors.Is(err, store.ErrInvalidEmail) ||
		errors.Is(err, store.ErrWeakPassword) ||
		errors.Is(err, store.ErrAdminExists)
}
