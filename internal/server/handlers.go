package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fragmede/hnreader/internal/newsletter"
	"github.com/fragmede/hnreader/internal/store"
)

const maxBodyBytes = 1 << 16

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": false, "error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{"success": true, "message": msg})
}

// decode reads a JSON body into dst, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	_, err := s.store.AddSubscriber(r.Context(), req.Email, req.Name)
	switch {
	case errors.Is(err, store.ErrAlreadySubscribed):
		writeError(w, http.StatusBadRequest, "Email already subscribed")
		return
	case errors.Is(err, store.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	case err != nil:
		s.log.Error("subscribe", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process subscription")
		return
	}
	writeMessage(w, http.StatusOK, "Successfully subscribed to newsletter")
}

const unsubscribedPage = `<html>
<head>
<title>Unsubscribed</title>
<style>
body { font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 40px 20px; text-align: center; line-height: 1.6; }
h1 { color: #333; }
p { color: #666; }
</style>
</head>
<body>
<h1>Successfully Unsubscribed</h1>
<p>You have been unsubscribed from the Hacker News newsletter.</p>
<p>If this was a mistake, you can <a href="/">subscribe again</a>.</p>
</body>
</html>
`

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	err := s.store.Unsubscribe(r.Context(), email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusBadRequest, "Subscriber not found")
		return
	case errors.Is(err, store.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	case err != nil:
		s.log.Error("unsubscribe", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to process unsubscription")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, unsubscribedPage)
}

func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	list := s.store.ListSubscribers
	if r.URL.Query().Get("active") == "true" {
		list = s.store.ActiveSubscribers
	}
	subs, err := list(r.Context())
	if err != nil {
		s.log.Error("listing subscribers", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch subscribers")
		return
	}
	if subs == nil {
		subs = []store.Subscriber{}
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "subscribers": subs})
}

func (s *Server) handleToggleStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Active *bool  `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Subscriber ID is required")
		return
	}
	active := req.Active != nil && *req.Active

	err := s.store.SetSubscriberActive(r.Context(), req.ID, active)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Subscriber not found")
		return
	}
	if err != nil {
		s.log.Error("toggling subscriber", "id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update subscriber")
		return
	}
	sub, err := s.store.GetSubscriber(r.Context(), req.ID)
	if err != nil {
		s.log.Error("reloading subscriber", "id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to update subscriber")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "subscriber": sub})
}

func (s *Server) handleSendNewsletter(w http.ResponseWriter, r *http.Request) {
	rep, err := s.job.Run(r.Context())
	switch {
	case errors.Is(err, newsletter.ErrNoStories):
		writeError(w, http.StatusInternalServerError, "Failed to fetch stories")
		return
	case errors.Is(err, newsletter.ErrNoSubscribers):
		writeError(w, http.StatusInternalServerError, "No subscribers found")
		return
	case err != nil:
		s.log.Error("sending newsletter", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to send newsletter")
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "message": rep.Message(), "report": rep})
}
