package newsletter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Message is one outgoing email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers mail through the Resend HTTP API.
type ResendSender struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewResendSender(baseURL, apiKey string) *ResendSender {
	return &ResendSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(resendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sending to %s: HTTP %d: %s", msg.To, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	Log *log.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info("dry run", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
