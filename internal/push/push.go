// Package push delivers best-effort device notifications for users who are
// offline when a message lands. Failures are the caller's to log; nothing here
// retries or blocks the messaging pipeline.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

// Notifier is the collaborator interface the messaging core consumes.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// HTTPNotifier posts FCM-style payloads to a configured endpoint.
type HTTPNotifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPNotifier(endpoint, apiKey string) *HTTPNotifier {
	return &HTTPNotifier{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type payload struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    notification      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

func (n *HTTPNotifier) Notify(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	if len(tokens) == 0 {
		return nil
	}

	raw, err := json.Marshal(payload{
		RegistrationIDs: tokens,
		Notification:    notification{Title: title, Body: body},
		Data:            data,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return apperrors.CollaboratorFailure("push", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.CollaboratorFailure("push", fmt.Errorf("endpoint returned %s", resp.Status))
	}
	return nil
}

// Nop drops every notification. Used when no push endpoint is configured and
// in tests.
type Nop struct{}

func (Nop) Notify(context.Context, []string, string, string, map[string]string) error {
	return nil
}
