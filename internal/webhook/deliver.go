// Package webhook announces finished gate attempts to configured HTTP
// endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkarlsen/pushgate/internal/gate"
)

// DeployEvent is the JSON payload delivered to webhook URLs after a
// gate attempt.
type DeployEvent struct {
	Event     string `json:"event"`
	Repo      string `json:"repository"`
	Ref       string `json:"ref"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Status    string `json:"status"`
	Step      string `json:"step"`
	ExitCode  int    `json:"exit_code"`
	Timestamp string `json:"timestamp"`
}

// Webhook is one endpoint to notify.
type Webhook struct {
	URL    string
	Secret string
}

// Hub delivers deploy events to a fixed set of webhooks. Delivery
// failures are logged, never fatal: a broken webhook must not reject a
// push.
type Hub struct {
	hooks  []Webhook
	client *http.Client
}

// NewHub returns a Hub for the given webhooks.
func NewHub(hooks []Webhook) *Hub {
	return &Hub{
		hooks:  hooks,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify sends the attempt to every webhook concurrently and waits for
// all deliveries to finish. Implements gate.Notifier.
func (h *Hub) Notify(ctx context.Context, a gate.Attempt) {
	if len(h.hooks) == 0 {
		return
	}

	status := "succeeded"
	if a.ExitCode != 0 {
		status = "failed"
	}
	event := DeployEvent{
		Event:     "deploy",
		Repo:      a.Repo,
		Ref:       a.Ref,
		Before:    a.OldHash,
		After:     a.NewHash,
		Status:    status,
		Step:      a.Step,
		ExitCode:  a.ExitCode,
		Timestamp: a.StartedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("webhook: marshal payload", "error", err)
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, wh := range h.hooks {
		wh := wh
		g.Go(func() error {
			h.deliver(ctx, wh, payload)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
}

func (h *Hub) deliver(ctx context.Context, wh Webhook, payload []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(payload))
	if err != nil {
		slog.Error("webhook: create request", "url", wh.URL, "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pushgate/1.0")
	req.Header.Set("X-Pushgate-Event", "deploy")

	if wh.Secret != "" {
		mac := hmac.New(sha256.New, []byte(wh.Secret))
		mac.Write(payload)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Pushgate-Signature", fmt.Sprintf("sha256=%s", sig))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		slog.Error("webhook: delivery failed", "url", wh.URL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("webhook: non-success response", "url", wh.URL, "status", resp.StatusCode)
	} else {
		slog.Info("webhook: delivered", "url", wh.URL, "status", resp.StatusCode)
	}
}
