// Package webhook delivers pipeline notifications to StackStorm-style
// webhooks authenticated with an St2-Api-Key header.
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KEPSOAR/DER-SecAgent/internal/app/usecases"
)

// HeaderAPIKey carries the webhook token.
const HeaderAPIKey = "St2-Api-Key"

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 30 * time.Second

var (
	ErrNoURL       = errors.New("no webhook url configured")
	ErrUnknownKind = errors.New("unknown notification kind")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned %d: %s", e.Code, e.Body)
}

// Config names the endpoints. An empty URL disables that kind.
type Config struct {
	ScriptURL string
	ReportURL string
	Token     string
	Timeout   time.Duration
	// InsecureSkipVerify accepts self-signed certificates on the endpoints.
	InsecureSkipVerify bool
}

// Notifier implements usecases.Notifier over HTTP POST with a JSON body.
type Notifier struct {
	cfg    Config
	client *http.Client
}

// NewNotifier creates a notifier with its own HTTP client.
func NewNotifier(cfg Config) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
	}
}

type scriptPayload struct {
	LogID   int64  `json:"log_id"`
	Script  string `json:"script"`
	Caution bool   `json:"caution"`
}

type reportPayload struct {
	LogID   int64  `json:"log_id"`
	Script  string `json:"script"`
	Report  string `json:"report"`
	Caution bool   `json:"caution"`
}

// Notify posts msg to the endpoint of its kind.
func (n *Notifier) Notify(ctx context.Context, msg usecases.Notification) error {
	var (
		url  string
		body any
	)
	switch msg.Kind {
	case usecases.NotifyScript:
		url = n.cfg.ScriptURL
		body = scriptPayload{LogID: msg.LogID, Script: msg.Script, Caution: msg.Caution}
	case usecases.NotifyReport:
		url = n.cfg.ReportURL
		body = reportPayload{LogID: msg.LogID, Script: msg.Script, Report: msg.Report, Caution: msg.Caution}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, msg.Kind)
	}
	if url == "" {
		return fmt.Errorf("%w for %s", ErrNoURL, msg.Kind)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", msg.Kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.Token != "" {
		req.Header.Set(HeaderAPIKey, n.cfg.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s webhook: %w", msg.Kind, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return nil
}
