package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"civicnotify/internal/config"
	apperrors "civicnotify/internal/errors"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 64 << 10

// Options configures an UltraMsgClient.
type Options struct {
	BaseURL    string        // e.g. https://api.ultramsg.com
	InstanceID string        // Provider instance identifier
	Token      string        // Provider API token
	RatePerSec float64       // Outbound send rate; <= 0 disables limiting
	Timeout    time.Duration // Per-request timeout
	DebugMode  bool          // Simulate acceptance without network I/O
	HTTPClient *http.Client  // Defaults to the shared pooled client
}

// UltraMsgClient talks to an UltraMsg-style WhatsApp gateway.
//
// Thread-safety:
//   - Safe for concurrent use; the limiter and http.Client are both
//     goroutine-safe
type UltraMsgClient struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

var _ Gateway = (*UltraMsgClient)(nil)

// NewUltraMsgClient creates a gateway client.
func NewUltraMsgClient(opts Options) *UltraMsgClient {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := opts.HTTPClient
	if client == nil {
		client = SharedHTTPClient()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}

	if opts.DebugMode {
		log.Println("🐛 DEBUG MODE ENABLED - gateway sends will be simulated")
	}

	return &UltraMsgClient{opts: opts, http: client, limiter: limiter}
}

// NewFromConfig creates a gateway client from application configuration.
func NewFromConfig(cfg *config.Config) *UltraMsgClient {
	return NewUltraMsgClient(Options{
		BaseURL:    cfg.GatewayBaseURL,
		InstanceID: cfg.GatewayInstanceID,
		Token:      cfg.GatewayToken,
		RatePerSec: float64(cfg.GatewayRatePerSec),
		Timeout:    cfg.RequestTimeout,
		DebugMode:  cfg.DebugMode,
	})
}

func (c *UltraMsgClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.opts.BaseURL, url.PathEscape(c.opts.InstanceID), path)
}

// Send delivers body to the recipient address.
//
// Returns:
//   - Result{Accepted: true}: provider accepted the message
//   - Result{Accepted: false, Detail}: provider rejected it, do not retry
//   - *errors.TransportFailure: timeout, connection error, 5xx or 429
func (c *UltraMsgClient) Send(ctx context.Context, to, body string) (Result, error) {
	recipient := NormalizeAddress(to)
	if recipient == "" {
		return Result{Detail: "invalid recipient address"}, nil
	}

	if c.opts.DebugMode {
		log.Printf("   🐛 [debug] would send %d chars to %s", len([]rune(body)), recipient)
		return Result{Accepted: true, ProviderID: "debug-" + uuid.NewString()}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, apperrors.NewTransportFailure("rate limiter wait", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("token", c.opts.Token)
	form.Set("to", recipient)
	form.Set("body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("messages/chat"), strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, payload, err := c.do(req)
	if err != nil {
		return Result{}, err
	}

	if status < 200 || status >= 300 {
		return Result{Detail: rejectionDetail(status, payload)}, nil
	}

	if !isTrue(payload["sent"]) {
		return Result{Detail: rejectionDetail(status, payload)}, nil
	}

	return Result{Accepted: true, ProviderID: stringOf(payload["id"])}, nil
}

// do executes req and decodes a JSON object response. Transport-level
// problems (network, 5xx, 429) come back as *errors.TransportFailure; any
// other status is returned to the caller with the decoded payload.
func (c *UltraMsgClient) do(req *http.Request) (int, map[string]any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, apperrors.NewTransportFailure("gateway request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, apperrors.NewTransportFailure("failed to read gateway response", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return 0, nil, apperrors.NewTransportFailure(fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	}

	payload := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		payload = map[string]any{"error": "unreadable gateway response"}
	}
	return resp.StatusCode, payload, nil
}

func (c *UltraMsgClient) get(ctx context.Context, path string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	u := c.endpoint(path) + "?" + url.Values{"token": {c.opts.Token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	status, payload, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apperrors.NewGatewayRejection(rejectionDetail(status, payload))
	}
	return payload, nil
}

// InstanceStatus reports whether the gateway instance is connected.
type InstanceStatus struct {
	AccountStatus string
	Raw           map[string]any
}

// Authenticated reports whether the chat account is linked and usable.
func (s InstanceStatus) Authenticated() bool {
	return s.AccountStatus == "authenticated"
}

// InstanceStatus fetches the provider's instance status. Read-only.
func (c *UltraMsgClient) InstanceStatus(ctx context.Context) (InstanceStatus, error) {
	if c.opts.DebugMode {
		return InstanceStatus{AccountStatus: "authenticated", Raw: map[string]any{"debug": true}}, nil
	}

	payload, err := c.get(ctx, "instance/status")
	if err != nil {
		return InstanceStatus{}, err
	}

	// Older instances report a flat accountStatus; newer ones nest it
	// under status.accountStatus.status.
	account := stringOf(payload["accountStatus"])
	if nested, ok := payload["status"].(map[string]any); ok {
		if acc, ok := nested["accountStatus"].(map[string]any); ok {
			account = stringOf(acc["status"])
		}
	}
	return InstanceStatus{AccountStatus: account, Raw: payload}, nil
}

// QueueStatus fetches the provider's outbound message queue. Read-only.
func (c *UltraMsgClient) QueueStatus(ctx context.Context) (map[string]any, error) {
	if c.opts.DebugMode {
		return map[string]any{"debug": true}, nil
	}
	return c.get(ctx, "messages/queue")
}

func isTrue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true")
	}
	return false
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func rejectionDetail(status int, payload map[string]any) string {
	if msg := errorMessage(payload["error"]); msg != "" {
		return msg
	}
	if msg := stringOf(payload["message"]); msg != "" {
		return msg
	}
	return fmt.Sprintf("gateway returned %d without accepting the message", status)
}

// errorMessage flattens the provider's error field, which is either a
// string or a list of {field: message} objects.
func errorMessage(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var parts []string
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				for k, msg := range m {
					parts = append(parts, k+": "+stringOf(msg))
				}
				continue
			}
			parts = append(parts, stringOf(item))
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
