// Package telegram sends operator alerts through a Telegram bot.
//
// Citizen and department messages always go through the messaging gateway.
// When the gateway itself is the thing failing, an alert over the same
// gateway may never arrive, so operators can point alerts at a Telegram
// chat instead.
//
// Configuration:
//   - TELEGRAM_BOT_TOKEN: Bot API token from @BotFather
//   - TELEGRAM_CHAT_ID: Chat that receives alerts
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"time"

	"civicnotify/internal/complaint"
	"civicnotify/internal/gateway"
)

const defaultAPIBase = "https://api.telegram.org"

// Message represents a Telegram message for sending.
type Message struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// Client represents a Telegram bot client.
//
// Fields:
//   - BotToken: Telegram bot API token
//   - ChatID: Target chat ID for alerts
//   - DebugMode: If true, skip actual API calls
type Client struct {
	BotToken  string
	ChatID    string
	DebugMode bool

	apiBase string
	http    *http.Client
	now     func() time.Time
}

// NewClient creates a Telegram client.
//
// Returns nil when the bot token or chat ID is empty; a nil *Client is
// never handed to the dispatcher.
func NewClient(botToken, chatID string, debugMode bool) *Client {
	if botToken == "" || chatID == "" {
		return nil
	}

	log.Println("✓ Telegram operator alerts configured")
	if debugMode {
		log.Println("🐛 DEBUG MODE ENABLED - Telegram calls will be simulated")
	}

	return &Client{
		BotToken:  botToken,
		ChatID:    chatID,
		DebugMode: debugMode,
		apiBase:   defaultAPIBase,
		http:      gateway.SharedHTTPClient(),
		now:       time.Now,
	}
}

// doRequest posts a JSON payload to a Bot API method and checks the "ok"
// flag of the reply.
func (c *Client) doRequest(ctx context.Context, method string, payload any) (map[string]any, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	apiURL := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if ok, exists := result["ok"].(bool); !exists || !ok {
		return nil, fmt.Errorf("telegram API error: %v", result["description"])
	}

	return result, nil
}

// Alert sends a critical alert about a delivery that ended without reaching
// its recipient.
//
// Message format:
//
//	🚨 NOTIFICATION FAILURE
//	Complaint: GNT-1042
//	Recipient: official (+919886000201)
//	Outcome: failed after 3 attempt(s)
//	Error: ...
func (c *Client) Alert(ctx context.Context, attempt complaint.DispatchAttempt) error {
	if c.DebugMode {
		log.Printf("   🐛 [DEBUG] Simulated Telegram alert for complaint %s", attempt.ComplaintID)
		return nil
	}

	log.Println("   🚨 Sending critical alert to Telegram...")

	message := fmt.Sprintf(
		"🚨 <b>NOTIFICATION FAILURE</b>\n\n"+
			"<b>Complaint:</b> %s\n"+
			"<b>Recipient:</b> %s (%s)\n"+
			"<b>Outcome:</b> %s after %d attempt(s)\n"+
			"<b>Error:</b> %s\n"+
			"<b>Timestamp:</b> %s\n\n"+
			"⚠️ <b>Action Required:</b> The recipient has not been notified.",
		html.EscapeString(attempt.ComplaintID),
		attempt.Role, html.EscapeString(attempt.Address),
		attempt.Outcome, attempt.Attempts,
		html.EscapeString(attempt.LastError),
		c.now().Format("2006-01-02 15:04:05"),
	)

	_, err := c.doRequest(ctx, "sendMessage", Message{
		ChatID:                c.ChatID,
		Text:                  message,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}

	log.Println("   ✓ Critical alert successfully sent to Telegram")
	return nil
}
