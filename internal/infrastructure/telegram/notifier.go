package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ArxivIntel/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// ErrMisconfigured is returned when the bot token or chat is missing.
var ErrMisconfigured = errors.New("telegram notifier misconfigured")

// sendMessage is the Bot API request body. ParseMode "Markdown" is the legacy
// dialect that digest notices are written in (*bold* and [title](url) links).
type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Notifier posts digest notices to one Telegram chat.
type Notifier struct {
	endpoint string
	chatID   string
	enabled  bool
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier targets chatID through the bot. apiURL defaults to the public Bot API.
func NewNotifier(apiURL, botToken, chatID string) *Notifier {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Notifier{
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimSuffix(apiURL, "/"), botToken),
		chatID:   chatID,
		enabled:  botToken != "" && chatID != "",
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// PublishDigest sends the notice. Telegram reports failures in the body as well
// as the status, so both are checked.
func (n *Notifier) PublishDigest(ctx context.Context, notice string) error {
	if !n.enabled {
		return ErrMisconfigured
	}

	body, err := json.Marshal(sendMessage{
		ChatID:                n.chatID,
		Text:                  notice,
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("telegram %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	if !out.OK {
		return fmt.Errorf("telegram error %d: %s", out.ErrorCode, out.Description)
	}
	return nil
}
