package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rwa-price-aggregator/internal/domain"
)

// Notification 封装一次触发告警的完整上下文。
type Notification struct {
	Recipient     domain.EmailAddress
	TokenSymbol   string
	CurrentSpread domain.Spread
	ThresholdPct  decimal.Decimal
	BestBidVenue  string
	BestBidPrice  decimal.Decimal
	BestAskVenue  string
	BestAskPrice  decimal.Decimal
	TriggeredAt   time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// EmailNotifier delivers alert emails through the Postmark HTTP API.
// Without a server token it runs in dev mode and only logs the message.
type EmailNotifier struct {
	serverToken string
	fromAddress string
	baseURL     string
	client      *http.Client
	logger      zerolog.Logger
}

// NewEmailNotifier 构造 Postmark 邮件告警器。
func NewEmailNotifier(serverToken, fromAddress, baseURL string, timeout time.Duration, logger zerolog.Logger) *EmailNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.postmarkapp.com"
	}

	return &EmailNotifier{
		serverToken: serverToken,
		fromAddress: fromAddress,
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "alert_email").Logger(),
	}
}

type postmarkRequest struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody"`
	MessageStream string `json:"MessageStream"`
}

// Notify sends one alert email. In dev mode (empty token) the message
// is logged and delivery reports success.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	subject := fmt.Sprintf("%s spread alert: %s", note.TokenSymbol, note.CurrentSpread)
	body := renderMessage(note)

	if n.serverToken == "" {
		n.logger.Info().
			Str("to", note.Recipient.String()).
			Str("subject", subject).
			Msg("dev mode, alert logged instead of sent")
		return nil
	}

	payload, err := json.Marshal(postmarkRequest{
		From:          n.fromAddress,
		To:            note.Recipient.String(),
		Subject:       subject,
		TextBody:      body,
		MessageStream: "outbound",
	})
	if err != nil {
		return fmt.Errorf("marshal postmark payload: %w", err)
	}

	url := n.baseURL + "/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", n.serverToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send postmark request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("postmark 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		ErrorCode int    `json:"ErrorCode"`
		Message   string `json:"Message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if result.ErrorCode != 0 {
			return fmt.Errorf("postmark error %d: %s", result.ErrorCode, result.Message)
		}
	}

	n.logger.Info().
		Str("to", note.Recipient.String()).
		Str("token", note.TokenSymbol).
		Str("spread", note.CurrentSpread.String()).
		Msg("告警邮件已发送")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s Spread Alert\n\n", note.TokenSymbol))
	builder.WriteString(fmt.Sprintf("The effective spread has dropped to %s (threshold %s%%).\n\n",
		note.CurrentSpread, note.ThresholdPct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Best Bid: $%s on %s\n", note.BestBidPrice.StringFixed(4), note.BestBidVenue))
	builder.WriteString(fmt.Sprintf("Best Ask: $%s on %s\n", note.BestAskPrice.StringFixed(4), note.BestAskVenue))
	builder.WriteString(fmt.Sprintf("\nTriggered at %s UTC\n", note.TriggeredAt.UTC().Format(time.RFC3339)))
	return builder.String()
}

var _ Notifier = (*EmailNotifier)(nil)
