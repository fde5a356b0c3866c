package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"insiderscan/clients/notifier"
	"insiderscan/config"

	"go.uber.org/zap"
)

const telegramAPIURL = "https://api.telegram.org/bot%s/%s"

// TelegramClient sends badge alerts to Telegram.
// Implements notifier.Notifier interface.
type TelegramClient struct {
	logger   *zap.Logger
	botToken string
	chatID   string
	isProd   bool
	client   *http.Client
}

func NewTelegramClient(logger *zap.Logger, cfg *config.Config) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	chatID := cfg.Telegram.BetaChatID
	if cfg.IsProd {
		chatID = cfg.Telegram.ProdChatID
	}

	token := cfg.Telegram.BotToken
	if token == "" {
		logger.Warn("TELEGRAM_BOT_KEY not set, Telegram alerts disabled")
		return &TelegramClient{
			logger: logger,
			chatID: chatID,
			isProd: cfg.IsProd,
		}
	}

	logger.Info("telegram bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("chatID", chatID),
	)

	return &TelegramClient{
		logger:   logger,
		botToken: token,
		chatID:   chatID,
		isProd:   cfg.IsProd,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SendBadgeAlert sends a badge alert notification.
// Implements notifier.Notifier interface.
func (tc *TelegramClient) SendBadgeAlert(alert notifier.BadgeAlert) {
	if tc.botToken == "" || tc.chatID == "" {
		tc.logger.Warn("telegram not configured, skipping alert")
		return
	}

	message := tc.buildAlertMessage(alert)

	if err := tc.sendMessage(message); err != nil {
		tc.logger.Error("failed to send telegram message", zap.Error(err))
		return
	}

	tc.logger.Info("sent telegram badge alert",
		zap.String("wallet", shortAddress(alert.WalletAddress)),
		zap.String("badge", alert.BadgeType),
	)
}

func (tc *TelegramClient) buildAlertMessage(alert notifier.BadgeAlert) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("*%s*\n\n", escapeMarkdown(notifier.Title(alert.BadgeType))))
	sb.WriteString(fmt.Sprintf("%s\n\n", escapeMarkdown(alert.Reason)))

	// Wallet info
	walletDisplay := shortAddress(alert.WalletAddress)
	if alert.WalletURL != "" {
		sb.WriteString(fmt.Sprintf("*Wallet:* [%s](%s)\n", escapeMarkdown(walletDisplay), alert.WalletURL))
	} else {
		sb.WriteString(fmt.Sprintf("*Wallet:* %s\n", escapeMarkdown(walletDisplay)))
	}

	// Trade context, only present for per-trade badges
	if alert.MarketQuestion != "" {
		if alert.MarketURL != "" {
			sb.WriteString(fmt.Sprintf("*Market:* [%s](%s)\n", escapeMarkdown(alert.MarketQuestion), alert.MarketURL))
		} else {
			sb.WriteString(fmt.Sprintf("*Market:* %s\n", escapeMarkdown(alert.MarketQuestion)))
		}
		sb.WriteString(fmt.Sprintf("*Position:* %s, $%.2f @ $%.3f\n", escapeMarkdown(alert.Outcome), alert.UsdValue, alert.Price))
	}

	// Wallet stats
	sb.WriteString(fmt.Sprintf("*Trades:* %d\n", alert.TotalTrades))
	sb.WriteString(fmt.Sprintf("*Volume:* $%.2f\n", alert.TotalVolume))
	winRateStr := "N/A"
	if alert.HasWinRate {
		winRateStr = fmt.Sprintf("%.1f%%", alert.WinRate*100)
	}
	sb.WriteString(fmt.Sprintf("*Win Rate:* %s\n", winRateStr))

	// Timestamp
	pst, _ := time.LoadLocation("America/Los_Angeles")
	ts := alert.EarnedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.WriteString(fmt.Sprintf("\n_insiderscan • %s_", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)")))

	return sb.String()
}

func (tc *TelegramClient) sendMessage(text string) error {
	url := fmt.Sprintf(telegramAPIURL, tc.botToken, "sendMessage")

	payload := map[string]interface{}{
		"chat_id":    tc.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := tc.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// Close cleans up resources. Implements notifier.Notifier interface.
func (tc *TelegramClient) Close() error {
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// escapeMarkdown escapes special characters for Telegram Markdown.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"`", "\\`",
	)
	return replacer.Replace(s)
}
