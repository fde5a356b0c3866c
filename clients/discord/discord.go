package discord

import (
	"fmt"
	"time"

	"insiderscan/clients/notifier"
	"insiderscan/config"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Badge colors keyed by type; unknown types fall back to grey.
var badgeColors = map[string]int{
	"fresh_wallet":  0x3498DB, // blue
	"single_market": 0x9B59B6, // purple
	"high_win_rate": 0xF1C40F, // gold
	"big_bet":       0xE67E22, // orange
	"long_shot":     0x2ECC71, // green
	"pre_move":      0xE74C3C, // red
	"late_winner":   0x1ABC9C, // teal
	"first_mover":   0xF39C12, // amber
}

// DiscordClient sends badge alerts to Discord.
// Implements notifier.Notifier interface.
type DiscordClient struct {
	logger    *zap.Logger
	session   *discordgo.Session
	channelID string
	isProd    bool
}

func NewDiscordClient(logger *zap.Logger, cfg *config.Config) *DiscordClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	channelID := cfg.Discord.BetaChannelID
	if cfg.IsProd {
		channelID = cfg.Discord.ProdChannelID
	}

	token := cfg.Discord.BotToken
	if token == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, Discord alerts disabled")
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		logger.Error("failed to create discord session", zap.Error(err))
		return &DiscordClient{
			logger:    logger,
			channelID: channelID,
			isProd:    cfg.IsProd,
		}
	}

	logger.Info("discord bot initialized",
		zap.Bool("isProd", cfg.IsProd),
		zap.String("channelID", channelID),
	)

	return &DiscordClient{
		logger:    logger,
		session:   session,
		channelID: channelID,
		isProd:    cfg.IsProd,
	}
}

// SendMessage sends a plain text message.
func (dc *DiscordClient) SendMessage(message string) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping message")
		return
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, message)
	if err != nil {
		dc.logger.Error("failed to send discord message", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord message")
}

// SendBadgeAlert sends a rich embedded badge alert.
// Implements notifier.Notifier interface.
func (dc *DiscordClient) SendBadgeAlert(alert notifier.BadgeAlert) {
	if dc.session == nil {
		dc.logger.Warn("discord session not initialized, skipping alert")
		return
	}

	embed := dc.buildBadgeEmbed(alert)

	_, err := dc.session.ChannelMessageSendEmbed(dc.channelID, embed)
	if err != nil {
		dc.logger.Error("failed to send discord embed", zap.Error(err))
		return
	}

	dc.logger.Info("sent discord badge alert",
		zap.String("wallet", shortAddress(alert.WalletAddress)),
		zap.String("badge", alert.BadgeType),
	)
}

func (dc *DiscordClient) buildBadgeEmbed(alert notifier.BadgeAlert) *discordgo.MessageEmbed {
	color, ok := badgeColors[alert.BadgeType]
	if !ok {
		color = 0x95A5A6
	}

	walletDisplay := shortAddress(alert.WalletAddress)
	if alert.WalletURL != "" {
		walletDisplay = fmt.Sprintf("[%s](%s)", walletDisplay, alert.WalletURL)
	}

	winRateStr := "N/A"
	if alert.HasWinRate {
		winRateStr = fmt.Sprintf("%.1f%%", alert.WinRate*100)
	}

	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Wallet",
			Value:  walletDisplay,
			Inline: true,
		},
		{
			Name:   "Total Trades",
			Value:  fmt.Sprintf("%d", alert.TotalTrades),
			Inline: true,
		},
		{
			Name:   "Volume",
			Value:  fmt.Sprintf("$%.2f", alert.TotalVolume),
			Inline: true,
		},
		{
			Name:   "Win Rate (resolved)",
			Value:  winRateStr,
			Inline: true,
		},
	}

	if alert.MarketQuestion != "" {
		marketDisplay := alert.MarketQuestion
		if alert.MarketURL != "" {
			marketDisplay = fmt.Sprintf("[%s](%s)", alert.MarketQuestion, alert.MarketURL)
		}
		fields = append(fields,
			&discordgo.MessageEmbedField{
				Name:   "Market",
				Value:  marketDisplay,
				Inline: false,
			},
			&discordgo.MessageEmbedField{
				Name:   "Position",
				Value:  fmt.Sprintf("%s, $%.2f @ $%.3f", alert.Outcome, alert.UsdValue, alert.Price),
				Inline: true,
			},
		)
	}

	// Format timestamp for footer (PST)
	pst, _ := time.LoadLocation("America/Los_Angeles")
	ts := alert.EarnedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	footerText := fmt.Sprintf("insiderscan * %s", ts.In(pst).Format("1/2/2006, 3:04:05PM (MST)"))

	return &discordgo.MessageEmbed{
		Title:       notifier.Title(alert.BadgeType),
		URL:         alert.WalletURL, // Makes title clickable
		Description: alert.Reason,
		Color:       color,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// Close closes the Discord session.
func (dc *DiscordClient) Close() error {
	if dc.session != nil {
		return dc.session.Close()
	}
	return nil
}
