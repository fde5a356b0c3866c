package notifier

import (
	"time"
)

// BadgeAlert contains all the data needed for a badge notification.
type BadgeAlert struct {
	// Wallet info
	WalletAddress string
	WalletURL     string

	// Badge info
	BadgeType string
	Reason    string
	Metadata  map[string]float64

	// Trade info (zero for wallet-level badges)
	MarketQuestion string
	MarketURL      string
	Outcome        string
	UsdValue       float64
	Price          float64

	// Wallet stats at evaluation time
	TotalTrades int
	TotalVolume float64
	WinRate     float64
	HasWinRate  bool

	EarnedAt time.Time
}

// Notifier is the interface for sending badge alerts to various channels.
type Notifier interface {
	// SendBadgeAlert sends a badge alert notification.
	SendBadgeAlert(alert BadgeAlert)

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts alerts to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// SendBadgeAlert sends the alert to all registered notifiers.
func (m *MultiNotifier) SendBadgeAlert(alert BadgeAlert) {
	for _, n := range m.notifiers {
		n.SendBadgeAlert(alert)
	}
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}

// Title maps a badge type to a human-readable alert headline.
func Title(badgeType string) string {
	switch badgeType {
	case "fresh_wallet":
		return "🆕 Fresh Wallet"
	case "single_market":
		return "🎯 Single-Market Wallet"
	case "high_win_rate":
		return "🏆 High Win Rate"
	case "big_bet":
		return "🐋 Big Bet"
	case "long_shot":
		return "💰 Long Shot Winner"
	case "pre_move":
		return "📈 Positioned Before the Move"
	case "late_winner":
		return "⏱️ Late Winner"
	case "first_mover":
		return "🥇 First Mover"
	default:
		return "🚨 Badge Awarded"
	}
}
