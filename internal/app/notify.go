package app

import (
	"fmt"
	"time"

	"insiderscan/clients/notifier"
	"insiderscan/internal/store"
)

// AlertSink receives badge alerts. Sends are fire-and-forget; the pipeline
// never blocks on delivery.
type AlertSink interface {
	SendBadgeAlert(alert notifier.BadgeAlert)
}

func badgeAlert(wallet *store.Wallet, c BadgeCandidate, now time.Time) notifier.BadgeAlert {
	a := notifier.BadgeAlert{
		WalletAddress: wallet.Address,
		WalletURL:     fmt.Sprintf("https://polymarket.com/profile/%s", wallet.Address),
		BadgeType:     c.Type,
		Reason:        c.Reason,
		Metadata:      c.Metadata,
		TotalTrades:   wallet.TotalTrades,
		TotalVolume:   wallet.TotalVolume,
		EarnedAt:      now,
	}
	if wallet.WinRate.Valid {
		a.WinRate = wallet.WinRate.Float64
		a.HasWinRate = true
	}
	return a
}
