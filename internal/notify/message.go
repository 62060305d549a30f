package notify

import (
	"crypto-alert-notifier/internal/types"
	"crypto-alert-notifier/lib/helpers"
	"crypto-alert-notifier/lib/translation"
)

const priceDecimals = 4

// RenderMessage builds the human readable notification for a triggered alert.
func RenderMessage(a types.Alert, currentPrice float64) string {
	return translation.Translate(
		"🚀 PRICE ALERT TRIGGERED 🚀\n"+
			"👤 User: %s\n"+
			"💰 Crypto: %s\n"+
			"📈 Current price: $%s\n"+
			"🎯 Threshold: %s $%s\n",
		a.Username,
		a.Symbol,
		helpers.FormatPrice(currentPrice, priceDecimals),
		a.Direction(),
		helpers.FormatPrice(a.TargetPrice, priceDecimals),
	)
}
