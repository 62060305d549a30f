package helpers

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"strings"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "<", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPrice renders a price with comma thousand separators and the given
// number of decimals, e.g. FormatPrice(50001, 4) == "50,001.0000".
func FormatPrice(price float64, decimals int) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.*f", decimals, price)
}
