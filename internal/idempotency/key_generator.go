package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))[:32]
}

// CallbackKey identifies one button press.
func CallbackKey(callbackID string) string {
	return GenerateKey("cb", callbackID)
}

// MessageKey identifies one incoming message.
func MessageKey(chatID int64, messageID int) string {
	return GenerateKey("msg", chatID, messageID)
}

// PaymentKey identifies one successful payment notification from Telegram.
func PaymentKey(chargeID string) string {
	return GenerateKey("pay", chargeID)
}
