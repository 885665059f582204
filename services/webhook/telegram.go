package webhook

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"

	syncerrors "github.com/lumiohq/syncstack/internal/errors"
)

const telegramSecretLength = 32

// DeriveTelegramSecret deterministically derives the webhook secret token
// from the bot token. The same value is registered with setWebhook as
// secret_token and later expected back in the
// X-Telegram-Bot-Api-Secret-Token header.
func DeriveTelegramSecret(botToken string) string {
	sum := sha256.Sum256([]byte(botToken))
	return hex.EncodeToString(sum[:])[:telegramSecretLength]
}

// VerifyTelegramRequest compares the secret-token header against the value
// derived from the configured bot token.
func (s *VerifierService) VerifyTelegramRequest(secretTokenHeader string) VerificationResult {
	if s.config.TelegramBotToken == "" {
		return invalid(syncerrors.ErrSecretNotConfigured)
	}

	expected := DeriveTelegramSecret(s.config.TelegramBotToken)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(secretTokenHeader)) != 1 {
		return invalid(errors.New("secret token mismatch"))
	}
	return valid()
}
