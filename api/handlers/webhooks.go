package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumiohq/syncstack/dto"
	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/models"
	"github.com/lumiohq/syncstack/internal/utils"
	"github.com/lumiohq/syncstack/services/webhook"
)

// WebhookHandler terminates inbound provider notifications: verify the
// request with the provider's scheme, resolve which user it belongs to, and
// publish a sync request.
//
// Forged or unverifiable requests are acknowledged with 200 and dropped so
// providers do not enter retry storms; Telegram is the exception, its
// secret-token contract expects a 401.
type WebhookHandler struct {
	verifier     *webhook.VerifierService
	config       webhook.Config
	publisher    interfaces.EventPublisher
	integrations interfaces.IntegrationRepository
	log          logger.Logger
}

func NewWebhookHandler(verifier *webhook.VerifierService, config webhook.Config, publisher interfaces.EventPublisher, integrations interfaces.IntegrationRepository, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:     verifier,
		config:       config,
		publisher:    publisher,
		integrations: integrations,
		log:          log,
	}
}

func (h *WebhookHandler) Slack() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			h.ackAndDrop(c, enum.ProviderSlack, err)
			return
		}

		result := h.verifier.VerifySlackRequest(
			c.GetHeader("X-Slack-Request-Timestamp"),
			c.GetHeader("X-Slack-Signature"),
			body,
		)
		if !result.Valid {
			h.ackAndDrop(c, enum.ProviderSlack, result.Error)
			return
		}

		var payload struct {
			Type      string `json:"type"`
			Challenge string `json:"challenge"`
			TeamID    string `json:"team_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			h.ackAndDrop(c, enum.ProviderSlack, err)
			return
		}

		// Slack's endpoint handshake echoes the challenge back
		if payload.Type == "url_verification" {
			c.JSON(http.StatusOK, gin.H{"challenge": payload.Challenge})
			return
		}

		userID := h.resolveUser(c.Request.Context(), enum.ProviderSlack, func(meta models.ProviderMetadata) bool {
			return meta.Slack != nil && meta.Slack.TeamID == payload.TeamID
		})
		h.requestSync(c.Request.Context(), enum.ProviderSlack, userID, "slack_webhook")

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *WebhookHandler) Google() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.verifier.VerifyGoogleRequest(c.Request.Context(), c.GetHeader("Authorization"))
		if !result.Valid {
			h.ackAndDrop(c, enum.ProviderGmail, result.Error)
			return
		}

		// Pub/Sub push envelope; data is base64 JSON
		var push struct {
			Message struct {
				Data string `json:"data"`
			} `json:"message"`
		}
		if err := c.ShouldBindJSON(&push); err != nil {
			h.ackAndDrop(c, enum.ProviderGmail, err)
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(push.Message.Data)
		if err != nil {
			h.ackAndDrop(c, enum.ProviderGmail, err)
			return
		}

		var notification struct {
			EmailAddress string `json:"emailAddress"`
		}
		if err := json.Unmarshal(decoded, &notification); err != nil {
			h.ackAndDrop(c, enum.ProviderGmail, err)
			return
		}

		userID := h.resolveUser(c.Request.Context(), enum.ProviderGmail, func(meta models.ProviderMetadata) bool {
			return meta.Gmail != nil && strings.EqualFold(meta.Gmail.EmailAddress, notification.EmailAddress)
		})
		h.requestSync(c.Request.Context(), enum.ProviderGmail, userID, "google_push")

		c.Status(http.StatusOK)
	}
}

func (h *WebhookHandler) Telegram() gin.HandlerFunc {
	return func(c *gin.Context) {
		result := h.verifier.VerifyTelegramRequest(c.GetHeader("X-Telegram-Bot-Api-Secret-Token"))
		if !result.Valid {
			// Telegram expects an error status so it stops delivering to a
			// misconfigured endpoint
			h.log.Warnf("Rejecting telegram webhook: %v", result.Error)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid secret token"})
			return
		}

		var update struct {
			Message struct {
				Chat struct {
					ID int64 `json:"id"`
				} `json:"chat"`
			} `json:"message"`
		}
		if err := c.ShouldBindJSON(&update); err != nil {
			h.ackAndDrop(c, enum.ProviderTelegram, err)
			return
		}

		userID := h.resolveUser(c.Request.Context(), enum.ProviderTelegram, func(meta models.ProviderMetadata) bool {
			return meta.Telegram != nil && meta.Telegram.ChatID == update.Message.Chat.ID
		})
		h.requestSync(c.Request.Context(), enum.ProviderTelegram, userID, "telegram_webhook")

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func (h *WebhookHandler) Twilio() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			h.ackAndDrop(c, enum.ProviderTwilio, err)
			return
		}

		params := make(map[string]string, len(c.Request.PostForm))
		for name, values := range c.Request.PostForm {
			if len(values) > 0 {
				params[name] = values[0]
			}
		}

		result := h.verifier.VerifyTwilioRequest(h.callbackURL(c), params, c.GetHeader("X-Twilio-Signature"))
		if !result.Valid {
			h.ackAndDrop(c, enum.ProviderTwilio, result.Error)
			return
		}

		userID := h.resolveUser(c.Request.Context(), enum.ProviderTwilio, func(meta models.ProviderMetadata) bool {
			return meta.Twilio != nil && meta.Twilio.PhoneNumber == params["To"]
		})
		h.requestSync(c.Request.Context(), enum.ProviderTwilio, userID, "twilio_callback")

		// Twilio parses the response as TwiML; an empty response is valid
		c.Data(http.StatusOK, "text/xml", []byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
	}
}

// callbackURL reconstructs the public URL the provider signed. Behind a
// proxy the request host is not the signed one, so a configured base wins.
func (h *WebhookHandler) callbackURL(c *gin.Context) string {
	if h.config.PublicBaseURL != "" {
		return strings.TrimSuffix(h.config.PublicBaseURL, "/") + c.Request.RequestURI
	}

	scheme := "https"
	if c.Request.TLS == nil {
		if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
			scheme = forwarded
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host + c.Request.RequestURI
}

func (h *WebhookHandler) ackAndDrop(c *gin.Context, provider enum.Provider, cause error) {
	h.log.Warnf("Dropping %s webhook: %v", provider, cause)
	c.JSON(http.StatusOK, gin.H{"ok": false})
}

func (h *WebhookHandler) resolveUser(ctx context.Context, provider enum.Provider, match func(meta models.ProviderMetadata) bool) string {
	integrations, err := h.integrations.GetEnabledIntegrations(ctx)
	if err != nil {
		h.log.Errorf("Failed to list integrations for %s webhook: %v", provider, err)
		return ""
	}

	for i := range integrations {
		integration := integrations[i]
		if integration.Provider != provider {
			continue
		}
		meta, err := integration.DecodeMetadata()
		if err != nil {
			h.log.Warnf("Skipping integration %s with bad metadata: %v", integration.ID, err)
			continue
		}
		if match(meta) {
			return integration.UserID
		}
	}
	return ""
}

func (h *WebhookHandler) requestSync(ctx context.Context, provider enum.Provider, userID, source string) {
	if userID == "" {
		h.log.Warnf("No integration matched %s webhook from %s", provider, source)
		return
	}
	if h.publisher == nil {
		h.log.Warnf("No event bus configured, dropping sync request for %s:%s", provider, userID)
		return
	}

	event := dto.SyncRequested{
		Provider:  provider,
		UserID:    userID,
		SyncType:  enum.SyncTypeIncremental,
		Source:    source,
		Timestamp: utils.Now(),
	}
	if err := h.publisher.PublishSyncRequested(ctx, event); err != nil {
		h.log.Errorf("Failed to publish sync request for %s:%s: %v", provider, userID, err)
	}
}
