package webhook

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/lumiohq/syncstack/internal/logger"
)

type Config struct {
	SlackSigningSecret string `env:"SLACK_SIGNING_SECRET"`
	GoogleAudience     string `env:"GOOGLE_WEBHOOK_AUDIENCE"`
	GoogleJWKSURL      string `env:"GOOGLE_JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TwilioAuthToken    string `env:"TWILIO_AUTH_TOKEN"`

	// PublicBaseURL is the externally visible base URL callbacks are
	// delivered to; Twilio signs the full public URL, not what the proxy
	// rewrites it to.
	PublicBaseURL string `env:"WEBHOOK_PUBLIC_BASE_URL"`
}

// VerificationResult is the shared outcome of every scheme's verifier.
// Error explains a rejection; handlers decide per provider whether it maps
// to an acknowledging or an erroring HTTP status.
type VerificationResult struct {
	Valid bool
	Error error
}

func valid() VerificationResult {
	return VerificationResult{Valid: true}
}

func invalid(err error) VerificationResult {
	return VerificationResult{Valid: false, Error: err}
}

// VerifierService authenticates inbound webhook calls. Each provider has
// its own scheme; the shared rules are constant-time comparison and failing
// closed when the scheme's secret is not configured.
type VerifierService struct {
	config Config
	log    logger.Logger

	now        func() time.Time
	googleKeys func(ctx context.Context) (jwk.Set, error)
}

func NewVerifierService(config Config, log logger.Logger) *VerifierService {
	s := &VerifierService{
		config: config,
		log:    log,
		now:    time.Now,
	}

	if config.GoogleJWKSURL != "" {
		cache := jwk.NewCache(context.Background())
		if err := cache.Register(config.GoogleJWKSURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			log.Errorf("Failed to register JWKS url %s: %v", config.GoogleJWKSURL, err)
		} else {
			s.googleKeys = func(ctx context.Context) (jwk.Set, error) {
				return cache.Get(ctx, config.GoogleJWKSURL)
			}
		}
	}

	return s
}
