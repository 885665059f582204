package webhook

import (
	"context"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	syncerrors "github.com/lumiohq/syncstack/internal/errors"
)

// Google signs push-notification tokens with either issuer form.
var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// VerifyGoogleRequest validates the Authorization header of a Google push
// notification: a JWT whose signature is checked against Google's published
// JWKS and whose audience, issuer and expiry must all match.
func (s *VerifierService) VerifyGoogleRequest(ctx context.Context, authorizationHeader string) VerificationResult {
	if s.config.GoogleAudience == "" || s.googleKeys == nil {
		return invalid(syncerrors.ErrSecretNotConfigured)
	}

	raw := strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer"))
	if raw == "" {
		return invalid(errors.New("missing bearer token"))
	}

	keySet, err := s.googleKeys(ctx)
	if err != nil {
		// keys unavailable means we cannot verify; never skip verification
		return invalid(errors.Wrap(err, "failed to load verification keys"))
	}

	token, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithAudience(s.config.GoogleAudience),
	)
	if err != nil {
		return invalid(errors.Wrap(err, "token rejected"))
	}

	issuer := token.Issuer()
	for _, allowed := range googleIssuers {
		if issuer == allowed {
			return valid()
		}
	}
	return invalid(errors.Errorf("unexpected issuer %q", issuer))
}
