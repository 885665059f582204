package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/pkg/errors"

	syncerrors "github.com/lumiohq/syncstack/internal/errors"
)

// VerifyTwilioRequest checks the X-Twilio-Signature header for a callback
// delivered to url with the given form parameters: HMAC-SHA1 over the url
// concatenated with every parameter name and value in sorted order, base64
// encoded.
func (s *VerifierService) VerifyTwilioRequest(url string, params map[string]string, signatureHeader string) VerificationResult {
	if s.config.TwilioAuthToken == "" {
		return invalid(syncerrors.ErrSecretNotConfigured)
	}

	expected := SignTwilioRequest(s.config.TwilioAuthToken, url, params)
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return invalid(errors.New("signature mismatch"))
	}
	return valid()
}

// SignTwilioRequest produces the signature VerifyTwilioRequest expects.
func SignTwilioRequest(authToken, url string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var payload strings.Builder
	payload.WriteString(url)
	for _, name := range names {
		payload.WriteString(name)
		payload.WriteString(params[name])
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
