package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	syncerrors "github.com/lumiohq/syncstack/internal/errors"
)

const (
	slackSignatureVersion = "v0"

	// slackReplayWindow is how far a request timestamp may drift from our
	// clock before the request is treated as a replay.
	slackReplayWindow = 300 * time.Second
)

// VerifySlackRequest checks the X-Slack-Signature header against the
// signing secret: HMAC-SHA256 over "v0:{timestamp}:{body}", hex encoded.
// Requests older than the replay window are rejected even with a correct
// signature.
func (s *VerifierService) VerifySlackRequest(timestampHeader, signatureHeader string, body []byte) VerificationResult {
	if s.config.SlackSigningSecret == "" {
		return invalid(syncerrors.ErrSecretNotConfigured)
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return invalid(errors.Wrap(err, "malformed request timestamp"))
	}

	drift := s.now().Sub(time.Unix(timestamp, 0))
	if drift > slackReplayWindow || drift < -slackReplayWindow {
		return invalid(errors.Errorf("request timestamp outside replay window: %s", drift))
	}

	expected := SignSlackRequest(s.config.SlackSigningSecret, timestampHeader, body)
	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return invalid(errors.New("signature mismatch"))
	}
	return valid()
}

// SignSlackRequest produces the signature VerifySlackRequest expects, in
// Slack's "v0=<hex>" header form.
func SignSlackRequest(signingSecret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "%s:%s:", slackSignatureVersion, timestamp)
	mac.Write(body)
	return slackSignatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
