package pipeline

import (
	"crypto/subtle"

	"example.com/runcoach/internal/domain"
)

// ModeSubscribe is the only hub.mode accepted during subscription.
const ModeSubscribe = "subscribe"

// VerifySubscription answers the provider's subscription challenge. It
// returns the challenge to echo, or domain.ErrForbidden. An empty secret
// never verifies.
func VerifySubscription(mode, challenge, token, secret string) (string, error) {
	if mode != ModeSubscribe || challenge == "" || secret == "" {
		return "", domain.ErrForbidden
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return "", domain.ErrForbidden
	}
	return challenge, nil
}
