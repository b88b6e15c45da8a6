package webhook

import "crypto/subtle"

// Verifier answers the subscription handshake.
type Verifier struct {
	token string
}

func NewVerifier(token string) *Verifier {
	return &Verifier{token: token}
}

// Verify returns the challenge to echo back when mode is "subscribe" and
// token matches the configured one. An unconfigured token never verifies.
func (v *Verifier) Verify(mode, challenge, token string) (string, bool) {
	if mode != "subscribe" || v.token == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.token)) != 1 {
		return "", false
	}
	return challenge, true
}
