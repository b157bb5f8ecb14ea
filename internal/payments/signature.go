package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// Signer computes and checks the HMAC-SHA256 signatures that bind the
// provider handoff and its asynchronous callback to the shared secret.
// Signatures are lowercase hex.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer over the shared merchant secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Handoff signs the redirect payload handed to the provider. The amount is
// fixed to two decimals so both sides serialize it identically.
func (s *Signer) Handoff(buyOrder, sessionID string, amount decimal.Decimal, currency string) string {
	return s.sign(buyOrder, sessionID, amount.StringFixed(2), currency)
}

// Notify signs the callback payload the provider posts back.
func (s *Signer) Notify(ventaID, token, status string) string {
	return s.sign(ventaID, token, status)
}

// VerifyNotify checks a callback signature in constant time. Case of the
// hex digits does not matter.
func (s *Signer) VerifyNotify(ventaID, token, status, signature string) bool {
	expected := s.Notify(ventaID, token, status)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (s *Signer) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
