package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

/* Keyed signatures over webhook delivery bodies.
 *
 * The dispatcher signs the literal bytes placed on the wire: the event
 * envelope is serialized exactly once per delivery sequence and those
 * same bytes are both the signature input and the request body.
 * Receivers must recompute over the raw body as received - any
 * re-encoding of the JSON between signing and comparing will produce a
 * different digest.
 */

// Header carries the signature on delivery requests. It is present
// only when the endpoint has a secret configured.
const Header = "X-Webhook-Signature"

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
// Deterministic: identical payload bytes and secret always produce an
// identical signature.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over payload and compares it to the
// received value in constant time.
func Verify(payload []byte, secret, received string) bool {
	receivedMAC, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// hmac.Equal is constant time, preventing timing attacks
	return hmac.Equal(receivedMAC, mac.Sum(nil))
}
