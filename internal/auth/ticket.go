package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TicketIssuer mints the opaque connect_by_ticket strings a transport
// exchanges out-of-band (spec §6). A ticket is the same compact HS256
// structure HMACTokenVerifier already knows how to verify, with Subject
// carrying the issuing peer's PeerId and Audience carrying the game_id the
// ticket grants entry to.
type TicketIssuer struct {
	secret []byte
	now    func() time.Time
	ttl    time.Duration
}

// NewTicketIssuer constructs an issuer sharing the secret configured on the
// paired HMACTokenVerifier used by the transport's accept path.
func NewTicketIssuer(secret string, ttl time.Duration) (*TicketIssuer, error) {
	if secret == "" {
		return nil, errors.New("ticket secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TicketIssuer{secret: []byte(secret), now: time.Now, ttl: ttl}, nil
}

// Issue mints a ticket granting peerID entry to gameID, valid for the
// issuer's configured TTL from now.
func (i *TicketIssuer) Issue(peerID, gameID string) (string, error) {
	if i == nil || len(i.secret) == 0 {
		return "", errors.New("issuer not initialised")
	}
	if peerID == "" {
		return "", errors.New("peer id must not be empty")
	}
	now := i.now()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(struct {
		Subject  string `json:"sub"`
		Expires  int64  `json:"exp"`
		Issued   int64  `json:"iat"`
		Audience string `json:"aud"`
	}{
		Subject:  peerID,
		Expires:  now.Add(i.ttl).Unix(),
		Issued:   now.Unix(),
		Audience: gameID,
	})
	if err != nil {
		return "", fmt.Errorf("encode ticket payload: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	signingInput := header + "." + encodedPayload
	mac := hmac.New(sha256.New, i.secret)
	if _, err := mac.Write([]byte(signingInput)); err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature, nil
}

// WithClock overrides the issuer clock, enabling deterministic unit tests.
func (i *TicketIssuer) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	i.now = clock
}

// TicketVerifier redeclares HMACTokenVerifier under the name the transport
// layer's connect_by_ticket operation actually reasons about: a peer id and
// the game_id it was admitted to.
type TicketVerifier = HMACTokenVerifier

// NewTicketVerifier is an alias for NewHMACTokenVerifier kept under the
// transport-facing name so callers wiring connect_by_ticket don't need to
// know about the underlying JWT-shaped implementation.
func NewTicketVerifier(secret string, leeway time.Duration) (*TicketVerifier, error) {
	return NewHMACTokenVerifier(secret, leeway)
}

// VerifyTicket validates a ticket string and returns the peer id and game id
// it grants access to.
func VerifyTicket(v *TicketVerifier, ticket string) (peerID, gameID string, err error) {
	claims, err := v.Verify(ticket)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Audience, nil
}
