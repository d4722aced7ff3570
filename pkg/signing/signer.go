// Package signing produces and verifies the system side of a commit's dual
// signature: a short-lived HS256 attestation token binding the signing
// service to a specific (company, commit, chain hash) triple. Human
// signatures are collected out of band and are opaque to this package.
package signing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "ordgate/signing"

// DefaultTTL bounds how long an attestation stays verifiable. Commits are
// validated and appended within one request, so the window is short.
const DefaultTTL = 15 * time.Minute

var (
	ErrEmptySecret  = errors.New("signing: secret must not be empty")
	ErrInvalidToken = errors.New("signing: invalid attestation token")
)

// AttestationClaims binds the attestation to one commit.
type AttestationClaims struct {
	jwt.RegisteredClaims
	CompanyID string `json:"company_id"`
	FdcID     string `json:"fdc_id"`
	ChainHash string `json:"chain_hash,omitempty"`
}

// Signer issues and verifies attestation tokens with a shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewSigner creates a signer with the default TTL.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: secret, ttl: DefaultTTL, clock: time.Now}, nil
}

// WithTTL overrides the attestation lifetime.
func (s *Signer) WithTTL(ttl time.Duration) *Signer {
	s.ttl = ttl
	return s
}

// WithClock overrides the clock for deterministic testing.
func (s *Signer) WithClock(clock func() time.Time) *Signer {
	s.clock = clock
	return s
}

// Attest issues a signed token for the given commit identity. chainHash may
// be empty when attestation happens before the chain link is computed.
func (s *Signer) Attest(companyID, fdcID, chainHash string) (string, error) {
	now := s.clock().UTC()
	claims := AttestationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fdcID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		CompanyID: companyID,
		FdcID:     fdcID,
		ChainHash: chainHash,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses an attestation and returns its claims.
func (s *Signer) Verify(tokenString string) (*AttestationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AttestationClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return s.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return s.clock().UTC() }),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AttestationClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
