package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are carried by every API token. Tenant scopes all data access.
// Admin grants control of the server-wide WhatsApp link.
type Claims struct {
	Tenant string `json:"tenant"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 API tokens.
type Issuer struct {
	secret []byte
	issuer string
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer}, nil
}

// Issue returns a signed token for tenant, valid for ttl.
func (i *Issuer) Issue(tenant, subject string, ttl time.Duration) (string, error) {
	return i.issue(tenant, subject, ttl, false)
}

// IssueAdmin is Issue for a token that may also manage the WhatsApp link.
func (i *Issuer) IssueAdmin(tenant, subject string, ttl time.Duration) (string, error) {
	return i.issue(tenant, subject, ttl, true)
}

func (i *Issuer) issue(tenant, subject string, ttl time.Duration, admin bool) (string, error) {
	if tenant == "" {
		return "", fmt.Errorf("tenant is required")
	}

	now := time.Now()
	claims := Claims{
		Tenant: tenant,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and checks signature, expiry, issuer and tenant.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Tenant == "" {
		return nil, fmt.Errorf("%w: missing tenant claim", ErrInvalidToken)
	}
	return claims, nil
}
