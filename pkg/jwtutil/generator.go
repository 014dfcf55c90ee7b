package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Claims carried by an access token. Verification is signature + expiry
// only; there is no server-side lookup for access tokens.
type Claims struct {
	UserID int64  `json:"uid"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Generator struct {
	secret []byte
	issuer string
	Ttl    time.Duration
}

func NewGenerator(secret []byte, issuer string, ttl time.Duration) (*Generator, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtutil: empty signing secret")
	}
	return &Generator{secret: secret, issuer: issuer, Ttl: ttl}, nil
}

// Generate signs a short-lived HS256 access token embedding the user's
// identity. Returns the compact token and its jti.
func (g *Generator) Generate(userID int64, phone, role string) (string, string, error) {
	now := time.Now()
	jti := ulid.Make().String()

	claims := &Claims{
		UserID: userID,
		Phone:  phone,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   phone,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.Ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(g.secret)
	return signed, jti, err
}

// Parse validates signature and time claims and returns the embedded
// identity claims.
func (g *Generator) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("jwtutil: unexpected signing method")
		}
		return g.secret, nil
	}, jwt.WithIssuer(g.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("jwtutil: invalid token")
	}
	return claims, nil
}
