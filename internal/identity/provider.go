package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wellness-storefront/order-ledger/internal/domain"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Provider resolves bearer tokens to identities.
type Provider interface {
	Resolve(ctx context.Context, token string) (*Identity, error)
}

// JWTProvider issues and verifies HS256 tokens carrying userId, role and
// email claims.
type JWTProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTProvider(secret, issuer string, ttl time.Duration) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (p *JWTProvider) Resolve(ctx context.Context, raw string) (*Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.AuthError("missing token")
	}
	if len(p.secret) == 0 {
		return nil, domain.AuthError("token verification is not configured")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, domain.AuthError("unauthorized")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.AuthError("unauthorized")
	}

	userIDValue, _ := claims["userId"].(string)
	userID, err := uuid.Parse(strings.TrimSpace(userIDValue))
	if err != nil {
		return nil, domain.AuthError("unauthorized")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleCustomer
	}
	email, _ := claims["email"].(string)

	return &Identity{UserID: userID, Email: email, Role: role}, nil
}

func (p *JWTProvider) IssueToken(userID uuid.UUID, email, role string) (string, error) {
	if len(p.secret) == 0 {
		return "", fmt.Errorf("jwt secret is not configured")
	}
	now := p.now()
	claims := jwt.MapClaims{
		"userId": userID.String(),
		"email":  email,
		"role":   role,
		"iss":    p.issuer,
		"iat":    now.Unix(),
		"exp":    now.Add(p.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
