package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "leadgen"

// Roles recognised by the API.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Claims defines the payload encoded for API callers. OrgID scopes every
// prospect query made with the token.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
}

// JWTManager handles issuing and verifying HMAC signed tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTManager constructs a manager with the given secret and token lifetime.
func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateToken creates an access token for subject within orgID.
func (m *JWTManager) GenerateToken(subject, orgID, role string) (string, error) {
	if len(m.secret) == 0 {
		return "", errors.New("jwt secret must not be empty")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject must not be empty")
	}
	if strings.TrimSpace(orgID) == "" {
		return "", errors.New("token org id must not be empty")
	}
	if role == "" {
		role = RoleViewer
	}

	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OrgID: orgID,
		Role:  role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	return signed, nil
}

// ParseToken verifies the token signature, issuer and expiry.
func (m *JWTManager) ParseToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.OrgID == "" {
		return nil, errors.New("token is missing org id")
	}

	return claims, nil
}
