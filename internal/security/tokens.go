package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	userdomain "exam-practice/backend/internal/user/domain"
)

var (
	// ErrInvalidToken is returned when a token is malformed, forged, or of the wrong kind.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is well-formed and correctly signed but past exp.
	ErrTokenExpired = errors.New("token expired")
	// ErrWeakSecrets is returned by NewTokenCodec when secrets are empty or shared.
	ErrWeakSecrets = errors.New("access and refresh secrets must be set and distinct")
)

const refreshTokenType = "refresh"

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID    string          `json:"user_id"`
	Email     string          `json:"email"`
	Role      userdomain.Role `json:"role"`
	SessionID string          `json:"session_id"`
}

// RefreshClaims holds JWT claims for the refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Type      string `json:"type"`
}

// TokenCodec issues and verifies HS256 access and refresh tokens. The two
// kinds are signed with independent secrets so a leaked access secret cannot
// mint refresh tokens.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	nowF          func() time.Time
}

// NewTokenCodec returns a TokenCodec. accessSecret and refreshSecret must be non-empty and different.
func NewTokenCodec(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if accessSecret == "" || refreshSecret == "" || accessSecret == refreshSecret {
		return nil, ErrWeakSecrets
	}
	return &TokenCodec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		nowF:          time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads time from nowF for both issuing and verifying.
func (c *TokenCodec) WithClock(nowF func() time.Time) *TokenCodec {
	cp := *c
	cp.nowF = nowF
	return &cp
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

// IssueAccess signs an access token for user bound to sessionID.
// Returns the token and its expiry (issue time + access TTL).
func (c *TokenCodec) IssueAccess(user *userdomain.AdminUser, sessionID string) (string, time.Time, error) {
	if user == nil || sessionID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := c.nowF().UTC()
	expiresAt := now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssueRefresh signs a long-lived refresh token with the refresh secret.
// Every refresh token carries a fresh jti, so no two are equal.
func (c *TokenCodec) IssueRefresh(user *userdomain.AdminUser, sessionID string) (string, time.Time, error) {
	if user == nil || sessionID == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	now := c.nowF().UTC()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    user.ID,
		SessionID: sessionID,
		Type:      refreshTokenType,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyAccess checks signature, issuer and expiry of an access token.
// Returns ErrTokenExpired when expiry is the only failure, ErrInvalidToken otherwise.
func (c *TokenCodec) VerifyAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(tokenString, claims, c.accessSecret); err != nil {
		return nil, err
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh checks signature, issuer, expiry and type of a refresh token.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(tokenString, claims, c.refreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != refreshTokenType || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *TokenCodec) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	if tokenString == "" {
		return ErrInvalidToken
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowF),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		// Signature is verified before claims, so an expired error implies a genuine token.
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return ErrTokenExpired
		}
		return ErrInvalidToken
	}
	return nil
}
