package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"norelock.dev/soundscope/internal/config"
	"norelock.dev/soundscope/internal/utils"
)

// JWT errors
var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrTokenGeneration = errors.New("failed to generate token")
	ErrMissingSecret   = errors.New("jwt secret is not configured")
)

// JWTClaims extends the registered JWT claims with the host claims.
type JWTClaims struct {
	Shell string   `json:"shell,omitempty"`
	Roles []string `json:"roles"`

	jwt.RegisteredClaims
}

// JWTProvider implements Provider with HS256 tokens.
type JWTProvider struct {
	config    config.AuthConfig
	validator *jwt.Validator
	logger    *utils.Logger
}

var _ Provider = (*JWTProvider)(nil)

// NewJWTProvider creates a new JWT provider.
func NewJWTProvider(cfg config.AuthConfig, logger *utils.Logger) (*JWTProvider, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(time.Second), jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWTProvider{
		config:    cfg,
		validator: jwt.NewValidator(opts...),
		logger:    logger.Named("jwt_provider"),
	}, nil
}

// GenerateToken creates a token for a host-shell session.
func (p *JWTProvider) GenerateToken(subject, shell string, roles []string) (string, error) {
	now := time.Now()

	claims := JWTClaims{
		Shell: shell,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.config.TokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        utils.NewID("tok"),
		},
	}
	if p.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{p.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(p.config.JWTSecret))
	if err != nil {
		p.logger.Error("Failed to sign JWT token", err, "subject", subject)
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns the claims. Expired tokens
// return their claims together with ErrExpiredToken.
func (p *JWTProvider) ValidateToken(tokenString string) (*Claims, error) {
	parsed := JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return toClaims(parsed), ErrExpiredToken
		}
		p.logger.Debug("Failed to parse JWT token", "error", err)
		return nil, ErrInvalidToken
	}

	if token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if err := p.validator.Validate(&parsed); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return toClaims(parsed), ErrExpiredToken
		}
		p.logger.Debug("Failed to validate JWT token", "error", err)
		return nil, ErrInvalidToken
	}

	if parsed.Subject == "" {
		return nil, ErrInvalidToken
	}

	return toClaims(parsed), nil
}

// RefreshToken issues a new token with the claims of a valid one.
func (p *JWTProvider) RefreshToken(tokenString string) (string, error) {
	claims, err := p.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return p.GenerateToken(claims.Subject, claims.Shell, claims.Roles)
}

func toClaims(c JWTClaims) *Claims {
	return &Claims{
		BaseClaims: BaseClaims{
			Subject: c.Subject,
			Shell:   c.Shell,
			Roles:   c.Roles,
		},
		StandardClaims: c.RegisteredClaims,
	}
}
