package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aneeshlingala/grade-melon-nsd/internal/models"
	appErrors "github.com/aneeshlingala/grade-melon-nsd/pkg/errors"
)

// TokenConfig configures bearer token verification.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// TokenService verifies student bearer tokens issued by the hosting application.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs a token for a student. Used by tests and local tooling.
func (s *TokenService) Issue(studentID, name string) (string, time.Time, error) {
	if studentID == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.TTL)
	claims := &models.StudentClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   studentID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and verifies a bearer token.
func (s *TokenService) ValidateToken(tokenString string) (*models.StudentClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.StudentClaims{}, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.StudentClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
