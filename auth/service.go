package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned when a token fails validation for any reason
// (bad signature, expired, malformed, wrong claim shape).
var ErrInvalidToken = errors.New("invalid or expired token")

// Service issues and validates the HS256 JWTs used for both API access and
// WebSocket handshakes.
type Service struct {
	secret []byte
	expiry time.Duration
}

// Config holds the settings needed to construct a Service
type Config struct {
	Secret            string
	ExpirationSeconds int
}

// NewService creates a token service from config
func NewService(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	expiry := time.Duration(cfg.ExpirationSeconds) * time.Second
	if expiry <= 0 {
		expiry = 8 * 24 * time.Hour
	}
	return &Service{secret: []byte(cfg.Secret), expiry: expiry}, nil
}

// GenerateToken creates a signed access token for a user. The user ID is
// carried in the standard "sub" claim.
func (s *Service) GenerateToken(userID string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(s.expiry)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"iat": time.Now().UTC().Unix(),
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken verifies an access token and returns the user ID from its
// subject claim.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// GenerateShareToken creates a short-lived token granting read access to a
// single file. The file ID is carried in an explicit "file_id" claim so it
// can be validated without parsing a stringified subject.
func (s *Service) GenerateShareToken(fileID string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"file_id": fileID,
		"iat":     time.Now().UTC().Unix(),
		"exp":     time.Now().UTC().Add(ttl).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign share token: %w", err)
	}
	return signed, nil
}

// ValidateShareToken verifies a share token and returns the file ID it grants
// access to.
func (s *Service) ValidateShareToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	fileID, ok := claims["file_id"].(string)
	if !ok || fileID == "" {
		return "", ErrInvalidToken
	}
	return fileID, nil
}

func (s *Service) keyFunc(token *jwt.Token) (interface{}, error) {
	return s.secret, nil
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
