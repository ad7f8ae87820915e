package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "resilience-plane"

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoOperator         = errors.New("no operator configured")
)

type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Operator is the single admin account allowed to call protected
// endpoints. PasswordHash is a bcrypt hash.
type Operator struct {
	Username     string
	PasswordHash string
}

type Service struct {
	secret   []byte
	ttl      time.Duration
	operator Operator
	now      func() time.Time
}

func NewService(secret string, ttl time.Duration, operator Operator) *Service {
	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		operator: operator,
		now:      time.Now,
	}
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Login checks the credentials against the configured operator and issues a
// token on success.
func (s *Service) Login(username, password string) (string, error) {
	if s.operator.Username == "" || s.operator.PasswordHash == "" {
		return "", ErrNoOperator
	}
	// still run bcrypt on a wrong username so timing does not leak it
	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.operator.Username)) == 1
	passOK := CheckPassword(password, s.operator.PasswordHash)
	if !nameOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(username)
}

func (s *Service) GenerateToken(username string) (string, error) {
	now := s.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
