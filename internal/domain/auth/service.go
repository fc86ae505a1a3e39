package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// Service exposes authentication workflows.
type Service interface {
	IssueToken(ctx context.Context, req TokenRequest) (TokenResponse, error)
	ValidateToken(ctx context.Context, token string) (Claims, error)
}

type service struct {
	cfg     Config
	clients map[string]string
	now     func() time.Time
	logger  *slog.Logger
}

const tokenTypeAccess = "access"

// NewService constructs a Service instance.
func NewService(cfg Config, logger *slog.Logger) Service {
	clients := make(map[string]string, len(cfg.Clients))
	for _, c := range cfg.Clients {
		id := strings.TrimSpace(c.ID)
		if id == "" {
			continue
		}
		clients[id] = c.SecretHash
	}
	return &service{
		cfg:     cfg,
		clients: clients,
		now:     time.Now,
		logger:  logger.With("component", "auth.service"),
	}
}

func (s *service) IssueToken(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" || req.ClientSecret == "" {
		return TokenResponse{}, apperrors.Wrap("invalid_input", "clientId and clientSecret are required", nil)
	}
	hash, ok := s.clients[clientID]
	if !ok {
		s.logger.Warn("token requested for unknown client", "clientId", clientID)
		return TokenResponse{}, apperrors.Wrap("invalid_credentials", "invalid client credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.ClientSecret)); err != nil {
		s.logger.Warn("client secret mismatch", "clientId", clientID)
		return TokenResponse{}, apperrors.Wrap("invalid_credentials", "invalid client credentials", nil)
	}
	return s.generateToken(clientID)
}

func (s *service) ValidateToken(ctx context.Context, token string) (Claims, error) {
	if strings.TrimSpace(token) == "" {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing", nil)
	}
	claims, err := s.parseToken(token)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Claims{}, apperrors.Wrap("invalid_token", "token type mismatch", nil)
	}
	if _, ok := s.clients[claims.ClientID]; !ok {
		return Claims{}, apperrors.Wrap("invalid_token", "client no longer registered", nil)
	}
	return claims, nil
}

func (s *service) generateToken(clientID string) (TokenResponse, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.TokenTTL)
	claims := tokenClaims{
		ClientID:  clientID,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ID:        newTokenID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return TokenResponse{}, apperrors.Wrap("auth_error", "failed to sign token", err)
	}
	return TokenResponse{Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (s *service) parseToken(token string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token validation failed", err)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return Claims{}, apperrors.Wrap("invalid_token", "token invalid", nil)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, apperrors.Wrap("invalid_token", "token missing expiry", nil)
	}
	return Claims{
		ClientID:  claims.ClientID,
		TokenType: claims.TokenType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	ClientID  string `json:"clientId"`
	TokenType string `json:"type"`
}

func newTokenID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return hex.EncodeToString(buf)
}
