package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrOperatorExists     = errors.New("operator already exists")
	ErrInvalidOperator    = errors.New("invalid operator")
)

const minPasswordLength = 8

type Operator struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

// Repository persists operators and their sessions. Missing rows are reported
// as ErrInvalidCredentials or ErrUnauthorized so callers never learn which part failed.
type Repository interface {
	FindOperator(ctx context.Context, username string) (Operator, string, error)
	InsertOperator(ctx context.Context, username, fullName, passwordHash string) (int64, error)
	InsertSession(ctx context.Context, s Session) error
	FindSessionOperator(ctx context.Context, tokenHash string, now time.Time) (Operator, error)
	RevokeSession(ctx context.Context, tokenHash string, at time.Time) error
}

type Session struct {
	OperatorID int64
	TokenHash  string
	ExpiresAt  time.Time
	IPAddress  string
	UserAgent  string
}

type Service struct {
	repo       Repository
	sessionTTL time.Duration
	bcryptCost int
	logger     *zap.Logger
	now        func() time.Time
}

type ServiceConfig struct {
	SessionTTL time.Duration
	BcryptCost int
	Logger     *zap.Logger
}

type CreateOperatorInput struct {
	Username string
	FullName string
	Password string
}

func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		sessionTTL: cfg.SessionTTL,
		bcryptCost: cfg.BcryptCost,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*Operator, error) {
	username = normalizeUsername(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	op, hash, err := s.repo.FindOperator(ctx, username)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query operator: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		s.logger.Info("operator login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	if !op.IsActive {
		return nil, ErrForbidden
	}
	return &op, nil
}

// CreateSession returns the raw token; only its hash is stored.
func (s *Service) CreateSession(ctx context.Context, operatorID int64, ipAddress, userAgent string) (string, time.Time, error) {
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := s.now().Add(s.sessionTTL)
	err = s.repo.InsertSession(ctx, Session{
		OperatorID: operatorID,
		TokenHash:  hashToken(token),
		ExpiresAt:  expiresAt,
		IPAddress:  strings.TrimSpace(ipAddress),
		UserAgent:  strings.TrimSpace(userAgent),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *Service) GetSessionOperator(ctx context.Context, token string) (*Operator, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	op, err := s.repo.FindSessionOperator(ctx, hashToken(token), s.now())
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session operator: %w", err)
	}
	if !op.IsActive {
		return nil, ErrUnauthorized
	}
	return &op, nil
}

func (s *Service) RevokeSession(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := s.repo.RevokeSession(ctx, hashToken(token), s.now()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Service) CreateOperator(ctx context.Context, in CreateOperatorInput) (*Operator, error) {
	username := normalizeUsername(in.Username)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidOperator)
	}
	if fullName == "" {
		fullName = username
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidOperator, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	id, err := s.repo.InsertOperator(ctx, username, fullName, string(hash))
	if err != nil {
		if errors.Is(err, ErrOperatorExists) {
			return nil, ErrOperatorExists
		}
		return nil, fmt.Errorf("insert operator: %w", err)
	}
	s.logger.Info("operator created", zap.Int64("operator_id", id), zap.String("username", username))
	return &Operator{ID: id, Username: username, FullName: fullName, IsActive: true}, nil
}

func normalizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._-")
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
