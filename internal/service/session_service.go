package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VishalGohania/excelidraw/internal/models"
	"github.com/VishalGohania/excelidraw/internal/repo"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const maxAccountNameLen = 64

// SessionService resolves the identity token a client presents into an account.
// With a secret configured, tokens may be HS256 JWTs whose subject is the
// account id; otherwise the token is the account id itself.
type SessionService struct {
	accounts repo.AccountRepo
	secret   []byte
}

// NewSessionService returns a SessionService. An empty jwtSecret disables
// JWT tokens; tokens are then raw account ids.
func NewSessionService(accounts repo.AccountRepo, jwtSecret string) *SessionService {
	s := &SessionService{accounts: accounts}
	if jwtSecret != "" {
		s.secret = []byte(jwtSecret)
	}
	return s
}

// Resolve returns ErrMissingSession for an empty token and ErrInvalidSession
// when the token does not name a known account.
func (s *SessionService) Resolve(ctx context.Context, token string) (models.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Account{}, ErrMissingSession
	}

	accountID := token
	if s.secret != nil && strings.Count(token, ".") == 2 {
		id, err := s.parseToken(token)
		if err != nil {
			return models.Account{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
		}
		accountID = id
	}

	account, ok, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return models.Account{}, err
	}
	if !ok {
		return models.Account{}, ErrInvalidSession
	}
	return account, nil
}

func (s *SessionService) parseToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	// tokens minted by the older web backend carry the user id as "id"
	if id, ok := claims["id"].(string); ok && id != "" {
		return id, nil
	}
	return "", errors.New("token has no subject")
}

// IssueToken signs a session token for accountID. Without a secret the
// account id is returned unchanged, since that is what Resolve accepts.
func (s *SessionService) IssueToken(accountID string, ttl time.Duration) (string, error) {
	if s.secret == nil {
		return accountID, nil
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  accountID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// CreateAccount registers a new account with a random id.
func (s *SessionService) CreateAccount(ctx context.Context, name string) (models.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxAccountNameLen {
		return models.Account{}, ErrInvalidAccountName
	}
	account := models.Account{ID: uuid.NewString(), Name: name}
	if err := s.accounts.CreateAccount(ctx, &account); err != nil {
		return models.Account{}, err
	}
	return account, nil
}
