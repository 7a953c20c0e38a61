package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/arkcms/authengine/internal/identity"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultIssuer     = "authd"
)

var (
	ErrBadCredentials  = errors.New("idp: invalid credentials")
	ErrBadRefreshToken = errors.New("idp: invalid refresh token")
	ErrBadAccessToken  = errors.New("idp: invalid access token")
)

// dummyHash keeps password comparison time uniform for unknown accounts.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("authd-dummy"), bcrypt.MinCost)

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// Service issues and verifies tokens for provisioned accounts. Access
// tokens are HS256 JWTs; refresh tokens are opaque, stored server-side and
// rotated on every use.
type Service struct {
	users  *Store
	secret []byte
	issuer string
	now    func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration

	mu      sync.Mutex
	refresh map[string]refreshRecord
}

// ServiceOption configures the service.
type ServiceOption func(*Service) error

// WithClock overrides the time source.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("idp: access ttl must be positive")
		}
		s.accessTTL = ttl
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("idp: refresh ttl must be positive")
		}
		s.refreshTTL = ttl
		return nil
	}
}

// NewService builds the token service around a user store.
func NewService(users *Store, secret string, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("idp: user store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("idp: signing secret is required")
	}
	s := &Service{
		users:      users,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		refresh:    make(map[string]refreshRecord),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TokenPair is an issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Login verifies the password and issues a token pair.
func (s *Service) Login(_ context.Context, email, password string) (TokenPair, identity.Identity, error) {
	user, ok := s.users.FindByEmail(email)
	if !ok {
		// Burn a comparison anyway so the timing does not reveal
		// whether the account exists.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return TokenPair{}, identity.Identity{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, identity.Identity{}, ErrBadCredentials
	}
	pair, err := s.issue(user.Identity.ID)
	if err != nil {
		return TokenPair{}, identity.Identity{}, err
	}
	return pair, user.Identity, nil
}

// Refresh rotates the refresh token and issues a new pair. A refresh token
// is single use: presenting it again, or after expiry, fails.
func (s *Service) Refresh(_ context.Context, refreshToken string) (TokenPair, error) {
	s.mu.Lock()
	rec, ok := s.refresh[refreshToken]
	if ok {
		delete(s.refresh, refreshToken)
	}
	s.mu.Unlock()
	if !ok || !s.now().Before(rec.expiresAt) {
		return TokenPair{}, ErrBadRefreshToken
	}
	if _, exists := s.users.FindByID(rec.userID); !exists {
		return TokenPair{}, ErrBadRefreshToken
	}
	return s.issue(rec.userID)
}

// Logout revokes every refresh token of the token's subject.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	ident, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for tok, rec := range s.refresh {
		if rec.userID == ident.ID {
			delete(s.refresh, tok)
		}
	}
	s.mu.Unlock()
	return nil
}

// Authenticate verifies an access token and returns the subject's current
// identity snapshot.
func (s *Service) Authenticate(_ context.Context, accessToken string) (identity.Identity, error) {
	parsed, err := jwt.Parse(accessToken,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return identity.Identity{}, ErrBadAccessToken
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return identity.Identity{}, ErrBadAccessToken
	}
	user, ok := s.users.FindByID(subject)
	if !ok {
		return identity.Identity{}, ErrBadAccessToken
	}
	return user.Identity, nil
}

func (s *Service) issue(userID string) (TokenPair, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("idp: sign access token: %w", err)
	}

	refreshToken := ulid.Make().String()
	s.mu.Lock()
	s.refresh[refreshToken] = refreshRecord{userID: userID, expiresAt: now.Add(s.refreshTTL)}
	s.mu.Unlock()

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    s.accessTTL,
	}, nil
}
