package idp

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/arkcms/authengine/internal/identity"
)

// User is one provisioned account.
type User struct {
	Identity     identity.Identity
	PasswordHash string
}

// Store is the in-memory user registry. The dev provider has no database;
// accounts are seeded at startup.
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]User
}

func NewStore() *Store {
	return &Store{
		byEmail: make(map[string]User),
		byID:    make(map[string]User),
	}
}

// Add registers a user. Email and ID must be unique.
func (s *Store) Add(u User) error {
	email := normalizeEmail(u.Identity.Email)
	if email == "" {
		return errors.New("idp: user email is required")
	}
	if u.Identity.ID == "" {
		return errors.New("idp: user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return fmt.Errorf("idp: duplicate user %s", email)
	}
	s.byEmail[email] = u
	s.byID[u.Identity.ID] = u
	return nil
}

func (s *Store) FindByEmail(email string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byEmail[normalizeEmail(email)]
	return u, ok
}

func (s *Store) FindByID(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	return u, ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SeedUser is a declarative account used at startup and in the users file.
type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Username string `yaml:"username"`
	Role     string `yaml:"role"`
	Status   string `yaml:"status"`
}

// Seed hashes the password and adds the account.
func (s *Store) Seed(u SeedUser) error {
	if u.Password == "" {
		return fmt.Errorf("idp: user %s has no password", u.Email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	role := identity.ParseRole(u.Role)
	if !role.Known() {
		return fmt.Errorf("idp: user %s has unknown role %q", u.Email, u.Role)
	}
	status := u.Status
	if status == "" {
		status = identity.StatusActive
	}
	username := u.Username
	if username == "" {
		if at := strings.IndexByte(u.Email, '@'); at > 0 {
			username = u.Email[:at]
		}
	}
	return s.Add(User{
		Identity: identity.Identity{
			ID:       uuid.NewString(),
			Email:    normalizeEmail(u.Email),
			Username: username,
			Role:     role,
			Status:   status,
		},
		PasswordHash: string(hash),
	})
}

// LoadUsersFile reads seed accounts from a YAML file.
func LoadUsersFile(path string) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("idp: read users file: %w", err)
	}
	var users []SeedUser
	if err := yaml.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("idp: parse users file: %w", err)
	}
	return users, nil
}
