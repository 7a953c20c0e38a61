// Package credstore persists session credentials across two storage
// partitions. The durable partition survives process restarts; the
// ephemeral one does not. The remember-me flag selects which partition
// holds the short-lived access token, while the refresh token and the flag
// itself always live in the durable partition so one silent re-auth attempt
// remains possible after a restart.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyRememberMe   = "remember_me"
)

// Partition is a small keyed namespace for credential values.
type Partition interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Credentials is the at-rest record managed by the store.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	RememberMe   bool
}

// Store routes credential reads and writes across the two partitions.
type Store struct {
	durable   Partition
	ephemeral Partition
}

// New builds a store over the given partitions.
func New(durable, ephemeral Partition) (*Store, error) {
	if durable == nil || ephemeral == nil {
		return nil, errors.New("credstore: both partitions are required")
	}
	return &Store{durable: durable, ephemeral: ephemeral}, nil
}

// Read loads the stored credentials. The durable partition is consulted
// first; the first partition holding a value wins. Writes keep the access
// token in at most one partition, but reads stay defensive about it.
func (s *Store) Read(ctx context.Context) (Credentials, error) {
	var creds Credentials

	access, err := s.firstValue(ctx, keyAccessToken)
	if err != nil {
		return Credentials{}, err
	}
	creds.AccessToken = access

	refresh, err := s.firstValue(ctx, keyRefreshToken)
	if err != nil {
		return Credentials{}, err
	}
	creds.RefreshToken = refresh

	if raw, ok, err := s.durable.Get(ctx, keyRememberMe); err != nil {
		return Credentials{}, fmt.Errorf("credstore: read remember flag: %w", err)
	} else if ok {
		remember, parseErr := strconv.ParseBool(raw)
		if parseErr == nil {
			creds.RememberMe = remember
		}
	}
	return creds, nil
}

// Write persists a full credential set. The access token goes to the
// partition selected by rememberMe and is removed from the other one; the
// refresh token and the flag always go to the durable partition.
func (s *Store) Write(ctx context.Context, creds Credentials) error {
	target, other := s.ephemeral, s.durable
	if creds.RememberMe {
		target, other = s.durable, s.ephemeral
	}

	// Remove the stale copy first so a crash mid-write cannot leave the
	// access token readable from both partitions.
	if err := other.Delete(ctx, keyAccessToken); err != nil {
		return fmt.Errorf("credstore: clear access token: %w", err)
	}
	if err := target.Set(ctx, keyAccessToken, creds.AccessToken); err != nil {
		return fmt.Errorf("credstore: write access token: %w", err)
	}
	if err := s.ephemeral.Delete(ctx, keyRefreshToken); err != nil {
		return fmt.Errorf("credstore: clear refresh token: %w", err)
	}
	if err := s.durable.Set(ctx, keyRefreshToken, creds.RefreshToken); err != nil {
		return fmt.Errorf("credstore: write refresh token: %w", err)
	}
	if err := s.durable.Set(ctx, keyRememberMe, strconv.FormatBool(creds.RememberMe)); err != nil {
		return fmt.Errorf("credstore: write remember flag: %w", err)
	}
	return nil
}

// Clear removes every credential value from both partitions. Clearing an
// already empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, p := range []Partition{s.durable, s.ephemeral} {
		for _, key := range []string{keyAccessToken, keyRefreshToken, keyRememberMe} {
			if err := p.Delete(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("credstore: clear: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Store) firstValue(ctx context.Context, key string) (string, error) {
	if v, ok, err := s.durable.Get(ctx, key); err != nil {
		return "", fmt.Errorf("credstore: read %s: %w", key, err)
	} else if ok && v != "" {
		return v, nil
	}
	if v, ok, err := s.ephemeral.Get(ctx, key); err != nil {
		return "", fmt.Errorf("credstore: read %s: %w", key, err)
	} else if ok {
		return v, nil
	}
	return "", nil
}
