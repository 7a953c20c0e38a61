// Package authz evaluates role and permission checks. Everything here is
// pure: the identity under test is passed explicitly and the grant table is
// loaded once at process start and never mutated afterwards.
package authz

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arkcms/authengine/internal/identity"
)

// Permission is a fine-grained capability key, e.g. "posts.edit.own".
// Keys ending in ".own" are ownership-scoped; keys ending in ".any" are
// moderator-scoped variants of the same action.
type Permission string

// OwnScoped reports whether the permission is of the own-resource family.
func (p Permission) OwnScoped() bool { return strings.HasSuffix(string(p), ".own") }

// AnyScoped reports whether the permission is of the any-resource family.
func (p Permission) AnyScoped() bool { return strings.HasSuffix(string(p), ".any") }

// Config is the serialized grant table. Roles map to the permissions they
// are explicitly granted; hierarchical inheritance adds every lower-rank
// grant unless the permission is listed as exclusive.
type Config struct {
	// ModeratorRole is the minimum rank that passes any-resource checks
	// and overrides ownership on own-resource checks.
	ModeratorRole string `yaml:"moderator_role"`
	// Exclusive lists permissions that are not inherited by higher ranks.
	Exclusive []string `yaml:"exclusive"`
	// Roles maps role name to explicitly granted permission keys.
	Roles map[string][]string `yaml:"roles"`
}

// Table is the immutable, fully expanded role-to-permission mapping.
type Table struct {
	moderator identity.Role
	grants    map[identity.Role]map[Permission]struct{}
}

// NewTable validates and expands a config into a table.
func NewTable(cfg Config) (*Table, error) {
	moderator := identity.ParseRole(cfg.ModeratorRole)
	if cfg.ModeratorRole == "" {
		moderator = identity.RoleEditor
	}
	if !moderator.Known() {
		return nil, fmt.Errorf("authz: unknown moderator role %q", cfg.ModeratorRole)
	}

	exclusive := make(map[Permission]struct{}, len(cfg.Exclusive))
	for _, raw := range cfg.Exclusive {
		exclusive[Permission(strings.TrimSpace(raw))] = struct{}{}
	}

	explicit := make(map[identity.Role]map[Permission]struct{}, len(cfg.Roles))
	for rawRole, perms := range cfg.Roles {
		role := identity.ParseRole(rawRole)
		if !role.Known() {
			return nil, fmt.Errorf("authz: unknown role %q in grant table", rawRole)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, raw := range perms {
			key := Permission(strings.TrimSpace(raw))
			if key == "" {
				continue
			}
			set[key] = struct{}{}
		}
		explicit[role] = set
	}

	// Expand hierarchical inheritance: each rank receives every
	// non-exclusive grant of the ranks below it.
	grants := make(map[identity.Role]map[Permission]struct{})
	for _, role := range identity.Roles() {
		set := make(map[Permission]struct{})
		for perm := range explicit[role] {
			set[perm] = struct{}{}
		}
		for _, lower := range identity.Roles() {
			if lower.Rank() >= role.Rank() {
				break
			}
			for perm := range explicit[lower] {
				if _, excluded := exclusive[perm]; excluded {
					continue
				}
				set[perm] = struct{}{}
			}
		}
		grants[role] = set
	}

	return &Table{moderator: moderator, grants: grants}, nil
}

// LoadTable decodes a YAML grant table from r.
func LoadTable(r io.Reader) (*Table, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("authz: decode grant table: %w", err)
	}
	return NewTable(cfg)
}

// LoadTableFile reads a YAML grant table from disk.
func LoadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("authz: open grant table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadTable(f)
}

// ModeratorRole returns the configured moderator rank.
func (t *Table) ModeratorRole() identity.Role { return t.moderator }

// RoleHasPermission reports whether the role's expanded grant set contains
// the permission. Unknown roles have an empty grant set.
func (t *Table) RoleHasPermission(role identity.Role, perm Permission) bool {
	set, ok := t.grants[role]
	if !ok {
		return false
	}
	_, granted := set[perm]
	return granted
}

// MinimumRole returns the lowest rank whose grant set contains the
// permission, used for diagnostic denial messages.
func (t *Table) MinimumRole(perm Permission) (identity.Role, bool) {
	for _, role := range identity.Roles() {
		if t.RoleHasPermission(role, perm) {
			return role, true
		}
	}
	return "", false
}
