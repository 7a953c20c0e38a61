package authz

import (
	"testing"

	"github.com/arkcms/authengine/internal/identity"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := New(DefaultTable())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func ident(id string, role identity.Role) *identity.Identity {
	return &identity.Identity{ID: id, Role: role, Status: identity.StatusActive}
}

func TestSuspendedIdentityAlwaysDenied(t *testing.T) {
	e := newEvaluator(t)
	perms := []Permission{
		PermPostsRead, PermPostsCreate, PermPostsEditOwn, PermPostsEditAny,
		PermUsersManage, PermSettingsManage, PermWeatherRead,
	}
	for _, role := range identity.Roles() {
		suspended := &identity.Identity{ID: "u-susp", Role: role, Status: identity.StatusSuspended}
		for _, perm := range perms {
			if e.HasPermission(suspended, perm, nil) {
				t.Fatalf("suspended %s granted %s", role, perm)
			}
			if e.HasPermission(suspended, perm, &Resource{Type: "post", ID: "p1", OwnerID: "u-susp"}) {
				t.Fatalf("suspended %s granted %s on owned resource", role, perm)
			}
		}
	}
}

func TestGuestEvaluation(t *testing.T) {
	e := newEvaluator(t)
	if !e.HasPermission(nil, PermPostsRead, nil) {
		t.Fatal("guest should read posts")
	}
	if e.HasPermission(nil, PermPostsCreate, nil) {
		t.Fatal("guest must not create posts")
	}
	if e.HasPermission(nil, PermPostsEditOwn, &Resource{Type: "post", ID: "p1", OwnerID: "u1"}) {
		t.Fatal("guest can never own a resource")
	}
}

func TestUnknownRoleFailsClosed(t *testing.T) {
	e := newEvaluator(t)
	id := ident("u1", identity.ParseRole("nightwatch"))
	for _, perm := range []Permission{PermPostsRead, PermWeatherRead, PermPostsEditOwn} {
		if e.HasPermission(id, perm, nil) {
			t.Fatalf("unknown role granted %s", perm)
		}
	}
}

func TestOwnershipScoping(t *testing.T) {
	e := newEvaluator(t)
	author := ident("author-1", identity.RoleAuthor)
	editor := ident("editor-1", identity.RoleEditor)

	owned := &Resource{Type: "post", ID: "p1", OwnerID: "author-1"}
	foreign := &Resource{Type: "post", ID: "p2", OwnerID: "someone-else"}
	ownerless := &Resource{Type: "post", ID: "p3"}

	if !e.HasPermission(author, PermPostsEditOwn, owned) {
		t.Fatal("author should edit an owned post")
	}
	if e.HasPermission(author, PermPostsEditOwn, foreign) {
		t.Fatal("author must not edit a foreign post")
	}
	if e.HasPermission(author, PermPostsEditOwn, ownerless) {
		t.Fatal("ownerless resource must fail the ownership check")
	}
	// Moderator override: rank at or above the moderator role passes
	// regardless of ownership.
	if !e.HasPermission(editor, PermPostsEditOwn, foreign) {
		t.Fatal("editor should pass via moderator override")
	}
	if !e.HasPermission(editor, PermPostsEditOwn, ownerless) {
		t.Fatal("editor should pass on ownerless resource")
	}
}

func TestAnyScopedRequiresModeratorRank(t *testing.T) {
	e := newEvaluator(t)
	res := &Resource{Type: "post", ID: "p1", OwnerID: "author-1"}

	// The grant table alone keeps any-scoped permissions above author.
	author := ident("author-1", identity.RoleAuthor)
	if e.HasPermission(author, PermPostsEditAny, res) {
		t.Fatal("author must not hold an any-scoped grant")
	}
	editor := ident("editor-1", identity.RoleEditor)
	if !e.HasPermission(editor, PermPostsEditAny, res) {
		t.Fatal("editor should pass the any-scoped check")
	}
	admin := ident("admin-1", identity.RoleAdmin)
	if !e.HasPermission(admin, PermPostsDeleteAny, res) {
		t.Fatal("admin should pass the any-scoped check")
	}
}

func TestGlobalChecksIgnoreResourceScoping(t *testing.T) {
	e := newEvaluator(t)
	author := ident("author-1", identity.RoleAuthor)
	// Without a resource context the base grant decides.
	if !e.HasPermission(author, PermPostsEditOwn, nil) {
		t.Fatal("author holds the own-scoped grant globally")
	}
	if e.HasPermission(author, PermPostsEditAny, nil) {
		t.Fatal("author does not hold the any-scoped grant")
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	e := newEvaluator(t)
	reader := ident("r1", identity.RoleReader)

	if !e.HasAnyPermission(reader, []Permission{PermUsersManage, PermPostsRead}, nil) {
		t.Fatal("any: reader should pass via posts.read")
	}
	if e.HasAnyPermission(reader, []Permission{PermUsersManage, PermSettingsManage}, nil) {
		t.Fatal("any: reader should fail both")
	}
	if !e.HasAllPermissions(reader, []Permission{PermPostsRead, PermLibraryRead}, nil) {
		t.Fatal("all: reader should hold both")
	}
	if e.HasAllPermissions(reader, []Permission{PermPostsRead, PermUsersManage}, nil) {
		t.Fatal("all: reader should fail users.manage.any")
	}
	if !e.HasAllPermissions(reader, nil, nil) {
		t.Fatal("all: empty list is vacuously satisfied")
	}
}

func TestHasAnyRole(t *testing.T) {
	editor := ident("e1", identity.RoleEditor)
	if !HasAnyRole(editor, identity.RoleAdmin, identity.RoleEditor) {
		t.Fatal("editor should match")
	}
	if HasAnyRole(editor, identity.RoleAdmin, identity.RoleSuperAdmin) {
		t.Fatal("editor should not match")
	}
	if !HasAnyRole(nil, identity.RoleGuest) {
		t.Fatal("nil identity carries the guest role")
	}
}

func TestRoleOutranks(t *testing.T) {
	if !RoleOutranks(identity.RoleAdmin, identity.RoleEditor) {
		t.Fatal("admin outranks editor")
	}
	if !RoleOutranks(identity.RoleEditor, identity.RoleEditor) {
		t.Fatal("equal ranks satisfy the gate")
	}
	if RoleOutranks(identity.RoleAuthor, identity.RoleAdmin) {
		t.Fatal("author must not outrank admin")
	}
	if RoleOutranks(identity.ParseRole("nightwatch"), identity.RoleGuest) {
		t.Fatal("unknown actor role must fail")
	}
}

func TestCheckReasons(t *testing.T) {
	e := newEvaluator(t)

	d := e.Check(nil, PermPostsCreate, nil)
	if d.Allowed || d.Reason != ReasonUnauthenticated {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d.RequiredRole != identity.RoleAuthor {
		t.Fatalf("required role=%s, want author", d.RequiredRole)
	}

	suspended := &identity.Identity{ID: "u1", Role: identity.RoleAdmin, Status: identity.StatusSuspended}
	d = e.Check(suspended, PermPostsRead, nil)
	if d.Allowed || d.Reason != ReasonSuspended {
		t.Fatalf("unexpected decision: %+v", d)
	}

	reader := ident("r1", identity.RoleReader)
	d = e.Check(reader, PermPostsEditAny, nil)
	if d.Allowed || d.Reason != ReasonRoleInsufficient || d.RequiredRole != identity.RoleEditor {
		t.Fatalf("unexpected decision: %+v", d)
	}

	author := ident("author-1", identity.RoleAuthor)
	d = e.Check(author, PermPostsEditOwn, &Resource{Type: "post", ID: "p1", OwnerID: "other"})
	if d.Allowed || d.Reason != ReasonNotOwner || d.RequiredRole != identity.RoleEditor {
		t.Fatalf("unexpected decision: %+v", d)
	}

	d = e.Check(author, PermPostsEditOwn, &Resource{Type: "post", ID: "p1", OwnerID: "author-1"})
	if !d.Allowed || d.Reason != "" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}
