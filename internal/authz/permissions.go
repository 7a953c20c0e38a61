package authz

// Permission keys for the CMS modules.
const (
	PermPostsRead      Permission = "posts.read"
	PermPostsCreate    Permission = "posts.create"
	PermPostsEditOwn   Permission = "posts.edit.own"
	PermPostsEditAny   Permission = "posts.edit.any"
	PermPostsDeleteOwn Permission = "posts.delete.own"
	PermPostsDeleteAny Permission = "posts.delete.any"
	PermPostsPublish   Permission = "posts.publish.any"

	PermNotesRead      Permission = "notes.read"
	PermNotesCreate    Permission = "notes.create"
	PermNotesEditOwn   Permission = "notes.edit.own"
	PermNotesDeleteOwn Permission = "notes.delete.own"

	PermCommentsCreate    Permission = "comments.create"
	PermCommentsEditOwn   Permission = "comments.edit.own"
	PermCommentsDeleteAny Permission = "comments.delete.any"

	PermLibraryRead   Permission = "library.read"
	PermLibraryManage Permission = "library.manage.any"

	PermWeatherRead Permission = "weather.read"

	PermUsersManage    Permission = "users.manage.any"
	PermRolesAssign    Permission = "roles.assign.any"
	PermAuditRead      Permission = "audit.read"
	PermSettingsManage Permission = "settings.manage.any"
)

// defaultConfig is the built-in grant table used when no YAML override is
// provided. audit.read is exclusive: it is granted per role, never
// inherited through the hierarchy.
var defaultConfig = Config{
	ModeratorRole: "editor",
	Exclusive:     []string{string(PermAuditRead)},
	Roles: map[string][]string{
		"guest": {
			string(PermPostsRead),
			string(PermWeatherRead),
		},
		"reader": {
			string(PermLibraryRead),
			string(PermCommentsCreate),
			string(PermCommentsEditOwn),
		},
		"author": {
			string(PermPostsCreate),
			string(PermPostsEditOwn),
			string(PermPostsDeleteOwn),
			string(PermNotesRead),
			string(PermNotesCreate),
			string(PermNotesEditOwn),
			string(PermNotesDeleteOwn),
		},
		"editor": {
			string(PermPostsEditAny),
			string(PermPostsDeleteAny),
			string(PermPostsPublish),
			string(PermCommentsDeleteAny),
			string(PermLibraryManage),
		},
		"admin": {
			string(PermUsersManage),
			string(PermRolesAssign),
			string(PermAuditRead),
		},
		"superadmin": {
			string(PermSettingsManage),
			string(PermAuditRead),
		},
	},
}

// DefaultTable returns the built-in grant table.
func DefaultTable() *Table {
	t, err := NewTable(defaultConfig)
	if err != nil {
		// The built-in config only references known roles.
		panic(err)
	}
	return t
}
