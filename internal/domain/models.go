package domain

import "time"

// Role is a user's access level. Ordering is significant: capability
// checks compare roles, never enumerate them.
type Role int

const (
	RoleUnregistered Role = iota
	RoleUser
	RoleUploader
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUnregistered: "unregistered",
	RoleUser:         "user",
	RoleUploader:     "uploader",
	RoleAdmin:        "admin",
	RoleSuperAdmin:   "super_admin",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return "unregistered"
}

// ParseRole maps a stored role name back to a Role. Unknown names fall
// back to the unregistered sentinel rather than an error.
func ParseRole(s string) Role {
	for r, n := range roleNames {
		if n == s {
			return r
		}
	}
	return RoleUnregistered
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool { return r >= min }

// User maps to the users table. Users are created on first contact and
// never deleted; only the role mutates afterwards.
type User struct {
	ID       int64
	Username string
	Role     Role
	JoinedAt time.Time
}

// Node is one row of the files table: a file or a folder. Parent-child
// is derived from Path, not stored; every component that compares paths
// must normalize them through the paths package first.
type Node struct {
	ID        int64
	Name      string
	Path      string // absolute, unique
	IsFolder  bool
	SizeBytes int64 // files only
	OwnerID   int64 // 0 when the uploader row was removed
	CreatedAt time.Time
}

// ChildFilter selects which children a child-lookup returns.
type ChildFilter int

const (
	AllChildren ChildFilter = iota
	FoldersOnly
)

// Stats is the aggregate report shown to admins.
type Stats struct {
	Users      int64
	Files      int64
	Folders    int64
	TotalBytes int64
}
