package models

// UserRole is a coarse permission tier. The notification core only needs
// roles for the admin surfaces (broadcast creation); fine-grained project
// permissions live in the workflow layer.
type UserRole string

const (
	RoleMember  UserRole = "member"
	RoleManager UserRole = "manager"
	RoleAdmin   UserRole = "admin"
)

var roleRank = map[UserRole]int{
	RoleMember:  1,
	RoleManager: 2,
	RoleAdmin:   3,
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	Roles        []UserRole `json:"roles"`
}

// HasAtLeast reports whether any role in the list meets the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	want := roleRank[required]
	for _, role := range roles {
		if roleRank[role] >= want {
			return true
		}
	}
	return false
}

// HighestRole returns the strongest role in the list, RoleMember if empty.
func HighestRole(roles []UserRole) UserRole {
	highest := RoleMember
	for _, role := range roles {
		if roleRank[role] > roleRank[highest] {
			highest = role
		}
	}
	return highest
}

// NormalizeRoles drops unknown entries and duplicates.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]bool, len(roles))
	var out []UserRole
	for _, role := range roles {
		if _, known := roleRank[role]; !known || seen[role] {
			continue
		}
		seen[role] = true
		out = append(out, role)
	}
	return out
}

// EnsureDefaultRole guarantees at least the member tier.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	if len(roles) == 0 {
		return []UserRole{RoleMember}
	}
	return roles
}

// IsValidRoleList reports whether every entry is a known role.
func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		if _, ok := roleRank[role]; !ok {
			return false
		}
	}
	return true
}
