package models

import "time"

// UserRole represents the three fixed application roles. Roles are not
// hierarchical; behaviour differences are matched exhaustively per role.
type UserRole string

const (
	RoleStudent       UserRole = "STUDENT"
	RoleLecturer      UserRole = "LECTURER"
	RoleAdministrator UserRole = "ADMINISTRATOR"
)

// Valid reports whether the role is one of the three known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdministrator:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
// An empty NIMNIP signals an incomplete profile for students and lecturers;
// administrators carry neither NIMNIP nor a class type.
type User struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Username         string    `db:"username" json:"username"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	Role             UserRole  `db:"role" json:"role"`
	NIMNIP           string    `db:"nim_nip" json:"nim_nip"`
	ClassType        *string   `db:"class_type" json:"class_type,omitempty"`
	RegistrationDate time.Time `db:"registration_date" json:"registration_date"`
	IsSuspended      bool      `db:"is_suspended" json:"is_suspended"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileComplete reports whether the user has finished onboarding.
func (u *User) ProfileComplete() bool {
	if u.Role == RoleAdministrator {
		return true
	}
	if u.NIMNIP == "" {
		return false
	}
	if u.Role == RoleStudent && (u.ClassType == nil || *u.ClassType == "") {
		return false
	}
	return true
}

// ProfileUpdateRequest carries a user's own editable fields. Name, NIM/NIP
// and class type lock once set; username and password stay editable.
type ProfileUpdateRequest struct {
	Name      string  `json:"name" validate:"required"`
	Username  string  `json:"username" validate:"required"`
	NIMNIP    string  `json:"nim_nip"`
	ClassType *string `json:"class_type,omitempty"`
	Password  string  `json:"password,omitempty" validate:"omitempty,min=8"`
}

// AdminUserUpdateRequest carries the fields an administrator may edit on any
// account.
type AdminUserUpdateRequest struct {
	Name     string   `json:"name" validate:"required"`
	Username string   `json:"username" validate:"required"`
	NIMNIP   string   `json:"nim_nip"`
	Role     UserRole `json:"role" validate:"required"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Suspended *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
