// Package rbac owns users, roles and sheets, the relationships among them,
// and the access-decision queries the rest of the application depends on.
package rbac

import "time"

// Role is a named permission bucket owning zero or more sheets.
type Role struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Sheets    []Sheet   `json:"sheets"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sheet is an external document reference owned by exactly one role.
type Sheet struct {
	ID        string    `json:"id"`
	SheetID   string    `json:"sheetId"`
	RoleID    string    `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is an account provisioned on first successful sign-in. RoleID is nil
// for unassigned users; they have no access, which is a valid steady state.
type User struct {
	ID        string    `json:"id"`
	Subject   string    `json:"-"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	RoleID    *string   `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Access is the answer to "what may this user see right now". Role is nil
// and Sheets empty for unassigned users.
type Access struct {
	Role   *Role   `json:"role"`
	Sheets []Sheet `json:"sheets"`
}
