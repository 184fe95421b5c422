package domain

import "time"

// Role enumerates actor roles. Roles are fixed at creation.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may work tickets (agent or admin).
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is any authenticated actor: end-users, agents and admins.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

func (u *User) IsAgent() bool { return u != nil && u.Role == RoleAgent }

func (u *User) IsUser() bool { return u != nil && u.Role == RoleUser }

// CanWorkTickets reports whether the user may be assigned tickets and
// perform assignment operations.
func (u *User) CanWorkTickets() bool {
	return u != nil && u.Role.IsStaff()
}

// AgentLoad pairs an assignable actor with its live count of active tickets.
type AgentLoad struct {
	User          User
	ActiveTickets int
}
