package auth

import "time"

type Role string

const (
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

// User is the domain representation of a marketplace account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers. Role is immutable after
// creation; no update path exists anywhere in the core.
type User struct {
	ID           string
	Name         string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}
