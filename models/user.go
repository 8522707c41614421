package models

import "time"

// Role controls what a user may do. Unrecognized values decode to
// RoleCitizen.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleNGO        Role = "ngo"
	RoleGovernment Role = "government"
	RoleResearcher Role = "researcher"
	RoleAdmin      Role = "admin"
)

var roles = map[string]Role{
	"citizen":    RoleCitizen,
	"ngo":        RoleNGO,
	"government": RoleGovernment,
	"researcher": RoleResearcher,
	"admin":      RoleAdmin,
}

func ParseRole(s string) Role {
	if r, ok := roles[s]; ok {
		return r
	}
	return RoleCitizen
}

// CanVerify reports whether the role may manually verify incidents.
func (r Role) CanVerify() bool {
	return r == RoleAdmin || r == RoleGovernment
}

// User is a registered reporter. Users are never hard-deleted; points only
// grow.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	Organization string    `json:"organization,omitempty" db:"organization"`
	Points       int       `json:"points" db:"points"`
	Badges       []string  `json:"badges"`
	IsVerified   bool      `json:"is_verified" db:"is_verified"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// UserStats summarizes a user's reporting history for profile and
// leaderboard responses.
type UserStats struct {
	TotalReports    int      `json:"total_reports"`
	VerifiedReports int      `json:"verified_reports"`
	Badges          []string `json:"badges"`
}

// BadgesFor derives badges from report counts.
func BadgesFor(totalReports, verifiedReports int) []string {
	badges := []string{}
	if totalReports >= 1 {
		badges = append(badges, "First Reporter")
	}
	if totalReports >= 10 {
		badges = append(badges, "Active Reporter")
	}
	if totalReports >= 50 {
		badges = append(badges, "Super Reporter")
	}
	if verifiedReports >= 5 {
		badges = append(badges, "Verified Contributor")
	}
	return badges
}

// LeaderboardEntry is one row of the points leaderboard.
type LeaderboardEntry struct {
	Rank            int    `json:"rank"`
	Name            string `json:"name"`
	Organization    string `json:"organization,omitempty"`
	Points          int    `json:"points"`
	TotalReports    int    `json:"total_reports"`
	VerifiedReports int    `json:"verified_reports"`
}

// RegisterRequest is the POST /auth/register body.
type RegisterRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	Role         string `json:"role"`
	Organization string `json:"organization"`
}

// LoginRequest is the POST /auth/login body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateUserRequest is the PUT /users/me body. Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name         *string `json:"name"`
	Organization *string `json:"organization"`
}
