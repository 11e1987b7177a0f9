package models

import (
	"time"

	"gorm.io/gorm"
)

// Role drives notification defaults and the profile assigned at creation.
type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
	RoleBot     Role = "BOT"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleUser, RoleBot:
		return true
	}
	return false
}

// User represents an authenticated staff member.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Nom       string         `gorm:"size:255" json:"nom,omitempty"`
	Prenom    string         `gorm:"size:255" json:"prenom,omitempty"`
	Password  string         `gorm:"size:255;not null" json:"-"` // bcrypt hash
	Role      Role           `gorm:"size:20;not null;default:'USER';index" json:"role"`
	Active    bool           `gorm:"not null;default:true" json:"active"`
	// ProfileID links the user to an authorization profile.
	// A nil value means the user has no profile assigned (no access to guarded routes).
	ProfileID *uint    `gorm:"index" json:"profile_id,omitempty"`
	Profile   *Profile `gorm:"foreignKey:ProfileID" json:"profile,omitempty"`
}

func (u *User) FullName() string {
	switch {
	case u.Prenom != "" && u.Nom != "":
		return u.Prenom + " " + u.Nom
	case u.Nom != "":
		return u.Nom
	default:
		return u.Email
	}
}
