package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationType is the catalog row for an event code. Rendering lives in code;
// the row only carries activation, labels and default recipient roles.
type NotificationType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Code        string    `gorm:"size:80;uniqueIndex;not null" json:"code"`
	Libelle     string    `gorm:"size:255;not null" json:"libelle"`
	Description string    `gorm:"size:500" json:"description,omitempty"`
	Categorie   string    `gorm:"size:50;index" json:"categorie"`
	Actif       bool      `gorm:"not null" json:"actif"`

	RolesParDefaut datatypes.JSONSlice[string] `json:"roles_par_defaut"`
}

type NotificationPreference struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	UserID             uint      `gorm:"not null;uniqueIndex:idx_pref_user_type" json:"user_id"`
	NotificationTypeID uint      `gorm:"not null;uniqueIndex:idx_pref_user_type" json:"notification_type_id"`
	Email              bool      `gorm:"not null" json:"email"`
	InApp              bool      `gorm:"not null" json:"in_app"`

	NotificationType *NotificationType `gorm:"foreignKey:NotificationTypeID" json:"notification_type,omitempty"`
}

type Notification struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time         `gorm:"index" json:"created_at"`
	UserID             uint              `gorm:"index;not null" json:"user_id"`
	NotificationTypeID uint              `gorm:"index;not null" json:"notification_type_id"`
	Titre              string            `gorm:"size:255;not null" json:"titre"`
	Message            string            `gorm:"type:text" json:"message"`
	Lien               string            `gorm:"size:500" json:"lien,omitempty"`
	Lu                 bool              `gorm:"not null;index" json:"lu"`
	LuAt               *time.Time        `json:"lu_at,omitempty"`
	Metadata           datatypes.JSONMap `json:"metadata,omitempty"`
	ExpiresAt          time.Time         `gorm:"index" json:"expires_at"`
}
