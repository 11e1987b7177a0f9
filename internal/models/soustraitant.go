package models

import (
	"time"

	"gorm.io/gorm"
)

// SousTraitant is a subcontractor. It has its own orders and progress statements on a chantier,
// and may read them through the PIN-protected portal.
type SousTraitant struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Nom       string `gorm:"size:255;not null;index" json:"nom"`
	Email     string `gorm:"size:255" json:"email,omitempty"`
	Contact   string `gorm:"size:255" json:"contact,omitempty"`
	Telephone string `gorm:"size:50" json:"telephone,omitempty"`
	SIRET     string `gorm:"size:14" json:"siret,omitempty"`
	PortalPIN string `gorm:"size:255" json:"-"` // bcrypt hash
}

func (s *SousTraitant) HasPortalAccess() bool { return s.PortalPIN != "" }
