package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ChantierStatut string

const (
	ChantierEnPreparation ChantierStatut = "EN_PREPARATION"
	ChantierEnCours       ChantierStatut = "EN_COURS"
	ChantierTermine       ChantierStatut = "TERMINE"
	ChantierAVenir        ChantierStatut = "A_VENIR"
)

var ChantierStatuts = []string{
	string(ChantierEnPreparation), string(ChantierEnCours), string(ChantierTermine), string(ChantierAVenir),
}

// Chantier is a worksite, addressed in URLs by its human-readable code (CH-2025-ABC123).
type Chantier struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Code        string         `gorm:"size:40;uniqueIndex;not null" json:"chantier_id"`
	Nom         string         `gorm:"size:255;not null" json:"nom"`
	ClientNom   string         `gorm:"size:255" json:"client_nom,omitempty"`
	ClientEmail string         `gorm:"size:255" json:"client_email,omitempty"`
	Adresse     string         `gorm:"size:500" json:"adresse,omitempty"`
	Statut      ChantierStatut `gorm:"size:20;not null;default:'EN_PREPARATION';index" json:"statut"`
	DateDebut   *time.Time     `json:"date_debut,omitempty"`
	DateFin     *time.Time     `json:"date_fin,omitempty"`
	// Budget is maintained from validated client orders; see CommandeService.
	Budget decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"budget"`

	UserID uint `gorm:"index" json:"user_id"`
}

// GetUserID implements the Ownable interface.
func (c *Chantier) GetUserID() uint { return c.UserID }

// FormatChantierCode builds CH-YYYY-XXXXXX from a year and a 6-character suffix.
func FormatChantierCode(year int, suffix string) string {
	return fmt.Sprintf("CH-%d-%s", year, suffix)
}
