package models

import "time"

type SAVStatut string

const (
	SAVNouveau SAVStatut = "NOUVEAU"
	SAVEnCours SAVStatut = "EN_COURS"
	SAVResolu  SAVStatut = "RESOLU"
	SAVClos    SAVStatut = "CLOS"
)

var SAVStatuts = []string{string(SAVNouveau), string(SAVEnCours), string(SAVResolu), string(SAVClos)}

var SAVPriorites = []string{"BASSE", "NORMALE", "HAUTE", "URGENTE"}

// TicketSAV is an after-sales ticket raised on a chantier.
type TicketSAV struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ChantierID  uint       `gorm:"index;not null" json:"chantier_id"`
	Titre       string     `gorm:"size:255;not null" json:"titre"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Priorite    string     `gorm:"size:20;not null;default:'NORMALE'" json:"priorite"`
	Statut      SAVStatut  `gorm:"size:20;not null;default:'NOUVEAU';index" json:"statut"`
	CreatedByID uint       `gorm:"index" json:"created_by_id"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id,omitempty"`
	ResoluAt    *time.Time `json:"resolu_at,omitempty"`
}
