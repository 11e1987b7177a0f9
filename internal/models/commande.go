package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CommandeStatut string

const (
	CommandeBrouillon   CommandeStatut = "BROUILLON"
	CommandeValidee     CommandeStatut = "VALIDEE"
	CommandeVerrouillee CommandeStatut = "VERROUILLEE"
	CommandeAnnulee     CommandeStatut = "ANNULEE"
)

var CommandeStatuts = []string{
	string(CommandeBrouillon), string(CommandeValidee), string(CommandeVerrouillee), string(CommandeAnnulee),
}

// CountsInBudget reports whether orders in this status feed the chantier budget.
func (s CommandeStatut) CountsInBudget() bool {
	return s == CommandeValidee || s == CommandeVerrouillee
}

// Commande is an order placed on a chantier. SousTraitantID 0 marks the client order;
// other values scope the order to that subcontractor.
type Commande struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	ChantierID     uint           `gorm:"index;not null" json:"chantier_id"`
	SousTraitantID uint           `gorm:"index;not null;default:0" json:"soustraitant_id"`
	Reference      string         `gorm:"size:100" json:"reference,omitempty"`
	Statut         CommandeStatut `gorm:"size:20;not null;default:'BROUILLON';index" json:"statut"`
	DateCommande   time.Time      `json:"date_commande"`
	Notes          string         `gorm:"type:text" json:"notes,omitempty"`

	// Option flags printed on the order document.
	AfficherPrix    bool `gorm:"not null" json:"afficher_prix"`
	AutoLiquidation bool `gorm:"not null" json:"auto_liquidation"`

	TauxTVA   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"taux_tva"`
	SousTotal decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"sous_total"`
	TVA       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"tva"`
	Total     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`

	CreatedByID uint `gorm:"index" json:"created_by_id"`

	Lignes []LigneCommande `gorm:"foreignKey:CommandeID;constraint:OnDelete:CASCADE" json:"lignes,omitempty"`
}

// IsClientOrder reports whether the order belongs to the client rather than a subcontractor.
func (c *Commande) IsClientOrder() bool { return c.SousTraitantID == 0 }

// IsLocked reports whether the order content may no longer change.
func (c *Commande) IsLocked() bool { return c.Statut == CommandeVerrouillee }

type LigneType string

const (
	LigneQP        LigneType = "QP" // quantité présumée
	LigneQF        LigneType = "QF" // quantité forfaitaire
	LigneForfait   LigneType = "FORFAIT"
	LigneTitre     LigneType = "TITRE"
	LigneSousTitre LigneType = "SOUS_TITRE"
)

var LigneTypes = []string{
	string(LigneQP), string(LigneQF), string(LigneForfait), string(LigneTitre), string(LigneSousTitre),
}

// IsSection reports whether lines of this type are headers carrying no amounts.
func (t LigneType) IsSection() bool {
	return t == LigneTitre || t == LigneSousTitre
}

type LigneCommande struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	CommandeID uint `gorm:"index;not null" json:"commande_id"`

	Ordre        int             `gorm:"not null;default:0" json:"ordre"`
	Article      string          `gorm:"size:100" json:"article,omitempty"`
	Description  string          `gorm:"type:text" json:"description"`
	Type         LigneType       `gorm:"size:20;not null;default:'QP'" json:"type"`
	Unite        string          `gorm:"size:20" json:"unite,omitempty"`
	PrixUnitaire decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"prix_unitaire"`
	Quantite     decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantite"`
	Total        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`
}
