package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EtatAvancement is one numbered progress statement. Numbers start at 1 and are unique per
// (chantier, sous-traitant) scope; SousTraitantID 0 is the client scope.
type EtatAvancement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChantierID     uint      `gorm:"not null;uniqueIndex:idx_etat_scope_numero,priority:1" json:"chantier_id"`
	SousTraitantID uint      `gorm:"not null;default:0;uniqueIndex:idx_etat_scope_numero,priority:2" json:"soustraitant_id"`
	Numero         int       `gorm:"not null;uniqueIndex:idx_etat_scope_numero,priority:3" json:"numero"`
	Date           time.Time `gorm:"not null" json:"date"`
	Commentaires   string    `gorm:"type:text" json:"commentaires"`
	EstFinalise    bool      `gorm:"not null" json:"est_finalise"`
	CreatedByID    uint      `gorm:"index" json:"created_by_id"`

	Lignes   []LigneEtatAvancement   `gorm:"foreignKey:EtatAvancementID;constraint:OnDelete:CASCADE" json:"lignes"`
	Avenants []AvenantEtatAvancement `gorm:"foreignKey:EtatAvancementID;constraint:OnDelete:CASCADE" json:"avenants"`
}

// Totaux sums the ledgers of lines and avenants.
func (e *EtatAvancement) Totaux() (precedent, actuel, total decimal.Decimal) {
	add := func(a Avancement) {
		precedent = precedent.Add(a.MontantPrecedent)
		actuel = actuel.Add(a.MontantActuel)
		total = total.Add(a.MontantTotal)
	}
	for _, l := range e.Lignes {
		add(l.Avancement)
	}
	for _, a := range e.Avenants {
		add(a.Avancement)
	}
	return precedent, actuel, total
}

// Avancement is the running ledger shared by progress lines and avenants.
type Avancement struct {
	Ordre        int             `gorm:"not null;default:0" json:"ordre"`
	Article      string          `gorm:"size:100" json:"article,omitempty"`
	Description  string          `gorm:"type:text" json:"description"`
	Type         LigneType       `gorm:"size:20;not null;default:'QP'" json:"type"`
	Unite        string          `gorm:"size:20" json:"unite,omitempty"`
	PrixUnitaire decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"prix_unitaire"`
	Quantite     decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantite"`
	Total        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`

	QuantitePrecedente decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantite_precedente"`
	QuantiteActuelle   decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantite_actuelle"`
	QuantiteTotale     decimal.Decimal `gorm:"type:decimal(14,3);not null" json:"quantite_totale"`
	MontantPrecedent   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"montant_precedent"`
	MontantActuel      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"montant_actuel"`
	MontantTotal       decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"montant_total"`
}

// SetActuelle records the quantity done in this period and recomputes the cumulative columns.
func (a *Avancement) SetActuelle(q decimal.Decimal) {
	a.QuantiteActuelle = q
	a.MontantActuel = q.Mul(a.PrixUnitaire).Round(2)
	a.QuantiteTotale = a.QuantitePrecedente.Add(q)
	a.MontantTotal = a.MontantPrecedent.Add(a.MontantActuel)
}

// CarryForward returns the ledger opening the next statement: previous takes the cumulative
// values, current is zero and cumulative is unchanged.
func (a Avancement) CarryForward() Avancement {
	next := a
	next.QuantitePrecedente = a.QuantiteTotale
	next.MontantPrecedent = a.MontantTotal
	next.QuantiteActuelle = decimal.Zero
	next.MontantActuel = decimal.Zero
	return next
}

// Percent returns the cumulative share of the ordered quantity, 0 when nothing was ordered.
func (a *Avancement) Percent() decimal.Decimal {
	if a.Quantite.IsZero() {
		return decimal.Zero
	}
	return a.QuantiteTotale.Div(a.Quantite).Mul(decimal.NewFromInt(100)).Round(1)
}

type LigneEtatAvancement struct {
	ID               uint  `gorm:"primaryKey" json:"id"`
	EtatAvancementID uint  `gorm:"index;not null" json:"etat_avancement_id"`
	LigneCommandeID  *uint `gorm:"index" json:"ligne_commande_id,omitempty"`

	Avancement `gorm:"embedded"`
}

// AvenantEtatAvancement is extra work outside the order, carried forward like a line.
type AvenantEtatAvancement struct {
	ID               uint `gorm:"primaryKey" json:"id"`
	EtatAvancementID uint `gorm:"index;not null" json:"etat_avancement_id"`

	Avancement `gorm:"embedded"`
}
