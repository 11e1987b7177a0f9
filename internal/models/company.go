package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CompanySettings is the single row describing the contractor, printed on every document.
type CompanySettings struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RaisonSociale string `gorm:"size:255;not null" json:"raison_sociale"`
	Email         string `gorm:"size:255" json:"email,omitempty"`
	Telephone     string `gorm:"size:50" json:"telephone,omitempty"`
	SiteWeb       string `gorm:"size:255" json:"site_web,omitempty"`

	Adresse    string `gorm:"size:500" json:"adresse,omitempty"`
	CodePostal string `gorm:"size:20" json:"code_postal,omitempty"`
	Ville      string `gorm:"size:100" json:"ville,omitempty"`

	SIRET    string `gorm:"size:14" json:"siret,omitempty"`
	TVAIntra string `gorm:"size:20" json:"tva_intra,omitempty"`
	RCS      string `gorm:"size:100" json:"rcs,omitempty"`
	IBAN     string `gorm:"size:34" json:"iban,omitempty"`
	LogoURL  string `gorm:"size:500" json:"logo_url,omitempty"`

	TauxTVADefaut decimal.Decimal `gorm:"type:decimal(5,2);not null;default:20" json:"taux_tva_defaut"`
}

// AdresseComplete joins the address lines for documents.
func (c CompanySettings) AdresseComplete() string {
	city := strings.TrimSpace(c.CodePostal + " " + c.Ville)
	parts := make([]string, 0, 2)
	for _, p := range []string{c.Adresse, city} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}
