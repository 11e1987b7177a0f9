// Package pdf renders domain documents to HTML and rasterizes them to PDF.
package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcs = template.FuncMap{
	"euro": money.Euro,
	"qty":  money.Quantity,
	"pct": func(a models.Avancement) string {
		return money.Format(a.Percent(), 1) + " %"
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02/01/2006")
	},
	"sectionClass": func(t models.LigneType) string {
		if t == models.LigneTitre {
			return "titre"
		}
		return "sous-titre"
	},
}

var (
	etatTmpl     = template.Must(template.New("etat.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/etat.html"))
	commandeTmpl = template.Must(template.New("commande.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/commande.html"))
)

// EtatData is everything printed on a progress statement.
type EtatData struct {
	Chantier     models.Chantier
	SousTraitant *models.SousTraitant
	Etat         models.EtatAvancement
}

type CommandeData struct {
	Chantier     models.Chantier
	SousTraitant *models.SousTraitant
	Commande     models.Commande
}

type etatView struct {
	EtatData
	Company        models.CompanySettings
	TotalPrecedent decimal.Decimal
	TotalActuel    decimal.Decimal
	TotalCumul     decimal.Decimal
}

type commandeView struct {
	CommandeData
	Company models.CompanySettings
	Colspan int
}

// EtatAvancementHTML renders a complete HTML document for a progress statement.
func EtatAvancementHTML(data EtatData, company models.CompanySettings) (string, error) {
	v := &etatView{EtatData: data, Company: company}
	v.TotalPrecedent, v.TotalActuel, v.TotalCumul = data.Etat.Totaux()
	return render(etatTmpl, v)
}

// CommandeHTML renders an order. Prices are only shown when the order asks for them.
func CommandeHTML(data CommandeData, company models.CompanySettings) (string, error) {
	v := &commandeView{CommandeData: data, Company: company, Colspan: 5}
	if data.Commande.AfficherPrix {
		v.Colspan = 7
	}
	return render(commandeTmpl, v)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// EtatFilename is the attachment name used for a statement.
func EtatFilename(chantierCode string, numero int) string {
	return fmt.Sprintf("etat-avancement-%s-n%d.pdf", chantierCode, numero)
}

func CommandeFilename(chantierCode string, commandeID uint) string {
	return fmt.Sprintf("commande-%s-%d.pdf", chantierCode, commandeID)
}
