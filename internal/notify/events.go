package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/diewo77/go-btp/internal/money"
	"github.com/shopspring/decimal"
)

// Kind is the catalog code of an event.
type Kind string

const (
	KindEtatCree             Kind = "ETAT_AVANCEMENT_CREE"
	KindEtatFinalise         Kind = "ETAT_AVANCEMENT_FINALISE"
	KindCommandeValidee      Kind = "COMMANDE_VALIDEE"
	KindChantierStatutChange Kind = "CHANTIER_STATUT_CHANGE"
	KindSAVTicketCree        Kind = "SAV_TICKET_CREE"
	KindSAVTicketAssigne     Kind = "SAV_TICKET_ASSIGNE"
	KindDocumentAjoute       Kind = "DOCUMENT_AJOUTE"
)

// Kinds lists every event the application emits.
var Kinds = []Kind{
	KindEtatCree, KindEtatFinalise, KindCommandeValidee, KindChantierStatutChange,
	KindSAVTicketCree, KindSAVTicketAssigne, KindDocumentAjoute,
}

const maxTitleRunes = 100

// Content is what a recipient sees.
type Content struct {
	Title string
	Body  string
	Link  string
}

// Event is a typed domain event. Text is the rendered message whose first line is the title.
type Event interface {
	Kind() Kind
	Text() string
	Link() string
	Metadata() map[string]any
}

// Render splits the event text into title and body.
func Render(ev Event) Content {
	title, body, _ := strings.Cut(strings.TrimSpace(ev.Text()), "\n")
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes-1]) + "…"
	}
	return Content{Title: title, Body: strings.TrimSpace(body), Link: ev.Link()}
}

func scopeLabel(soustraitant string) string {
	if soustraitant == "" {
		return ""
	}
	return " (" + soustraitant + ")"
}

type EtatCree struct {
	ChantierCode string
	ChantierNom  string
	Numero       int
	SousTraitant string
	CreePar      string
}

func (EtatCree) Kind() Kind { return KindEtatCree }

func (e EtatCree) Text() string {
	return fmt.Sprintf("État d'avancement n°%d créé sur %s%s\nLe chantier %s a un nouvel état d'avancement, créé par %s.",
		e.Numero, e.ChantierCode, scopeLabel(e.SousTraitant), e.ChantierNom, e.CreePar)
}

func (e EtatCree) Link() string {
	return "/chantiers/" + e.ChantierCode + "/etats-avancement"
}

func (e EtatCree) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "numero": e.Numero}
}

type EtatFinalise struct {
	ChantierCode string
	ChantierNom  string
	Numero       int
	SousTraitant string
	MontantCumul decimal.Decimal
}

func (EtatFinalise) Kind() Kind { return KindEtatFinalise }

func (e EtatFinalise) Text() string {
	return fmt.Sprintf("État d'avancement n°%d finalisé sur %s%s\nChantier %s : cumul à date %s.",
		e.Numero, e.ChantierCode, scopeLabel(e.SousTraitant), e.ChantierNom, money.Euro(e.MontantCumul))
}

func (e EtatFinalise) Link() string {
	return "/chantiers/" + e.ChantierCode + "/etats-avancement"
}

func (e EtatFinalise) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "numero": e.Numero, "montant": e.MontantCumul.String()}
}

type CommandeValidee struct {
	ChantierCode string
	CommandeID   uint
	Reference    string
	Total        decimal.Decimal
}

func (CommandeValidee) Kind() Kind { return KindCommandeValidee }

func (e CommandeValidee) Text() string {
	ref := e.Reference
	if ref == "" {
		ref = fmt.Sprintf("#%d", e.CommandeID)
	}
	return fmt.Sprintf("Commande %s validée sur %s\nMontant TTC : %s.", ref, e.ChantierCode, money.Euro(e.Total))
}

func (e CommandeValidee) Link() string {
	return fmt.Sprintf("/chantiers/%s/commandes/%d", e.ChantierCode, e.CommandeID)
}

func (e CommandeValidee) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "commandeId": e.CommandeID, "total": e.Total.String()}
}

type ChantierStatutChange struct {
	ChantierCode string
	ChantierNom  string
	Ancien       string
	Nouveau      string
}

func (ChantierStatutChange) Kind() Kind { return KindChantierStatutChange }

func (e ChantierStatutChange) Text() string {
	return fmt.Sprintf("Chantier %s : %s\n%s passe de %s à %s.", e.ChantierCode, e.Nouveau, e.ChantierNom, e.Ancien, e.Nouveau)
}

func (e ChantierStatutChange) Link() string { return "/chantiers/" + e.ChantierCode }

func (e ChantierStatutChange) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "ancien": e.Ancien, "nouveau": e.Nouveau}
}

type SAVTicketCree struct {
	ChantierCode string
	TicketID     uint
	Titre        string
	Priorite     string
}

func (SAVTicketCree) Kind() Kind { return KindSAVTicketCree }

func (e SAVTicketCree) Text() string {
	return fmt.Sprintf("Nouveau ticket SAV sur %s : %s\nPriorité %s.", e.ChantierCode, e.Titre, e.Priorite)
}

func (e SAVTicketCree) Link() string { return fmt.Sprintf("/sav/%d", e.TicketID) }

func (e SAVTicketCree) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "ticketId": e.TicketID, "priorite": e.Priorite}
}

type SAVTicketAssigne struct {
	ChantierCode string
	TicketID     uint
	Titre        string
	AssignePar   string
}

func (SAVTicketAssigne) Kind() Kind { return KindSAVTicketAssigne }

func (e SAVTicketAssigne) Text() string {
	return fmt.Sprintf("Ticket SAV assigné : %s\nChantier %s, assigné par %s.", e.Titre, e.ChantierCode, e.AssignePar)
}

func (e SAVTicketAssigne) Link() string { return fmt.Sprintf("/sav/%d", e.TicketID) }

func (e SAVTicketAssigne) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "ticketId": e.TicketID}
}

type DocumentAjoute struct {
	ChantierCode string
	DocumentID   uint
	Nom          string
}

func (DocumentAjoute) Kind() Kind { return KindDocumentAjoute }

func (e DocumentAjoute) Text() string {
	return fmt.Sprintf("Document ajouté sur %s\n%s", e.ChantierCode, e.Nom)
}

func (e DocumentAjoute) Link() string { return "/chantiers/" + e.ChantierCode + "/documents" }

func (e DocumentAjoute) Metadata() map[string]any {
	return map[string]any{"chantierId": e.ChantierCode, "documentId": e.DocumentID}
}
