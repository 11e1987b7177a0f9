package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChantier_GetUserID(t *testing.T) {
	c := &Chantier{UserID: 42}
	if got := c.GetUserID(); got != 42 {
		t.Errorf("GetUserID() = %d, want 42", got)
	}
}

func TestFormatChantierCode(t *testing.T) {
	if got := FormatChantierCode(2025, "ABC123"); got != "CH-2025-ABC123" {
		t.Errorf("FormatChantierCode() = %q", got)
	}
}

func TestLigneType_IsSection(t *testing.T) {
	tests := []struct {
		typ  LigneType
		want bool
	}{
		{LigneTitre, true},
		{LigneSousTitre, true},
		{LigneQP, false},
		{LigneQF, false},
		{LigneForfait, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.IsSection(); got != tt.want {
				t.Errorf("IsSection() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandeStatut_CountsInBudget(t *testing.T) {
	tests := []struct {
		statut CommandeStatut
		want   bool
	}{
		{CommandeBrouillon, false},
		{CommandeValidee, true},
		{CommandeVerrouillee, true},
		{CommandeAnnulee, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.statut), func(t *testing.T) {
			if got := tt.statut.CountsInBudget(); got != tt.want {
				t.Errorf("CountsInBudget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAvancement_SetActuelle(t *testing.T) {
	a := Avancement{
		PrixUnitaire:       d("12.50"),
		QuantitePrecedente: d("4"),
		MontantPrecedent:   d("50"),
	}
	a.SetActuelle(d("2.5"))

	if !a.MontantActuel.Equal(d("31.25")) {
		t.Errorf("MontantActuel = %s, want 31.25", a.MontantActuel)
	}
	if !a.QuantiteTotale.Equal(d("6.5")) {
		t.Errorf("QuantiteTotale = %s, want 6.5", a.QuantiteTotale)
	}
	if !a.MontantTotal.Equal(d("81.25")) {
		t.Errorf("MontantTotal = %s, want 81.25", a.MontantTotal)
	}
}

func TestAvancement_CarryForward(t *testing.T) {
	a := Avancement{
		Article:            "A1",
		PrixUnitaire:       d("10"),
		Quantite:           d("8"),
		QuantitePrecedente: d("1"),
		QuantiteActuelle:   d("2"),
		QuantiteTotale:     d("3"),
		MontantPrecedent:   d("10"),
		MontantActuel:      d("20"),
		MontantTotal:       d("30"),
	}
	next := a.CarryForward()

	if !next.QuantitePrecedente.Equal(a.QuantiteTotale) || !next.MontantPrecedent.Equal(a.MontantTotal) {
		t.Errorf("previous = (%s, %s), want cumulative (%s, %s)",
			next.QuantitePrecedente, next.MontantPrecedent, a.QuantiteTotale, a.MontantTotal)
	}
	if !next.QuantiteActuelle.IsZero() || !next.MontantActuel.IsZero() {
		t.Errorf("current = (%s, %s), want zero", next.QuantiteActuelle, next.MontantActuel)
	}
	if !next.QuantiteTotale.Equal(d("3")) || !next.MontantTotal.Equal(d("30")) {
		t.Errorf("cumulative changed: (%s, %s)", next.QuantiteTotale, next.MontantTotal)
	}
	if next.Article != "A1" || !next.PrixUnitaire.Equal(d("10")) {
		t.Errorf("descriptive fields not copied: %+v", next)
	}
}

func TestAvancement_Percent(t *testing.T) {
	a := Avancement{Quantite: d("8"), QuantiteTotale: d("2")}
	if got := a.Percent(); !got.Equal(d("25")) {
		t.Errorf("Percent() = %s, want 25", got)
	}
	empty := Avancement{}
	if got := empty.Percent(); !got.IsZero() {
		t.Errorf("Percent() on empty = %s, want 0", got)
	}
}

func TestEtatAvancement_Totaux(t *testing.T) {
	e := &EtatAvancement{
		Lignes: []LigneEtatAvancement{
			{Avancement: Avancement{MontantPrecedent: d("10"), MontantActuel: d("5"), MontantTotal: d("15")}},
			{Avancement: Avancement{MontantPrecedent: d("0"), MontantActuel: d("7.5"), MontantTotal: d("7.5")}},
		},
		Avenants: []AvenantEtatAvancement{
			{Avancement: Avancement{MontantPrecedent: d("2"), MontantActuel: d("1"), MontantTotal: d("3")}},
		},
	}
	prec, act, tot := e.Totaux()
	if !prec.Equal(d("12")) || !act.Equal(d("13.5")) || !tot.Equal(d("25.5")) {
		t.Errorf("Totaux() = (%s, %s, %s), want (12, 13.5, 25.5)", prec, act, tot)
	}
}

func TestUser_FullName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"both", User{Prenom: "Marie", Nom: "Curie", Email: "m@x.fr"}, "Marie Curie"},
		{"nom only", User{Nom: "Curie", Email: "m@x.fr"}, "Curie"},
		{"fallback email", User{Email: "m@x.fr"}, "m@x.fr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompanySettings_AdresseComplete(t *testing.T) {
	c := &CompanySettings{Adresse: "1 rue du Port", CodePostal: "13002", Ville: "Marseille"}
	if got := c.AdresseComplete(); got != "1 rue du Port\n13002 Marseille" {
		t.Errorf("AdresseComplete() = %q", got)
	}
	if got := (&CompanySettings{}).AdresseComplete(); got != "" {
		t.Errorf("AdresseComplete() on empty = %q", got)
	}
}
