package validation

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidators(t *testing.T) {
	v := make(Violations)
	Required("nom", "  ", v)
	RequiredID("chantier_id", 0, v)
	Positive("quantite", decimal.Zero, v)
	Range("taux_tva", decimal.NewFromInt(120), decimal.Zero, decimal.NewFromInt(100), v)
	MaxLen("titre", "abcdef", 3, v)
	Email("to", "not-an-email", v)
	OneOf("statut", "PERDU", []string{"EN_COURS", "TERMINE"}, v)

	want := map[string]string{
		"nom":         "required",
		"chantier_id": "required",
		"quantite":    "must_be_positive",
		"taux_tva":    "out_of_range",
		"titre":       "too_long",
		"to":          "invalid_email",
		"statut":      "invalid_choice",
	}
	for field, code := range want {
		if v[field] != code {
			t.Errorf("%s: got %q want %q", field, v[field], code)
		}
	}
}

func TestValidInputHasNoViolations(t *testing.T) {
	v := make(Violations)
	Required("nom", "Résidence Les Pins", v)
	Email("to", "conducteur@btp.fr", v)
	OneOf("statut", "EN_COURS", []string{"EN_COURS", "TERMINE"}, v)
	Positive("quantite", decimal.NewFromInt(2), v)
	if !v.Empty() {
		t.Fatalf("unexpected violations: %v", v)
	}
}
