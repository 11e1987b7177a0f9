package i18n

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	cases := map[string]string{
		"en-US,en;q=0.9": "en",
		"EN-gb":          "en",
		"fr-FR,fr;q=0.8": "fr",
		"de-DE,en;q=0.5": "en",
		"de-DE":          "fr",
		"":               "fr",
	}
	for header, want := range cases {
		assert.Equal(t, want, DetectLanguage(header), header)
	}
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "Required", T("en", "required"))
	assert.Equal(t, "Requis", T("fr", "required"))
	assert.Equal(t, "__nope__", T("en", "__nope__"), "unknown codes fall back to the code")
	assert.Equal(t, T("fr", "required"), T("es", "required"), "unknown languages fall back to french")
}

func TestDomainCodesAreTranslated(t *testing.T) {
	for _, code := range []string{
		"previous_etat_not_finalized", "etat_finalized", "etat_not_deletable",
		"commande_locked", "chantier_not_found", "invalid_pin", "system_profile",
	} {
		for _, lang := range []string{"fr", "en"} {
			assert.NotEqual(t, code, T(lang, code), "%s/%s", lang, code)
		}
	}
}

func TestLangFromContext(t *testing.T) {
	assert.Equal(t, "fr", LangFromContext(context.Background()))
	ctx := WithLang(context.Background(), "en")
	assert.NotEqual(t, T("fr", "etat_finalized"), T(LangFromContext(ctx), "etat_finalized"))
}
