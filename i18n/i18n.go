// Package i18n holds the message catalog used for API error details.
package i18n

import (
	"context"
	"strings"
)

const DefaultLang = "fr"

type langKey struct{}

var catalog = map[string]map[string]string{
	"fr": {
		"required":                    "Requis",
		"invalid_email":               "Adresse email invalide",
		"must_be_positive":            "Doit être positif",
		"out_of_range":                "Hors limites",
		"too_long":                    "Trop long",
		"invalid_choice":              "Valeur non autorisée",
		"unauthorized":                "Authentification requise",
		"forbidden":                   "Accès refusé",
		"invalid_json":                "Corps de requête JSON invalide",
		"invalid_id":                  "Identifiant invalide",
		"validation_failed":           "Données invalides",
		"internal_error":              "Erreur interne",
		"chantier_not_found":          "Chantier introuvable",
		"soustraitant_not_found":      "Sous-traitant introuvable",
		"commande_not_found":          "Commande introuvable",
		"etat_not_found":              "État d'avancement introuvable",
		"ticket_not_found":            "Ticket SAV introuvable",
		"user_not_found":              "Utilisateur introuvable",
		"notification_not_found":      "Notification introuvable",
		"notification_type_not_found": "Type de notification introuvable",
		"previous_etat_not_finalized": "L'état d'avancement précédent doit être finalisé avant d'en créer un nouveau",
		"etat_finalized":              "Cet état d'avancement est finalisé et ne peut plus être modifié",
		"etat_not_deletable":          "Seul le dernier état d'avancement non finalisé peut être supprimé",
		"etat_conflict":               "Un autre état d'avancement a été créé simultanément",
		"commande_locked":             "Cette commande est verrouillée",
		"invalid_credentials":         "Identifiants incorrects",
		"invalid_pin":                 "Code PIN incorrect",
		"pdf_generation_failed":       "La génération du PDF a échoué",
		"mail_send_failed":            "L'envoi de l'email a échoué",
		"mail_not_configured":         "L'envoi d'emails n'est pas configuré",
		"profile_not_found":           "Profil introuvable",
		"profile_has_users":           "Ce profil est encore attribué à des utilisateurs",
		"system_profile":              "Les profils système ne peuvent pas être modifiés",
	},
	"en": {
		"required":                    "Required",
		"invalid_email":               "Invalid email address",
		"must_be_positive":            "Must be positive",
		"out_of_range":                "Out of range",
		"too_long":                    "Too long",
		"invalid_choice":              "Value not allowed",
		"unauthorized":                "Authentication required",
		"forbidden":                   "Access denied",
		"invalid_json":                "Invalid JSON body",
		"invalid_id":                  "Invalid identifier",
		"validation_failed":           "Invalid data",
		"internal_error":              "Internal error",
		"chantier_not_found":          "Worksite not found",
		"soustraitant_not_found":      "Subcontractor not found",
		"commande_not_found":          "Order not found",
		"etat_not_found":              "Progress statement not found",
		"ticket_not_found":            "After-sales ticket not found",
		"user_not_found":              "User not found",
		"notification_not_found":      "Notification not found",
		"notification_type_not_found": "Notification type not found",
		"previous_etat_not_finalized": "The previous progress statement must be finalized first",
		"etat_finalized":              "This progress statement is finalized and can no longer be edited",
		"etat_not_deletable":          "Only the latest unfinalized progress statement can be deleted",
		"etat_conflict":               "Another progress statement was created concurrently",
		"commande_locked":             "This order is locked",
		"invalid_credentials":         "Invalid credentials",
		"invalid_pin":                 "Invalid PIN",
		"pdf_generation_failed":       "PDF generation failed",
		"mail_send_failed":            "Email sending failed",
		"mail_not_configured":         "Email sending is not configured",
		"profile_not_found":           "Profile not found",
		"profile_has_users":           "This profile is still assigned to users",
		"system_profile":              "System profiles cannot be modified",
	},
}

// DetectLanguage picks "en" or "fr" from an Accept-Language header value.
func DetectLanguage(acceptLanguage string) string {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
		if tag == "" {
			continue
		}
		base := strings.SplitN(tag, "-", 2)[0]
		if _, ok := catalog[base]; ok {
			return base
		}
	}
	return DefaultLang
}

// T translates code into lang. Unknown languages use French, unknown codes return the code.
func T(lang, code string) string {
	if msgs, ok := catalog[lang]; ok {
		if m, ok := msgs[code]; ok {
			return m
		}
	}
	if m, ok := catalog[DefaultLang][code]; ok {
		return m
	}
	return code
}

func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, langKey{}, lang)
}

func LangFromContext(ctx context.Context) string {
	if l, ok := ctx.Value(langKey{}).(string); ok && l != "" {
		return l
	}
	return DefaultLang
}
