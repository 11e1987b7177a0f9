package models

// All returns every model in migration order.
func All() []any {
	return []any{
		&Permission{}, &Profile{}, &User{}, &CompanySettings{},
		&Chantier{}, &SousTraitant{},
		&Commande{}, &LigneCommande{},
		&EtatAvancement{}, &LigneEtatAvancement{}, &AvenantEtatAvancement{},
		&NotificationType{}, &NotificationPreference{}, &Notification{},
		&Document{}, &TicketSAV{}, &AuditLog{},
	}
}
