package models

import "time"

const (
	DocumentOwnerCommande = "Commande"
	DocumentOwnerEtat     = "EtatAvancement"
	DocumentOwnerChantier = "Chantier"
)

// Document is a stored file attached to a domain entity.
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	OwnerType  string    `gorm:"size:50;index:idx_document_owner" json:"owner_type"` // "Commande", "EtatAvancement", ...
	OwnerID    uint      `gorm:"index:idx_document_owner" json:"owner_id"`
	Type       string    `gorm:"size:50" json:"type"` // "pdf", "photo", "contrat", ...
	Name       string    `gorm:"size:255" json:"name"`
	Path       string    `gorm:"size:500" json:"-"`
	MimeType   string    `gorm:"size:100" json:"mime_type"`
	Size       int64     `json:"size"`
	UploadedBy uint      `gorm:"index" json:"uploaded_by"`
}
