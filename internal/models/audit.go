package models

import "time"

// AuditLog records who changed what.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	EntityType string    `gorm:"size:50;index:idx_audit_entity" json:"entity_type"` // "EtatAvancement", "Commande", ...
	EntityID   uint      `gorm:"index:idx_audit_entity" json:"entity_id"`
	Action     string    `gorm:"size:30" json:"action"` // "create", "update", "finalize", "delete"
	Details    string    `gorm:"type:text" json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
