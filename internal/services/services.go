// Package services holds the business operations behind the HTTP handlers. Each service owns
// its transactions; handlers only decode, validate shape and map errors.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/notify"
	"gorm.io/gorm"
)

// Notifier is the part of notify.Service the domain services need.
type Notifier interface {
	NotifyAsync(ev notify.Event, to notify.Recipients)
}

type nopNotifier struct{}

func (nopNotifier) NotifyAsync(notify.Event, notify.Recipients) {}

// Scope addresses the progress statements of a chantier: the client ones when SousTraitantID
// is 0, a subcontractor's otherwise.
type Scope struct {
	Chantier       string // code (CH-2025-ABC123) or numeric id
	SousTraitantID uint
}

// findChantier resolves a chantier by code, falling back to the numeric id.
func findChantier(tx *gorm.DB, ref string) (*models.Chantier, error) {
	var c models.Chantier
	err := tx.Where("code = ?", ref).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if id, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
			err = tx.First(&c, uint(id)).Error
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("chantier_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load chantier: %w", err)
	}
	return &c, nil
}

func findSousTraitant(tx *gorm.DB, id uint) (*models.SousTraitant, error) {
	var st models.SousTraitant
	err := tx.First(&st, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("soustraitant_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load sous-traitant: %w", err)
	}
	return &st, nil
}

// resolveScope loads the chantier and, for a subcontractor scope, the sous-traitant.
func resolveScope(tx *gorm.DB, scope Scope) (*models.Chantier, *models.SousTraitant, error) {
	ch, err := findChantier(tx, scope.Chantier)
	if err != nil {
		return nil, nil, err
	}
	if scope.SousTraitantID == 0 {
		return ch, nil, nil
	}
	st, err := findSousTraitant(tx, scope.SousTraitantID)
	if err != nil {
		return nil, nil, err
	}
	return ch, st, nil
}

func audit(tx *gorm.DB, userID uint, entity string, entityID uint, action, details string) error {
	entry := models.AuditLog{
		UserID:     userID,
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		Details:    details,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit %s %s: %w", entity, action, err)
	}
	return nil
}

// companySettings returns the stored company, or a zero value before it has been set up.
func companySettings(ctx context.Context, db *gorm.DB) (models.CompanySettings, error) {
	var cs models.CompanySettings
	err := db.WithContext(ctx).Order("id").First(&cs).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return cs, fmt.Errorf("load company settings: %w", err)
	}
	return cs, nil
}

func userName(tx *gorm.DB, id uint) string {
	if id == 0 {
		return ""
	}
	var u models.User
	if err := tx.Select("id", "email", "nom", "prenom").First(&u, id).Error; err != nil {
		return ""
	}
	return u.FullName()
}
