package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SousTraitantService struct {
	db *gorm.DB
}

func NewSousTraitantService(d *gorm.DB) *SousTraitantService {
	return &SousTraitantService{db: d}
}

type CreateSousTraitantInput struct {
	Nom       string `json:"nom"`
	Email     string `json:"email"`
	Contact   string `json:"contact"`
	Telephone string `json:"telephone"`
	SIRET     string `json:"siret"`
}

func (s *SousTraitantService) List(ctx context.Context) ([]models.SousTraitant, error) {
	var out []models.SousTraitant
	if err := s.db.WithContext(ctx).Order("nom").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list sous-traitants: %w", err)
	}
	return out, nil
}

func (s *SousTraitantService) Get(ctx context.Context, id uint) (*models.SousTraitant, error) {
	return findSousTraitant(s.db.WithContext(ctx), id)
}

func (s *SousTraitantService) Create(ctx context.Context, in CreateSousTraitantInput, userID uint) (*models.SousTraitant, error) {
	st := models.SousTraitant{
		Nom:       strings.TrimSpace(in.Nom),
		Email:     strings.TrimSpace(in.Email),
		Contact:   in.Contact,
		Telephone: in.Telephone,
		SIRET:     in.SIRET,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&st).Error; err != nil {
			return fmt.Errorf("create sous-traitant: %w", err)
		}
		return audit(tx, userID, "SousTraitant", st.ID, "create", st.Nom)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SetPIN stores a bcrypt hash of the portal PIN. An empty PIN revokes portal access.
func (s *SousTraitantService) SetPIN(ctx context.Context, id uint, pin string, userID uint) error {
	hash := ""
	if pin != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		hash = string(b)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st, err := findSousTraitant(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(st).Update("portal_pin", hash).Error; err != nil {
			return fmt.Errorf("update pin: %w", err)
		}
		return audit(tx, userID, "SousTraitant", st.ID, "pin", "")
	})
}

// VerifyPIN checks a portal login. Unknown subcontractors and those without a PIN fail the
// same way as a wrong PIN.
func (s *SousTraitantService) VerifyPIN(ctx context.Context, id uint, pin string) (*models.SousTraitant, error) {
	st, err := findSousTraitant(s.db.WithContext(ctx), id)
	if apierr.Is(err, "soustraitant_not_found") {
		return nil, apierr.Unauthorized("invalid_pin")
	}
	if err != nil {
		return nil, err
	}
	if !st.HasPortalAccess() || bcrypt.CompareHashAndPassword([]byte(st.PortalPIN), []byte(pin)) != nil {
		return nil, apierr.Unauthorized("invalid_pin")
	}
	return st, nil
}
