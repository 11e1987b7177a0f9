package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChantierService struct {
	db     *gorm.DB
	notify Notifier
	log    *logger.Logger
	now    func() time.Time
}

func NewChantierService(d *gorm.DB, n Notifier, log *logger.Logger) *ChantierService {
	if n == nil {
		n = nopNotifier{}
	}
	return &ChantierService{db: d, notify: n, log: log.With("service", "ChantierService"), now: time.Now}
}

type CreateChantierInput struct {
	Nom         string     `json:"nom"`
	ClientNom   string     `json:"client_nom"`
	ClientEmail string     `json:"client_email"`
	Adresse     string     `json:"adresse"`
	DateDebut   *time.Time `json:"date_debut"`
	DateFin     *time.Time `json:"date_fin"`
}

// newCode returns CH-<year>-<6 uppercase hex chars>.
func newCode(year int) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return models.FormatChantierCode(year, suffix)
}

// Create stores a chantier under a freshly generated code.
func (s *ChantierService) Create(ctx context.Context, in CreateChantierInput, userID uint) (*models.Chantier, error) {
	c := models.Chantier{
		Nom:         strings.TrimSpace(in.Nom),
		ClientNom:   in.ClientNom,
		ClientEmail: in.ClientEmail,
		Adresse:     in.Adresse,
		Statut:      models.ChantierEnPreparation,
		DateDebut:   in.DateDebut,
		DateFin:     in.DateFin,
		UserID:      userID,
	}
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		c.ID = 0
		c.Code = newCode(s.now().Year())
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
			return audit(tx, userID, models.DocumentOwnerChantier, c.ID, "create", c.Code)
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create chantier: %w", err)
	}
	s.log.Info("chantier created", "code", c.Code, "user", userID)
	return &c, nil
}

// Get resolves a chantier by code or numeric id.
func (s *ChantierService) Get(ctx context.Context, ref string) (*models.Chantier, error) {
	return findChantier(s.db.WithContext(ctx), ref)
}

// List filters by statut when given, most recent first.
func (s *ChantierService) List(ctx context.Context, statut string) ([]models.Chantier, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if statut != "" {
		q = q.Where("statut = ?", statut)
	}
	var out []models.Chantier
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list chantiers: %w", err)
	}
	return out, nil
}

// UpdateStatut changes the lifecycle status and tells the managers.
func (s *ChantierService) UpdateStatut(ctx context.Context, ref string, statut models.ChantierStatut, userID uint) (*models.Chantier, error) {
	var (
		c      *models.Chantier
		ancien models.ChantierStatut
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if c, err = findChantier(tx, ref); err != nil {
			return err
		}
		ancien = c.Statut
		if ancien == statut {
			return nil
		}
		if err := tx.Model(c).Update("statut", statut).Error; err != nil {
			return fmt.Errorf("update statut: %w", err)
		}
		return audit(tx, userID, models.DocumentOwnerChantier, c.ID, "statut", string(ancien)+"->"+string(statut))
	})
	if err != nil {
		return nil, err
	}
	if ancien != statut {
		s.notify.NotifyAsync(notify.ChantierStatutChange{
			ChantierCode: c.Code,
			ChantierNom:  c.Nom,
			Ancien:       string(ancien),
			Nouveau:      string(statut),
		}, notify.Recipients{Roles: []models.Role{models.RoleManager}, Exclude: []uint{userID}})
	}
	return c, nil
}
