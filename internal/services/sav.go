package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/notify"
	"gorm.io/gorm"
)

type SAVService struct {
	db     *gorm.DB
	notify Notifier
	log    *logger.Logger
	now    func() time.Time
}

func NewSAVService(d *gorm.DB, n Notifier, log *logger.Logger) *SAVService {
	if n == nil {
		n = nopNotifier{}
	}
	return &SAVService{db: d, notify: n, log: log.With("service", "SAVService"), now: time.Now}
}

type CreateTicketInput struct {
	Titre       string `json:"titre"`
	Description string `json:"description"`
	Priorite    string `json:"priorite"`
}

// UpdateTicketInput patches a ticket. Nil fields are left alone.
type UpdateTicketInput struct {
	Statut     *models.SAVStatut `json:"statut"`
	AssigneeID *uint             `json:"assignee_id"`
	Priorite   *string           `json:"priorite"`
}

func (s *SAVService) Create(ctx context.Context, chantierRef string, in CreateTicketInput, userID uint) (*models.TicketSAV, error) {
	var (
		t  models.TicketSAV
		ch *models.Chantier
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if ch, err = findChantier(tx, chantierRef); err != nil {
			return err
		}
		t = models.TicketSAV{
			ChantierID:  ch.ID,
			Titre:       strings.TrimSpace(in.Titre),
			Description: in.Description,
			Priorite:    in.Priorite,
			Statut:      models.SAVNouveau,
			CreatedByID: userID,
		}
		if t.Priorite == "" {
			t.Priorite = "NORMALE"
		}
		if err := tx.Create(&t).Error; err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		return audit(tx, userID, "TicketSAV", t.ID, "create", t.Titre)
	})
	if err != nil {
		return nil, err
	}

	s.notify.NotifyAsync(notify.SAVTicketCree{
		ChantierCode: ch.Code,
		TicketID:     t.ID,
		Titre:        t.Titre,
		Priorite:     t.Priorite,
	}, notify.Recipients{Roles: []models.Role{models.RoleManager}, Exclude: []uint{userID}})
	return &t, nil
}

func (s *SAVService) ListByChantier(ctx context.Context, chantierRef string) ([]models.TicketSAV, error) {
	tx := s.db.WithContext(ctx)
	ch, err := findChantier(tx, chantierRef)
	if err != nil {
		return nil, err
	}
	var out []models.TicketSAV
	if err := tx.Where("chantier_id = ?", ch.ID).Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return out, nil
}

// Update changes status, priority or assignee. Assigning someone new notifies them; reaching
// RESOLU stamps the resolution time.
func (s *SAVService) Update(ctx context.Context, id uint, in UpdateTicketInput, userID uint) (*models.TicketSAV, error) {
	var (
		t        models.TicketSAV
		ch       models.Chantier
		assigned bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&t, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("ticket_not_found")
		}
		if err != nil {
			return fmt.Errorf("load ticket: %w", err)
		}

		updates := map[string]any{}
		if in.Statut != nil && *in.Statut != t.Statut {
			updates["statut"] = *in.Statut
			if *in.Statut == models.SAVResolu {
				updates["resolu_at"] = s.now()
			}
		}
		if in.Priorite != nil {
			updates["priorite"] = *in.Priorite
		}
		if in.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *in.AssigneeID) {
			var n int64
			if err := tx.Model(&models.User{}).Where("id = ?", *in.AssigneeID).Count(&n).Error; err != nil {
				return fmt.Errorf("load assignee: %w", err)
			}
			if n == 0 {
				return apierr.NotFound("user_not_found")
			}
			updates["assignee_id"] = *in.AssigneeID
			assigned = true
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&t).Updates(updates).Error; err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		if err := tx.First(&t, t.ID).Error; err != nil {
			return fmt.Errorf("reload ticket: %w", err)
		}
		if err := tx.First(&ch, t.ChantierID).Error; err != nil {
			return fmt.Errorf("load chantier: %w", err)
		}
		return audit(tx, userID, "TicketSAV", t.ID, "update", fmt.Sprint(updates))
	})
	if err != nil {
		return nil, err
	}

	if assigned {
		s.notify.NotifyAsync(notify.SAVTicketAssigne{
			ChantierCode: ch.Code,
			TicketID:     t.ID,
			Titre:        t.Titre,
			AssignePar:   userName(s.db.WithContext(ctx), userID),
		}, notify.Recipients{UserIDs: []uint{*in.AssigneeID}})
	}
	return &t, nil
}
