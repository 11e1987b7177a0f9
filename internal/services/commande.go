package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var hundred = decimal.NewFromInt(100)

// Archiver stores the PDF of a validated order.
type Archiver interface {
	ArchiveCommande(ctx context.Context, commandeID, userID uint) (*models.Document, error)
}

type CommandeService struct {
	db       *gorm.DB
	archiver Archiver
	notify   Notifier
	log      *logger.Logger

	// background runs best-effort work after the request has been answered.
	background func(func())
}

func NewCommandeService(d *gorm.DB, archiver Archiver, n Notifier, log *logger.Logger) *CommandeService {
	if n == nil {
		n = nopNotifier{}
	}
	return &CommandeService{
		db:         d,
		archiver:   archiver,
		notify:     n,
		log:        log.With("service", "CommandeService"),
		background: func(f func()) { go f() },
	}
}

// LigneInput is an order line as posted by the form. Numbers may be strings or JSON numbers.
type LigneInput struct {
	Article      string           `json:"article"`
	Description  string           `json:"description"`
	Type         models.LigneType `json:"type"`
	Unite        string           `json:"unite"`
	PrixUnitaire money.Input      `json:"prix_unitaire"`
	Quantite     money.Input      `json:"quantite"`
}

// SaveCommandeInput creates an order when ID is 0. Lignes nil keeps the current lines; an
// empty list removes them.
type SaveCommandeInput struct {
	ID              uint                  `json:"id"`
	ChantierID      uint                  `json:"chantier_id"`
	SousTraitantID  uint                  `json:"soustraitant_id"`
	Reference       string                `json:"reference"`
	Statut          models.CommandeStatut `json:"statut"`
	DateCommande    *time.Time            `json:"date_commande"`
	Notes           string                `json:"notes"`
	AfficherPrix    bool                  `json:"afficher_prix"`
	AutoLiquidation bool                  `json:"auto_liquidation"`
	TauxTVA         money.Input           `json:"taux_tva"`
	Lignes          []LigneInput          `json:"lignes"`
}

// BuildLignes converts posted lines, numbering them in order. Unreadable numbers become zero
// and section lines carry no amounts.
func BuildLignes(inputs []LigneInput) []models.LigneCommande {
	out := make([]models.LigneCommande, 0, len(inputs))
	for i, in := range inputs {
		l := models.LigneCommande{
			Ordre:       i + 1,
			Article:     in.Article,
			Description: in.Description,
			Type:        in.Type,
			Unite:       in.Unite,
		}
		if l.Type == "" {
			l.Type = models.LigneQP
		}
		if !l.Type.IsSection() {
			l.PrixUnitaire = in.PrixUnitaire.OrZero()
			l.Quantite = in.Quantite.OrZero()
			l.Total = l.PrixUnitaire.Mul(l.Quantite).Round(2)
		}
		out = append(out, l)
	}
	return out
}

// ComputeTotals returns subtotal, VAT and total for lines at rate percent.
// Section lines are ignored whatever amounts they carry.
func ComputeTotals(lignes []models.LigneCommande, rate decimal.Decimal) (sousTotal, tva, total decimal.Decimal) {
	for _, l := range lignes {
		if l.Type.IsSection() {
			continue
		}
		sousTotal = sousTotal.Add(l.PrixUnitaire.Mul(l.Quantite))
	}
	sousTotal = sousTotal.Round(2)
	tva = sousTotal.Mul(rate).Div(hundred).Round(2)
	total = sousTotal.Add(tva)
	return sousTotal, tva, total
}

// Save creates or updates an order, replaces its lines when given and refreshes the chantier
// budget. Becoming VALIDEE archives the order PDF and notifies, both best effort.
func (s *CommandeService) Save(ctx context.Context, in SaveCommandeInput, userID uint) (*models.Commande, error) {
	var (
		cmd       models.Commande
		chantier  models.Chantier
		validated bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&chantier, in.ChantierID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("chantier_not_found")
			}
			return fmt.Errorf("load chantier: %w", err)
		}
		if in.SousTraitantID != 0 {
			if _, err := findSousTraitant(tx, in.SousTraitantID); err != nil {
				return err
			}
		}

		previous := models.CommandeStatut("")
		if in.ID != 0 {
			err := tx.Preload("Lignes", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") }).First(&cmd, in.ID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierr.NotFound("commande_not_found")
			}
			if err != nil {
				return fmt.Errorf("load commande: %w", err)
			}
			if cmd.IsLocked() {
				return apierr.Validation("commande_locked")
			}
			previous = cmd.Statut
		} else {
			cmd.CreatedByID = userID
			cmd.Statut = models.CommandeBrouillon
		}

		if err := s.applyFields(ctx, tx, &cmd, in); err != nil {
			return err
		}

		lignes := cmd.Lignes
		if in.Lignes != nil {
			lignes = BuildLignes(in.Lignes)
		}
		cmd.SousTotal, cmd.TVA, cmd.Total = ComputeTotals(lignes, cmd.TauxTVA)

		if err := tx.Omit(clause.Associations).Save(&cmd).Error; err != nil {
			return fmt.Errorf("save commande: %w", err)
		}
		if in.Lignes != nil {
			if err := tx.Where("commande_id = ?", cmd.ID).Delete(&models.LigneCommande{}).Error; err != nil {
				return fmt.Errorf("delete lignes: %w", err)
			}
			for i := range lignes {
				lignes[i].ID = 0
				lignes[i].CommandeID = cmd.ID
			}
			if len(lignes) > 0 {
				if err := tx.Create(&lignes).Error; err != nil {
					return fmt.Errorf("insert lignes: %w", err)
				}
			}
		}
		cmd.Lignes = lignes

		budget, err := RefreshBudget(tx, chantier.ID)
		if err != nil {
			return err
		}
		chantier.Budget = budget

		validated = cmd.Statut == models.CommandeValidee && previous != models.CommandeValidee
		action := "update"
		if in.ID == 0 {
			action = "create"
		}
		return audit(tx, userID, models.DocumentOwnerCommande, cmd.ID, action, string(cmd.Statut))
	})
	if err != nil {
		return nil, err
	}

	if validated {
		s.afterValidation(cmd, chantier, userID)
	}
	return &cmd, nil
}

func (s *CommandeService) applyFields(ctx context.Context, tx *gorm.DB, cmd *models.Commande, in SaveCommandeInput) error {
	cmd.ChantierID = in.ChantierID
	cmd.SousTraitantID = in.SousTraitantID
	cmd.Reference = in.Reference
	cmd.Notes = in.Notes
	cmd.AfficherPrix = in.AfficherPrix
	cmd.AutoLiquidation = in.AutoLiquidation
	if in.Statut != "" {
		cmd.Statut = in.Statut
	}
	if in.DateCommande != nil {
		cmd.DateCommande = *in.DateCommande
	} else if cmd.DateCommande.IsZero() {
		cmd.DateCommande = time.Now()
	}

	switch {
	case cmd.AutoLiquidation:
		cmd.TauxTVA = decimal.Zero
	case in.TauxTVA.Set() && in.TauxTVA.String() != "":
		cmd.TauxTVA = in.TauxTVA.OrZero()
	case cmd.ID == 0:
		cs, err := companySettings(ctx, tx)
		if err != nil {
			return err
		}
		cmd.TauxTVA = cs.TauxTVADefaut
	}
	return nil
}

// RefreshBudget sets the chantier budget to the total of its validated and locked client
// orders and returns it.
func RefreshBudget(tx *gorm.DB, chantierID uint) (decimal.Decimal, error) {
	var totals []decimal.Decimal
	err := tx.Model(&models.Commande{}).
		Where("chantier_id = ? AND sous_traitant_id = 0 AND statut IN ?", chantierID,
			[]models.CommandeStatut{models.CommandeValidee, models.CommandeVerrouillee}).
		Pluck("total", &totals).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum commandes: %w", err)
	}
	budget := decimal.Sum(decimal.Zero, totals...)
	if err := tx.Model(&models.Chantier{}).Where("id = ?", chantierID).Update("budget", budget).Error; err != nil {
		return decimal.Zero, fmt.Errorf("update budget: %w", err)
	}
	return budget, nil
}

func (s *CommandeService) afterValidation(cmd models.Commande, chantier models.Chantier, userID uint) {
	s.notify.NotifyAsync(notify.CommandeValidee{
		ChantierCode: chantier.Code,
		CommandeID:   cmd.ID,
		Reference:    cmd.Reference,
		Total:        cmd.Total,
	}, notify.Recipients{Exclude: []uint{userID}})

	if s.archiver == nil {
		return
	}
	s.background(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.archiver.ArchiveCommande(ctx, cmd.ID, userID); err != nil {
			s.log.Error("commande pdf archiving failed", "commande", cmd.ID, "error", err)
		}
	})
}

func (s *CommandeService) Get(ctx context.Context, id uint) (*models.Commande, error) {
	var cmd models.Commande
	err := s.db.WithContext(ctx).
		Preload("Lignes", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") }).
		First(&cmd, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("commande_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load commande: %w", err)
	}
	return &cmd, nil
}

// ListByChantier returns the chantier's orders, newest first, without lines.
func (s *CommandeService) ListByChantier(ctx context.Context, chantierRef string) ([]models.Commande, error) {
	tx := s.db.WithContext(ctx)
	ch, err := findChantier(tx, chantierRef)
	if err != nil {
		return nil, err
	}
	var cmds []models.Commande
	if err := tx.Where("chantier_id = ?", ch.ID).Order("id DESC").Find(&cmds).Error; err != nil {
		return nil, fmt.Errorf("list commandes: %w", err)
	}
	return cmds, nil
}
