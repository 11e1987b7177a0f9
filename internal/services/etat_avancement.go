package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/db"
	"github.com/diewo77/go-btp/internal/lock"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EtatService versions the progress statements of a chantier scope.
type EtatService struct {
	db     *gorm.DB
	locker lock.Locker
	notify Notifier
	log    *logger.Logger
	now    func() time.Time
}

// NewEtatService builds the service. locker serialises creation per scope; a nil locker falls
// back to an in-process keyed mutex.
func NewEtatService(d *gorm.DB, locker lock.Locker, n Notifier, log *logger.Logger) *EtatService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if n == nil {
		n = nopNotifier{}
	}
	return &EtatService{
		db:     d,
		locker: locker,
		notify: n,
		log:    log.With("service", "EtatService"),
		now:    time.Now,
	}
}

func scopeKey(chantierID, soustraitantID uint) string {
	return fmt.Sprintf("etat:%d:%d", chantierID, soustraitantID)
}

func advisoryKey(chantierID, soustraitantID uint) int64 {
	return int64(chantierID)<<32 | int64(soustraitantID)
}

func preloadLedger(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Lignes", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") }).
		Preload("Avenants", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") })
}

// Create opens the next statement of the scope. The first one is seeded from the scope's
// validated order, later ones carry the previous statement forward.
func (s *EtatService) Create(ctx context.Context, scope Scope, userID uint) (*models.EtatAvancement, error) {
	ch, st, err := resolveScope(s.db.WithContext(ctx), scope)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, scopeKey(ch.ID, scope.SousTraitantID))
	if err != nil {
		return nil, fmt.Errorf("lock etat scope: %w", err)
	}
	defer unlock()

	var etat *models.EtatAvancement
	for attempt := 1; attempt <= 2; attempt++ {
		etat, err = s.createOnce(ctx, ch.ID, scope.SousTraitantID, userID)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.log.Warn("etat numero taken, retrying", "chantier", ch.Code, "attempt", attempt)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apierr.New(http.StatusConflict, "etat_conflict", err)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("etat created", "chantier", ch.Code, "soustraitant", scope.SousTraitantID,
		"numero", etat.Numero, "lignes", len(etat.Lignes))

	ev := notify.EtatCree{
		ChantierCode: ch.Code,
		ChantierNom:  ch.Nom,
		Numero:       etat.Numero,
		CreePar:      userName(s.db.WithContext(ctx), userID),
	}
	if st != nil {
		ev.SousTraitant = st.Nom
	}
	s.notify.NotifyAsync(ev, notify.Recipients{Exclude: []uint{userID}})
	return etat, nil
}

func (s *EtatService) createOnce(ctx context.Context, chantierID, soustraitantID, userID uint) (*models.EtatAvancement, error) {
	var etat models.EtatAvancement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", advisoryKey(chantierID, soustraitantID)).Error; err != nil {
				return fmt.Errorf("advisory lock: %w", err)
			}
		}

		var last models.EtatAvancement
		err := preloadLedger(tx).
			Where("chantier_id = ? AND sous_traitant_id = ?", chantierID, soustraitantID).
			Order("numero DESC").
			First(&last).Error
		first := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !first {
			return fmt.Errorf("load last etat: %w", err)
		}
		if !first && !last.EstFinalise {
			return apierr.Validation("previous_etat_not_finalized")
		}

		etat = models.EtatAvancement{
			ChantierID:     chantierID,
			SousTraitantID: soustraitantID,
			Numero:         1,
			Date:           s.now(),
			CreatedByID:    userID,
		}
		if first {
			lignes, err := seedFromCommande(tx, chantierID, soustraitantID)
			if err != nil {
				return err
			}
			etat.Lignes = lignes
		} else {
			etat.Numero = last.Numero + 1
			etat.Lignes, etat.Avenants = carryForward(last)
		}

		if err := tx.Create(&etat).Error; err != nil {
			return err
		}
		return audit(tx, userID, models.DocumentOwnerEtat, etat.ID, "create", fmt.Sprintf("numero=%d", etat.Numero))
	})
	if err != nil {
		return nil, err
	}
	return &etat, nil
}

// seedFromCommande builds the first statement's lines from the scope's validated order.
// No validated order means no lines.
func seedFromCommande(tx *gorm.DB, chantierID, soustraitantID uint) ([]models.LigneEtatAvancement, error) {
	var cmd models.Commande
	err := tx.
		Preload("Lignes", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") }).
		Where("chantier_id = ? AND sous_traitant_id = ? AND statut IN ?", chantierID, soustraitantID,
			[]models.CommandeStatut{models.CommandeValidee, models.CommandeVerrouillee}).
		Order("id DESC").
		First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load validated commande: %w", err)
	}

	lignes := make([]models.LigneEtatAvancement, 0, len(cmd.Lignes))
	for _, lc := range cmd.Lignes {
		lignes = append(lignes, models.LigneEtatAvancement{
			LigneCommandeID: &lc.ID,
			Avancement:      OpeningLedger(lc),
		})
	}
	return lignes, nil
}

// OpeningLedger is the ledger of an order line on the first statement: nothing previous or
// current, cumulative equal to the ordered quantity and amount.
func OpeningLedger(lc models.LigneCommande) models.Avancement {
	a := models.Avancement{
		Ordre:       lc.Ordre,
		Article:     lc.Article,
		Description: lc.Description,
		Type:        lc.Type,
		Unite:       lc.Unite,
	}
	if lc.Type.IsSection() {
		return a
	}
	a.PrixUnitaire = lc.PrixUnitaire
	a.Quantite = lc.Quantite
	a.Total = lc.Quantite.Mul(lc.PrixUnitaire).Round(2)
	a.QuantiteTotale = lc.Quantite
	a.MontantTotal = a.Total
	return a
}

func carryForward(prev models.EtatAvancement) ([]models.LigneEtatAvancement, []models.AvenantEtatAvancement) {
	lignes := make([]models.LigneEtatAvancement, 0, len(prev.Lignes))
	for _, l := range prev.Lignes {
		lignes = append(lignes, models.LigneEtatAvancement{
			LigneCommandeID: l.LigneCommandeID,
			Avancement:      l.Avancement.CarryForward(),
		})
	}
	avenants := make([]models.AvenantEtatAvancement, 0, len(prev.Avenants))
	for _, a := range prev.Avenants {
		avenants = append(avenants, models.AvenantEtatAvancement{Avancement: a.Avancement.CarryForward()})
	}
	return lignes, avenants
}

// List returns the scope's statements, newest first, with their ledgers.
func (s *EtatService) List(ctx context.Context, scope Scope) ([]models.EtatAvancement, error) {
	tx := s.db.WithContext(ctx)
	ch, _, err := resolveScope(tx, scope)
	if err != nil {
		return nil, err
	}
	var etats []models.EtatAvancement
	err = preloadLedger(tx).
		Where("chantier_id = ? AND sous_traitant_id = ?", ch.ID, scope.SousTraitantID).
		Order("numero DESC").
		Find(&etats).Error
	if err != nil {
		return nil, fmt.Errorf("list etats: %w", err)
	}
	return etats, nil
}

// ListBySousTraitant backs the portal: every statement of the subcontractor across chantiers.
func (s *EtatService) ListBySousTraitant(ctx context.Context, soustraitantID uint) ([]models.EtatAvancement, error) {
	tx := s.db.WithContext(ctx)
	if _, err := findSousTraitant(tx, soustraitantID); err != nil {
		return nil, err
	}
	etats := []models.EtatAvancement{}
	err := preloadLedger(tx).
		Where("sous_traitant_id = ?", soustraitantID).
		Order("chantier_id, numero DESC").
		Find(&etats).Error
	if err != nil {
		return nil, fmt.Errorf("list etats: %w", err)
	}
	return etats, nil
}

func (s *EtatService) Get(ctx context.Context, scope Scope, etatID uint) (*models.EtatAvancement, error) {
	tx := s.db.WithContext(ctx)
	ch, _, err := resolveScope(tx, scope)
	if err != nil {
		return nil, err
	}
	return loadEtat(preloadLedger(tx), ch.ID, scope.SousTraitantID, etatID)
}

func loadEtat(tx *gorm.DB, chantierID, soustraitantID, etatID uint) (*models.EtatAvancement, error) {
	var etat models.EtatAvancement
	err := tx.Where("id = ? AND chantier_id = ? AND sous_traitant_id = ?", etatID, chantierID, soustraitantID).
		First(&etat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("etat_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load etat: %w", err)
	}
	return &etat, nil
}

// LigneUpdate sets the quantity done this period on an existing line.
type LigneUpdate struct {
	ID               uint        `json:"id"`
	QuantiteActuelle money.Input `json:"quantite_actuelle"`
}

// AvenantInput creates an avenant when ID is 0 and updates it otherwise.
type AvenantInput struct {
	ID               uint             `json:"id"`
	Article          string           `json:"article"`
	Description      string           `json:"description"`
	Type             models.LigneType `json:"type"`
	Unite            string           `json:"unite"`
	PrixUnitaire     money.Input      `json:"prix_unitaire"`
	Quantite         money.Input      `json:"quantite"`
	QuantiteActuelle money.Input      `json:"quantite_actuelle"`
}

type UpdateEtatInput struct {
	Commentaires      *string        `json:"commentaires"`
	EstFinalise       *bool          `json:"est_finalise"`
	Lignes            []LigneUpdate  `json:"lignes"`
	Avenants          []AvenantInput `json:"avenants"`
	AvenantsSupprimes []uint         `json:"avenants_supprimes"`
}

// Update edits an unfinalized statement. Quantities are read leniently: anything unreadable
// counts as zero.
func (s *EtatService) Update(ctx context.Context, scope Scope, etatID uint, in UpdateEtatInput, userID uint) (*models.EtatAvancement, error) {
	ch, st, err := resolveScope(s.db.WithContext(ctx), scope)
	if err != nil {
		return nil, err
	}

	var finalized bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		etat, err := loadEtat(preloadLedger(tx), ch.ID, scope.SousTraitantID, etatID)
		if err != nil {
			return err
		}
		if etat.EstFinalise {
			return apierr.Validation("etat_finalized")
		}

		if err := applyLignes(tx, etat, in.Lignes); err != nil {
			return err
		}
		if err := applyAvenants(tx, etat, in.Avenants, in.AvenantsSupprimes); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Commentaires != nil {
			updates["commentaires"] = *in.Commentaires
		}
		if in.EstFinalise != nil && *in.EstFinalise {
			updates["est_finalise"] = true
			finalized = true
		}
		if len(updates) > 0 {
			if err := tx.Model(etat).Updates(updates).Error; err != nil {
				return fmt.Errorf("update etat: %w", err)
			}
		}

		action := "update"
		if finalized {
			action = "finalize"
		}
		return audit(tx, userID, models.DocumentOwnerEtat, etat.ID, action, fmt.Sprintf("numero=%d", etat.Numero))
	})
	if err != nil {
		return nil, err
	}

	etat, err := s.Get(ctx, scope, etatID)
	if err != nil {
		return nil, err
	}
	if finalized {
		_, _, cumul := etat.Totaux()
		ev := notify.EtatFinalise{
			ChantierCode: ch.Code,
			ChantierNom:  ch.Nom,
			Numero:       etat.Numero,
			MontantCumul: cumul,
		}
		if st != nil {
			ev.SousTraitant = st.Nom
		}
		s.notify.NotifyAsync(ev, notify.Recipients{})
		s.log.Info("etat finalized", "chantier", ch.Code, "numero", etat.Numero)
	}
	return etat, nil
}

func applyLignes(tx *gorm.DB, etat *models.EtatAvancement, updates []LigneUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	byID := make(map[uint]*models.LigneEtatAvancement, len(etat.Lignes))
	for i := range etat.Lignes {
		byID[etat.Lignes[i].ID] = &etat.Lignes[i]
	}
	for _, u := range updates {
		l, ok := byID[u.ID]
		if !ok {
			return apierr.Validation("invalid_id")
		}
		if l.Type.IsSection() || !u.QuantiteActuelle.Set() {
			continue
		}
		l.SetActuelle(u.QuantiteActuelle.OrZero())
		if err := tx.Save(l).Error; err != nil {
			return fmt.Errorf("save ligne %d: %w", l.ID, err)
		}
	}
	return nil
}

func applyAvenants(tx *gorm.DB, etat *models.EtatAvancement, inputs []AvenantInput, deleted []uint) error {
	byID := make(map[uint]*models.AvenantEtatAvancement, len(etat.Avenants))
	maxOrdre := 0
	for i := range etat.Avenants {
		byID[etat.Avenants[i].ID] = &etat.Avenants[i]
		maxOrdre = max(maxOrdre, etat.Avenants[i].Ordre)
	}

	for _, in := range inputs {
		var a *models.AvenantEtatAvancement
		if in.ID == 0 {
			maxOrdre++
			a = &models.AvenantEtatAvancement{EtatAvancementID: etat.ID}
			a.Ordre = maxOrdre
			a.Type = models.LigneQP
		} else if a = byID[in.ID]; a == nil {
			return apierr.Validation("invalid_id")
		}
		applyAvenantFields(&a.Avancement, in)
		if err := tx.Save(a).Error; err != nil {
			return fmt.Errorf("save avenant: %w", err)
		}
	}

	if len(deleted) > 0 {
		err := tx.Where("etat_avancement_id = ? AND id IN ?", etat.ID, deleted).
			Delete(&models.AvenantEtatAvancement{}).Error
		if err != nil {
			return fmt.Errorf("delete avenants: %w", err)
		}
	}
	return nil
}

func applyAvenantFields(a *models.Avancement, in AvenantInput) {
	if in.Article != "" {
		a.Article = in.Article
	}
	if in.Description != "" {
		a.Description = in.Description
	}
	if in.Unite != "" {
		a.Unite = in.Unite
	}
	if in.Type != "" {
		a.Type = in.Type
	}
	if in.PrixUnitaire.Set() {
		a.PrixUnitaire = in.PrixUnitaire.OrZero()
	}
	if in.Quantite.Set() {
		a.Quantite = in.Quantite.OrZero()
	}
	if a.Type.IsSection() {
		a.PrixUnitaire, a.Quantite = decimal.Zero, decimal.Zero
	}
	a.Total = a.Quantite.Mul(a.PrixUnitaire).Round(2)

	q := a.QuantiteActuelle
	if in.QuantiteActuelle.Set() {
		q = in.QuantiteActuelle.OrZero()
	}
	if a.Type.IsSection() {
		q = decimal.Zero
	}
	a.SetActuelle(q)
}

// Delete removes a statement. Only the latest one of its scope may go, and only while it is
// still open.
func (s *EtatService) Delete(ctx context.Context, scope Scope, etatID, userID uint) error {
	ch, _, err := resolveScope(s.db.WithContext(ctx), scope)
	if err != nil {
		return err
	}
	unlock, err := s.locker.Lock(ctx, scopeKey(ch.ID, scope.SousTraitantID))
	if err != nil {
		return fmt.Errorf("lock etat scope: %w", err)
	}
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		etat, err := loadEtat(tx, ch.ID, scope.SousTraitantID, etatID)
		if err != nil {
			return err
		}
		var maxNumero int
		err = tx.Model(&models.EtatAvancement{}).
			Where("chantier_id = ? AND sous_traitant_id = ?", ch.ID, scope.SousTraitantID).
			Select("COALESCE(MAX(numero), 0)").
			Scan(&maxNumero).Error
		if err != nil {
			return fmt.Errorf("load last numero: %w", err)
		}
		if etat.EstFinalise || etat.Numero != maxNumero {
			return apierr.Validation("etat_not_deletable")
		}

		if err := tx.Where("etat_avancement_id = ?", etat.ID).Delete(&models.LigneEtatAvancement{}).Error; err != nil {
			return fmt.Errorf("delete lignes: %w", err)
		}
		if err := tx.Where("etat_avancement_id = ?", etat.ID).Delete(&models.AvenantEtatAvancement{}).Error; err != nil {
			return fmt.Errorf("delete avenants: %w", err)
		}
		if err := tx.Delete(etat).Error; err != nil {
			return fmt.Errorf("delete etat: %w", err)
		}
		s.log.Info("etat deleted", "chantier", ch.Code, "numero", etat.Numero)
		return audit(tx, userID, models.DocumentOwnerEtat, etat.ID, "delete", fmt.Sprintf("numero=%d", etat.Numero))
	})
}

// Locate finds a statement by id alone, with the chantier and subcontractor it belongs to.
func (s *EtatService) Locate(ctx context.Context, etatID uint) (*models.EtatAvancement, *models.Chantier, *models.SousTraitant, error) {
	return locateEtat(s.db.WithContext(ctx), etatID)
}

func locateEtat(tx *gorm.DB, etatID uint) (*models.EtatAvancement, *models.Chantier, *models.SousTraitant, error) {
	var etat models.EtatAvancement
	err := preloadLedger(tx).First(&etat, etatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil, apierr.NotFound("etat_not_found")
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load etat: %w", err)
	}
	var ch models.Chantier
	if err := tx.First(&ch, etat.ChantierID).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load chantier: %w", err)
	}
	var st *models.SousTraitant
	if etat.SousTraitantID != 0 {
		if st, err = findSousTraitant(tx, etat.SousTraitantID); err != nil {
			return nil, nil, nil, err
		}
	}
	return &etat, &ch, st, nil
}
