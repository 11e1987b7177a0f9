package services

import (
	"context"
	"testing"
	"time"

	"github.com/diewo77/go-btp/internal/lock"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type etatFixture struct {
	d        *gorm.DB
	rec      *recorder
	etats    *EtatService
	cmds     *CommandeService
	chantier models.Chantier
	user     models.User
	scope    Scope
}

func newEtatFixture(t *testing.T) *etatFixture {
	t.Helper()
	d := setupDB(t)
	rec := &recorder{}
	f := &etatFixture{
		d:        d,
		rec:      rec,
		etats:    NewEtatService(d, nil, rec, logger.Nop()),
		cmds:     NewCommandeService(d, nil, rec, logger.Nop()),
		chantier: mkChantier(t, d, "CH-2025-ABC123"),
		user:     mkUser(t, d, "conducteur@example.com", models.RoleManager),
	}
	f.scope = Scope{Chantier: f.chantier.Code}
	return f
}

// validatedOrder stores a validated client order: 10 x 5 and 2 x 100.
func (f *etatFixture) validatedOrder(t *testing.T, soustraitantID uint) *models.Commande {
	t.Helper()
	cmd, err := f.cmds.Save(context.Background(), SaveCommandeInput{
		ChantierID:     f.chantier.ID,
		SousTraitantID: soustraitantID,
		Statut:         models.CommandeValidee,
		TauxTVA:        money.NewInput("20"),
		Lignes: []LigneInput{
			{Description: "Maçonnerie", Unite: "m2", Quantite: money.NewInput("10"), PrixUnitaire: money.NewInput("5")},
			{Description: "Charpente", Unite: "u", Quantite: money.NewInput("2"), PrixUnitaire: money.NewInput("100")},
		},
	}, f.user.ID)
	require.NoError(t, err)
	return cmd
}

func (f *etatFixture) finalize(t *testing.T, etatID uint) {
	t.Helper()
	yes := true
	_, err := f.etats.Update(context.Background(), f.scope, etatID, UpdateEtatInput{EstFinalise: &yes}, f.user.ID)
	require.NoError(t, err)
}

func (f *etatFixture) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.d.Model(&models.EtatAvancement{}).Where("chantier_id = ?", f.chantier.ID).Count(&n).Error)
	return n
}

func TestFirstEtatSeededFromValidatedOrder(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)

	etat, err := f.etats.Create(context.Background(), f.scope, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, etat.Numero)
	assert.False(t, etat.EstFinalise)
	assert.Empty(t, etat.Commentaires)
	assert.Equal(t, f.user.ID, etat.CreatedByID)
	require.Len(t, etat.Lignes, 2)

	assertDec(t, "50", etat.Lignes[0].Total)
	assertDec(t, "50", etat.Lignes[0].MontantTotal)
	assertDec(t, "10", etat.Lignes[0].QuantiteTotale)
	assertDec(t, "200", etat.Lignes[1].Total)
	assertDec(t, "200", etat.Lignes[1].MontantTotal)
	for _, l := range etat.Lignes {
		assert.True(t, l.QuantitePrecedente.IsZero())
		assert.True(t, l.MontantPrecedent.IsZero())
		assert.True(t, l.QuantiteActuelle.IsZero())
		assert.True(t, l.MontantActuel.IsZero())
		assert.NotNil(t, l.LigneCommandeID)
	}

	stored, err := f.etats.Get(context.Background(), f.scope, etat.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Lignes, 2)
	assert.Equal(t, []notify.Kind{notify.KindCommandeValidee, notify.KindEtatCree}, f.rec.kinds())
}

func TestFirstEtatWithoutOrderHasNoLines(t *testing.T) {
	f := newEtatFixture(t)
	// a draft order does not seed anything
	_, err := f.cmds.Save(context.Background(), SaveCommandeInput{
		ChantierID: f.chantier.ID,
		Lignes:     []LigneInput{{Description: "Brouillon", Quantite: money.NewInput("1"), PrixUnitaire: money.NewInput("1")}},
	}, f.user.ID)
	require.NoError(t, err)

	etat, err := f.etats.Create(context.Background(), f.scope, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, etat.Numero)
	assert.Empty(t, etat.Lignes)
	assert.Empty(t, etat.Avenants)
}

func TestNextEtatCarriesCumulativeForward(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)
	ctx := context.Background()

	first, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	_, err = f.etats.Update(ctx, f.scope, first.ID, UpdateEtatInput{
		Lignes: []LigneUpdate{{ID: first.Lignes[0].ID, QuantiteActuelle: money.NewInput("4")}},
	}, f.user.ID)
	require.NoError(t, err)
	f.finalize(t, first.ID)

	first, err = f.etats.Get(ctx, f.scope, first.ID)
	require.NoError(t, err)
	assert.True(t, first.EstFinalise)
	assertDec(t, "20", first.Lignes[0].MontantTotal)

	second, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Numero)
	require.Len(t, second.Lignes, len(first.Lignes))
	for i, l := range second.Lignes {
		prev := first.Lignes[i]
		assert.True(t, prev.QuantiteTotale.Equal(l.QuantitePrecedente), "ligne %d quantity", i)
		assert.True(t, prev.MontantTotal.Equal(l.MontantPrecedent), "ligne %d amount", i)
		assert.True(t, l.QuantiteActuelle.IsZero())
		assert.True(t, l.MontantActuel.IsZero())
		assert.True(t, prev.MontantTotal.Equal(l.MontantTotal))
		assert.Equal(t, prev.LigneCommandeID, l.LigneCommandeID)
	}
	assert.Contains(t, f.rec.kinds(), notify.KindEtatFinalise)
}

func TestCreateRequiresFinalizedPrevious(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)
	ctx := context.Background()

	first, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	f.finalize(t, first.ID)
	_, err = f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)

	_, err = f.etats.Create(ctx, f.scope, f.user.ID)
	requireCode(t, err, 400, "previous_etat_not_finalized")
	assert.Equal(t, int64(2), f.count(t))
}

func TestNumbersAreGaplessPerScope(t *testing.T) {
	f := newEtatFixture(t)
	ctx := context.Background()
	st := mkSousTraitant(t, f.d, "Plomberie")
	stScope := Scope{Chantier: f.chantier.Code, SousTraitantID: st.ID}

	for i := 1; i <= 3; i++ {
		e, err := f.etats.Create(ctx, f.scope, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, i, e.Numero)
		f.finalize(t, e.ID)
	}
	e, err := f.etats.Create(ctx, stScope, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Numero)
	assert.Equal(t, st.ID, e.SousTraitantID)

	list, err := f.etats.List(ctx, f.scope)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{list[0].Numero, list[1].Numero, list[2].Numero})

	stList, err := f.etats.List(ctx, stScope)
	require.NoError(t, err)
	assert.Len(t, stList, 1)
}

func TestSousTraitantScopeSeedsFromItsOwnOrder(t *testing.T) {
	f := newEtatFixture(t)
	st := mkSousTraitant(t, f.d, "Charpentes")
	f.validatedOrder(t, st.ID)

	client, err := f.etats.Create(context.Background(), f.scope, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, client.Lignes)

	sub, err := f.etats.Create(context.Background(), Scope{Chantier: f.chantier.Code, SousTraitantID: st.ID}, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, sub.Lignes, 2)
}

func TestCreateUnknownScope(t *testing.T) {
	f := newEtatFixture(t)
	_, err := f.etats.Create(context.Background(), Scope{Chantier: "CH-2025-ZZZZZZ"}, f.user.ID)
	requireCode(t, err, 404, "chantier_not_found")

	_, err = f.etats.Create(context.Background(), Scope{Chantier: f.chantier.Code, SousTraitantID: 77}, f.user.ID)
	requireCode(t, err, 404, "soustraitant_not_found")
	assert.Equal(t, int64(0), f.count(t))
}

func TestUpdateFinalizedEtatFails(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)
	ctx := context.Background()
	etat, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	f.finalize(t, etat.ID)

	comment := "trop tard"
	_, err = f.etats.Update(ctx, f.scope, etat.ID, UpdateEtatInput{Commentaires: &comment}, f.user.ID)
	requireCode(t, err, 400, "etat_finalized")

	stored, err := f.etats.Get(ctx, f.scope, etat.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Commentaires)
}

func TestUpdateParsesQuantitiesLeniently(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)
	ctx := context.Background()
	etat, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)

	comment := "Semaine 12"
	got, err := f.etats.Update(ctx, f.scope, etat.ID, UpdateEtatInput{
		Commentaires: &comment,
		Lignes: []LigneUpdate{
			{ID: etat.Lignes[0].ID, QuantiteActuelle: money.NewInput("2,5")},
			{ID: etat.Lignes[1].ID, QuantiteActuelle: money.NewInput("n/a")},
		},
	}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Semaine 12", got.Commentaires)
	assertDec(t, "2.5", got.Lignes[0].QuantiteActuelle)
	assertDec(t, "12.5", got.Lignes[0].MontantActuel)
	assertDec(t, "12.5", got.Lignes[0].MontantTotal)
	assert.True(t, got.Lignes[1].QuantiteActuelle.IsZero())
	assert.True(t, got.Lignes[1].MontantTotal.IsZero())

	_, err = f.etats.Update(ctx, f.scope, etat.ID, UpdateEtatInput{
		Lignes: []LigneUpdate{{ID: 999999, QuantiteActuelle: money.NewInput("1")}},
	}, f.user.ID)
	requireCode(t, err, 400, "invalid_id")
}

func TestAvenantsUpsertAndCarryForward(t *testing.T) {
	f := newEtatFixture(t)
	ctx := context.Background()
	etat, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)

	got, err := f.etats.Update(ctx, f.scope, etat.ID, UpdateEtatInput{
		Avenants: []AvenantInput{{
			Description:      "Reprise enduit",
			PrixUnitaire:     money.NewInput("50"),
			Quantite:         money.NewInput("2"),
			QuantiteActuelle: money.NewInput("1"),
		}},
	}, f.user.ID)
	require.NoError(t, err)
	require.Len(t, got.Avenants, 1)
	av := got.Avenants[0]
	assert.Equal(t, 1, av.Ordre)
	assertDec(t, "100", av.Total)
	assertDec(t, "50", av.MontantActuel)
	assertDec(t, "50", av.MontantTotal)

	got, err = f.etats.Update(ctx, f.scope, etat.ID, UpdateEtatInput{
		Avenants: []AvenantInput{{ID: av.ID, QuantiteActuelle: money.NewInput("2")}},
	}, f.user.ID)
	require.NoError(t, err)
	assertDec(t, "100", got.Avenants[0].MontantTotal)
	f.finalize(t, etat.ID)

	next, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	require.Len(t, next.Avenants, 1)
	assertDec(t, "100", next.Avenants[0].MontantPrecedent)
	assert.True(t, next.Avenants[0].MontantActuel.IsZero())
	assertDec(t, "100", next.Avenants[0].MontantTotal)

	got, err = f.etats.Update(ctx, f.scope, next.ID, UpdateEtatInput{AvenantsSupprimes: []uint{next.Avenants[0].ID}}, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Avenants)
}

func TestDeleteOnlyLatestOpenEtat(t *testing.T) {
	f := newEtatFixture(t)
	f.validatedOrder(t, 0)
	ctx := context.Background()

	first, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	f.finalize(t, first.ID)
	second, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)

	err = f.etats.Delete(ctx, f.scope, first.ID, f.user.ID)
	requireCode(t, err, 400, "etat_not_deletable")
	assert.Equal(t, int64(2), f.count(t))

	require.NoError(t, f.etats.Delete(ctx, f.scope, second.ID, f.user.ID))
	assert.Equal(t, int64(1), f.count(t))
	var lignes int64
	require.NoError(t, f.d.Model(&models.LigneEtatAvancement{}).Where("etat_avancement_id = ?", second.ID).Count(&lignes).Error)
	assert.Zero(t, lignes)

	// the first one is now the latest, but finalized
	err = f.etats.Delete(ctx, f.scope, first.ID, f.user.ID)
	requireCode(t, err, 400, "etat_not_deletable")

	err = f.etats.Delete(ctx, f.scope, 12345, f.user.ID)
	requireCode(t, err, 404, "etat_not_found")

	// numbering resumes after the deleted one
	again, err := f.etats.Create(ctx, f.scope, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Numero)
}

func TestCreateSerializesConcurrentRequests(t *testing.T) {
	f := newEtatFixture(t)
	ctx := context.Background()

	const n = 4
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := f.etats.Create(ctx, f.scope, f.user.ID)
			errs <- err
		}()
	}
	var ok, refused int
	for i := 0; i < n; i++ {
		err := <-errs
		if err == nil {
			ok++
			continue
		}
		requireCode(t, err, 400, "previous_etat_not_finalized")
		refused++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, refused)
	assert.Equal(t, int64(1), f.count(t))
}

type passLocker struct{}

func (passLocker) Lock(context.Context, string) (lock.Unlock, error) { return func() {}, nil }

// stealNumero inserts a row holding the numero about to be written, inside the same
// transaction, for the first `times` statement inserts. It returns the insert attempt count.
func stealNumero(t *testing.T, d *gorm.DB, times int) *int {
	t.Helper()
	attempts := 0
	err := d.Callback().Create().Before("gorm:create").Register("test:steal_numero", func(tx *gorm.DB) {
		etat, ok := tx.Statement.Dest.(*models.EtatAvancement)
		if !ok {
			return
		}
		attempts++
		if attempts > times {
			return
		}
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO etat_avancements (chantier_id, sous_traitant_id, numero, date, est_finalise, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			etat.ChantierID, etat.SousTraitantID, etat.Numero, now, false, now, now)
	})
	require.NoError(t, err)
	return &attempts
}

func TestCreateRetriesOnceOnTakenNumero(t *testing.T) {
	f := newEtatFixture(t)
	f.etats = NewEtatService(f.d, passLocker{}, f.rec, logger.Nop())
	attempts := stealNumero(t, f.d, 1)

	etat, err := f.etats.Create(context.Background(), f.scope, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, etat.Numero)
	assert.Equal(t, 2, *attempts)
	assert.Equal(t, int64(1), f.count(t), "the conflicting row was rolled back with the first attempt")
}

func TestCreateReportsConflictAfterSecondCollision(t *testing.T) {
	f := newEtatFixture(t)
	f.etats = NewEtatService(f.d, passLocker{}, f.rec, logger.Nop())
	attempts := stealNumero(t, f.d, 2)

	_, err := f.etats.Create(context.Background(), f.scope, f.user.ID)
	requireCode(t, err, 409, "etat_conflict")
	assert.Equal(t, 2, *attempts)
	assert.Zero(t, f.count(t))
	assert.NotContains(t, f.rec.kinds(), notify.KindEtatCree)
}
