package services

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/diewo77/go-btp/internal/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTotalsIgnoresSections(t *testing.T) {
	lignes := []models.LigneCommande{
		// amounts on a title must not leak into totals
		{Type: models.LigneTitre, PrixUnitaire: dec("99"), Quantite: dec("99")},
		{Type: models.LigneQP, PrixUnitaire: dec("10"), Quantite: dec("3")},
		{Type: models.LigneSousTitre},
	}
	st, tva, total := ComputeTotals(lignes, dec("20"))
	assertDec(t, "30", st)
	assertDec(t, "6", tva)
	assertDec(t, "36", total)

	st2, tva2, total2 := ComputeTotals(lignes, dec("20"))
	assert.True(t, st.Equal(st2) && tva.Equal(tva2) && total.Equal(total2))
}

func TestComputeTotalsRounding(t *testing.T) {
	lignes := []models.LigneCommande{
		{Type: models.LigneQF, PrixUnitaire: dec("12.35"), Quantite: dec("3.333")},
	}
	st, tva, total := ComputeTotals(lignes, dec("5.5"))
	assertDec(t, "41.16", st)
	assertDec(t, "2.26", tva)
	assertDec(t, "43.42", total)
}

func TestBuildLignes(t *testing.T) {
	got := BuildLignes([]LigneInput{
		{Type: models.LigneTitre, Description: "Lot 1", PrixUnitaire: money.NewInput("10"), Quantite: money.NewInput("1")},
		{Description: "Dalle", PrixUnitaire: money.NewInput("1 234,50"), Quantite: money.NewInput("2")},
		{Description: "Illisible", PrixUnitaire: money.NewInput("abc"), Quantite: money.NewInput("2")},
	})
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Ordre, got[1].Ordre, got[2].Ordre})
	assert.True(t, got[0].Total.IsZero())
	assert.True(t, got[0].PrixUnitaire.IsZero())
	assert.Equal(t, models.LigneQP, got[1].Type)
	assertDec(t, "1234.5", got[1].PrixUnitaire)
	assertDec(t, "2469", got[1].Total)
	assert.True(t, got[2].Total.IsZero())
}

func TestSaveCommandeWithTitleLine(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-CMD001")
	svc := NewCommandeService(d, nil, nil, logger.Nop())

	cmd, err := svc.Save(context.Background(), SaveCommandeInput{
		ChantierID: c.ID,
		Lignes: []LigneInput{
			{Type: models.LigneTitre, Description: "Gros oeuvre"},
			{Type: models.LigneQP, Description: "Béton", Quantite: money.NewInput("3"), PrixUnitaire: money.NewInput("10")},
		},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, models.CommandeBrouillon, cmd.Statut)
	assertDec(t, "20", cmd.TauxTVA) // company default
	assertDec(t, "30", cmd.SousTotal)
	assertDec(t, "6", cmd.TVA)
	assertDec(t, "36", cmd.Total)

	stored, err := svc.Get(context.Background(), cmd.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lignes, 2)
	assert.True(t, stored.Lignes[0].Total.IsZero())
	assertDec(t, "30", stored.Lignes[1].Total)
}

func TestSaveCommandeReplacesLines(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-CMD002")
	svc := NewCommandeService(d, nil, nil, logger.Nop())
	ctx := context.Background()

	cmd, err := svc.Save(ctx, SaveCommandeInput{
		ChantierID: c.ID,
		TauxTVA:    money.NewInput("10"),
		Lignes:     []LigneInput{{Description: "A", Quantite: money.NewInput("1"), PrixUnitaire: money.NewInput("100")}},
	}, 1)
	require.NoError(t, err)

	// nil lines keep the current ones
	cmd, err = svc.Save(ctx, SaveCommandeInput{ID: cmd.ID, ChantierID: c.ID, Reference: "BC-42"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "BC-42", cmd.Reference)
	assertDec(t, "10", cmd.TauxTVA)
	assertDec(t, "110", cmd.Total)

	cmd, err = svc.Save(ctx, SaveCommandeInput{
		ID:         cmd.ID,
		ChantierID: c.ID,
		Lignes: []LigneInput{
			{Description: "B", Quantite: money.NewInput("2"), PrixUnitaire: money.NewInput("5")},
			{Description: "C", Quantite: money.NewInput("1"), PrixUnitaire: money.NewInput("5")},
		},
	}, 1)
	require.NoError(t, err)
	assertDec(t, "15", cmd.SousTotal)

	var n int64
	require.NoError(t, d.Model(&models.LigneCommande{}).Where("commande_id = ?", cmd.ID).Count(&n).Error)
	assert.Equal(t, int64(2), n)

	cmd, err = svc.Save(ctx, SaveCommandeInput{ID: cmd.ID, ChantierID: c.ID, Lignes: []LigneInput{}}, 1)
	require.NoError(t, err)
	assert.True(t, cmd.Total.IsZero())
	require.NoError(t, d.Model(&models.LigneCommande{}).Where("commande_id = ?", cmd.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestBudgetCountsValidatedClientOrders(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-BDG001")
	st := mkSousTraitant(t, d, "Terrassement")
	svc := NewCommandeService(d, nil, nil, logger.Nop())
	ctx := context.Background()
	line := []LigneInput{{Description: "Forfait", Type: models.LigneForfait, Quantite: money.NewInput("1"), PrixUnitaire: money.NewInput("100")}}

	_, err := svc.Save(ctx, SaveCommandeInput{ChantierID: c.ID, Statut: models.CommandeValidee, TauxTVA: money.NewInput("20"), Lignes: line}, 1)
	require.NoError(t, err)
	draft, err := svc.Save(ctx, SaveCommandeInput{ChantierID: c.ID, TauxTVA: money.NewInput("20"), Lignes: line}, 1)
	require.NoError(t, err)
	_, err = svc.Save(ctx, SaveCommandeInput{ChantierID: c.ID, SousTraitantID: st.ID, Statut: models.CommandeValidee, TauxTVA: money.NewInput("20"), Lignes: line}, 1)
	require.NoError(t, err)

	budget := func() models.Chantier {
		var got models.Chantier
		require.NoError(t, d.First(&got, c.ID).Error)
		return got
	}
	assertDec(t, "120", budget().Budget)

	_, err = svc.Save(ctx, SaveCommandeInput{ID: draft.ID, ChantierID: c.ID, Statut: models.CommandeVerrouillee}, 1)
	require.NoError(t, err)
	assertDec(t, "240", budget().Budget)

	_, err = svc.Save(ctx, SaveCommandeInput{ID: draft.ID, ChantierID: c.ID, Reference: "modif"}, 1)
	requireCode(t, err, 400, "commande_locked")
}

func TestSaveCommandeAutoLiquidation(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-AUT001")
	svc := NewCommandeService(d, nil, nil, logger.Nop())

	cmd, err := svc.Save(context.Background(), SaveCommandeInput{
		ChantierID:      c.ID,
		AutoLiquidation: true,
		TauxTVA:         money.NewInput("20"),
		Lignes:          []LigneInput{{Description: "Pose", Quantite: money.NewInput("1"), PrixUnitaire: money.NewInput("500")}},
	}, 1)
	require.NoError(t, err)
	assert.True(t, cmd.TVA.IsZero())
	assertDec(t, "500", cmd.Total)
}

func TestSaveCommandeUnknownReferences(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-UNK001")
	svc := NewCommandeService(d, nil, nil, logger.Nop())
	ctx := context.Background()

	_, err := svc.Save(ctx, SaveCommandeInput{ChantierID: 999}, 1)
	requireCode(t, err, 404, "chantier_not_found")
	_, err = svc.Save(ctx, SaveCommandeInput{ChantierID: c.ID, SousTraitantID: 999}, 1)
	requireCode(t, err, 404, "soustraitant_not_found")
	_, err = svc.Save(ctx, SaveCommandeInput{ID: 999, ChantierID: c.ID}, 1)
	requireCode(t, err, 404, "commande_not_found")
}

func TestValidationArchivesOrderPDF(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-PDF001")
	rec := &recorder{}
	docs := NewDocumentService(d, pdf.NewTextRasterizer(), t.TempDir(), rec, logger.Nop())
	svc := NewCommandeService(d, docs, rec, logger.Nop())
	svc.background = func(f func()) { f() }
	ctx := context.Background()

	cmd, err := svc.Save(ctx, SaveCommandeInput{
		ChantierID: c.ID,
		Lignes:     []LigneInput{{Description: "Charpente", Quantite: money.NewInput("2"), PrixUnitaire: money.NewInput("100")}},
	}, 1)
	require.NoError(t, err)
	assert.Empty(t, rec.kinds(), "draft orders are not archived")

	_, err = svc.Save(ctx, SaveCommandeInput{ID: cmd.ID, ChantierID: c.ID, Statut: models.CommandeValidee, AfficherPrix: true}, 1)
	require.NoError(t, err)

	list, err := docs.ListByOwner(ctx, models.DocumentOwnerCommande, cmd.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fmt.Sprintf("commande-CH-2025-PDF001-%d.pdf", cmd.ID), list[0].Name)
	assert.Equal(t, mimePDF, list[0].MimeType)
	b, err := os.ReadFile(list[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(b[:5]))
	assert.Equal(t, []notify.Kind{notify.KindCommandeValidee, notify.KindDocumentAjoute}, rec.kinds())

	// saving again while already validated does not archive twice
	_, err = svc.Save(ctx, SaveCommandeInput{ID: cmd.ID, ChantierID: c.ID, Statut: models.CommandeValidee, Notes: "ok"}, 1)
	require.NoError(t, err)
	list, err = docs.ListByOwner(ctx, models.DocumentOwnerCommande, cmd.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestListByChantier(t *testing.T) {
	d := setupDB(t)
	c := mkChantier(t, d, "CH-2025-LST001")
	other := mkChantier(t, d, "CH-2025-LST002")
	svc := NewCommandeService(d, nil, nil, logger.Nop())
	ctx := context.Background()
	for _, id := range []uint{c.ID, c.ID, other.ID} {
		_, err := svc.Save(ctx, SaveCommandeInput{ChantierID: id}, 1)
		require.NoError(t, err)
	}
	list, err := svc.ListByChantier(ctx, c.Code)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Greater(t, list[0].ID, list[1].ID)
}
