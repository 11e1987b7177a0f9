package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/db"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/mail"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []mail.Message
	failTo string
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo != "" && msg.To[0].Email == f.failTo {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func setup(t *testing.T) (*Service, *gorm.DB, *fakeMailer) {
	t.Helper()
	d, err := db.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSNRaw: fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	}, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(d, false, "", logger.Nop()))

	fm := &fakeMailer{}
	svc := NewService(d, fm, logger.Nop(), "https://btp.test")
	_, err = svc.SeedDefaults(context.Background())
	require.NoError(t, err)
	return svc, d, fm
}

func mkUser(t *testing.T, d *gorm.DB, email string, role models.Role) models.User {
	t.Helper()
	u := models.User{Email: email, Password: "x", Role: role, Active: true}
	require.NoError(t, d.Create(&u).Error)
	return u
}

func countNotifications(t *testing.T, d *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, d.Model(&models.Notification{}).Count(&n).Error)
	return n
}

var sampleEvent = EtatCree{ChantierCode: "CH-2025-ABC123", ChantierNom: "Villa", Numero: 1, CreePar: "Jean"}

func TestRenderSplitsTitleAndBody(t *testing.T) {
	c := Render(sampleEvent)
	assert.Equal(t, "État d'avancement n°1 créé sur CH-2025-ABC123", c.Title)
	assert.Contains(t, c.Body, "créé par Jean")
	assert.Equal(t, "/chantiers/CH-2025-ABC123/etats-avancement", c.Link)
}

func TestRenderCapsTitle(t *testing.T) {
	long := DocumentAjoute{ChantierCode: strings.Repeat("é", 150), Nom: "plan.pdf"}
	c := Render(long)
	assert.Equal(t, 100, len([]rune(c.Title)))
	assert.Equal(t, "plan.pdf", c.Body)
}

func TestEventsCoverCatalog(t *testing.T) {
	specs, err := DefaultCatalog()
	require.NoError(t, err)
	require.Empty(t, Validate(specs))
	codes := map[string]bool{}
	for _, s := range specs {
		codes[s.Code] = true
	}
	for _, k := range Kinds {
		assert.True(t, codes[string(k)], "catalog misses %s", k)
	}
}

func TestValidateCatalog(t *testing.T) {
	problems := Validate([]TypeSpec{
		{Code: "A", Libelle: "a"},
		{Code: "", Libelle: "b"},
		{Code: "A", Libelle: "c"},
		{Code: "D", Libelle: "d", Roles: []string{"CHEF"}},
	})
	assert.Len(t, problems, 3)
	assert.Contains(t, problems["types[3]"], "CHEF")
}

func TestRoleDefaults(t *testing.T) {
	svc, d, fm := setup(t)
	admin := mkUser(t, d, "admin@x.fr", models.RoleAdmin)
	user := mkUser(t, d, "user@x.fr", models.RoleUser)
	bot := mkUser(t, d, "bot@x.fr", models.RoleBot)

	res, err := svc.Notify(context.Background(), sampleEvent, Recipients{UserIDs: []uint{admin.ID, user.ID, bot.ID}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Recipients)
	assert.Equal(t, 2, res.InApp, "admin and user get in-app, bot nothing")
	assert.Equal(t, 1, res.Emails, "only admin gets email")
	assert.Equal(t, 1, fm.count())
	assert.Equal(t, "admin@x.fr", fm.sent[0].To[0].Email)
	assert.Contains(t, fm.sent[0].HTML, "https://btp.test/chantiers/CH-2025-ABC123/etats-avancement")

	var botRows int64
	d.Model(&models.Notification{}).Where("user_id = ?", bot.ID).Count(&botRows)
	assert.Zero(t, botRows)

	var n models.Notification
	require.NoError(t, d.Where("user_id = ?", user.ID).First(&n).Error)
	assert.WithinDuration(t, time.Now().Add(InAppTTL), n.ExpiresAt, time.Minute)
	assert.Equal(t, "CH-2025-ABC123", n.Metadata["chantierId"])
}

func TestDefaultRolesWhenNoRecipientGiven(t *testing.T) {
	svc, d, _ := setup(t)
	mkUser(t, d, "m@x.fr", models.RoleManager)
	mkUser(t, d, "u@x.fr", models.RoleUser)

	res, err := svc.Notify(context.Background(), SAVTicketCree{ChantierCode: "CH-1", TicketID: 3, Titre: "Fuite", Priorite: "HAUTE"}, Recipients{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Recipients, "SAV_TICKET_CREE defaults to MANAGER")
}

func TestExplicitUnionRolesMinusExclusions(t *testing.T) {
	svc, d, _ := setup(t)
	m1 := mkUser(t, d, "m1@x.fr", models.RoleManager)
	m2 := mkUser(t, d, "m2@x.fr", models.RoleManager)
	u := mkUser(t, d, "u@x.fr", models.RoleUser)

	res, err := svc.Notify(context.Background(), sampleEvent, Recipients{
		UserIDs: []uint{u.ID, m1.ID},
		Roles:   []models.Role{models.RoleManager},
		Exclude: []uint{m2.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Recipients)
}

func TestEmptyRecipientSetWritesNothing(t *testing.T) {
	svc, d, fm := setup(t)
	u := mkUser(t, d, "u@x.fr", models.RoleUser)

	// SAV_TICKET_ASSIGNE has no default roles
	res, err := svc.Notify(context.Background(), SAVTicketAssigne{TicketID: 1}, Recipients{})
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)

	res, err = svc.Notify(context.Background(), sampleEvent, Recipients{UserIDs: []uint{u.ID}, Exclude: []uint{u.ID}})
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)
	assert.Zero(t, countNotifications(t, d))
	assert.Zero(t, fm.count())
}

func TestUnknownOrInactiveTypeIsNoop(t *testing.T) {
	svc, d, fm := setup(t)
	m := mkUser(t, d, "m@x.fr", models.RoleManager)

	// DOCUMENT_AJOUTE ships inactive
	res, err := svc.Notify(context.Background(), DocumentAjoute{ChantierCode: "CH-1", Nom: "x"}, Recipients{UserIDs: []uint{m.ID}})
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)

	require.NoError(t, d.Where("code = ?", string(KindEtatCree)).Delete(&models.NotificationType{}).Error)
	res, err = svc.Notify(context.Background(), sampleEvent, Recipients{UserIDs: []uint{m.ID}})
	require.NoError(t, err)
	assert.Zero(t, res.Recipients)

	assert.Zero(t, countNotifications(t, d))
	assert.Zero(t, fm.count())
}

func TestPreferenceOverridesRoleDefault(t *testing.T) {
	svc, d, fm := setup(t)
	ctx := context.Background()
	m := mkUser(t, d, "m@x.fr", models.RoleManager)
	bot := mkUser(t, d, "bot@x.fr", models.RoleBot)

	require.NoError(t, svc.SetPreference(ctx, m.ID, string(KindEtatCree), false, false))
	require.NoError(t, svc.SetPreference(ctx, bot.ID, string(KindEtatCree), true, true))
	// upsert, not duplicate
	require.NoError(t, svc.SetPreference(ctx, bot.ID, string(KindEtatCree), false, true))

	res, err := svc.Notify(ctx, sampleEvent, Recipients{UserIDs: []uint{m.ID, bot.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.InApp)
	assert.Zero(t, res.Emails)
	assert.Zero(t, fm.count())

	prefs, err := svc.Preferences(ctx, bot.ID)
	require.NoError(t, err)
	for _, p := range prefs {
		if p.Code == string(KindEtatCree) {
			assert.True(t, p.Custom)
			assert.False(t, p.Email)
			assert.True(t, p.InApp)
		} else {
			assert.False(t, p.Custom)
			assert.False(t, p.InApp, "bot default")
		}
	}

	err = svc.SetPreference(ctx, m.ID, "NOPE", true, true)
	assert.True(t, apierr.Is(err, "notification_type_not_found"))
}

func TestEmailFailureDoesNotBlockOthers(t *testing.T) {
	svc, d, fm := setup(t)
	fm.failTo = "a@x.fr"
	a := mkUser(t, d, "a@x.fr", models.RoleAdmin)
	b := mkUser(t, d, "b@x.fr", models.RoleAdmin)

	res, err := svc.Notify(context.Background(), CommandeValidee{ChantierCode: "CH-1", CommandeID: 9, Total: decimal.NewFromInt(36)}, Recipients{UserIDs: []uint{a.ID, b.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Emails)
	assert.Equal(t, 1, res.EmailFails)
	assert.Equal(t, 2, res.InApp)
}

func TestListMarkReadAndPurge(t *testing.T) {
	svc, d, _ := setup(t)
	ctx := context.Background()
	u := mkUser(t, d, "u@x.fr", models.RoleUser)
	other := mkUser(t, d, "o@x.fr", models.RoleUser)

	for i := 1; i <= 3; i++ {
		_, err := svc.Notify(ctx, EtatCree{ChantierCode: "CH-1", Numero: i}, Recipients{UserIDs: []uint{u.ID}})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, u.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	assert.EqualValues(t, 3, page.Unread)
	require.Len(t, page.Items, 2)

	require.NoError(t, svc.MarkRead(ctx, u.ID, page.Items[0].ID))
	assert.True(t, apierr.Is(svc.MarkRead(ctx, other.ID, page.Items[1].ID), "notification_not_found"))

	page, err = svc.List(ctx, u.ID, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 2, page.Unread)

	n, err := svc.MarkAllRead(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	purged, err := svc.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)

	purged, err = svc.DeleteExpired(ctx, time.Now().Add(InAppTTL+time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 3, purged)
}

func TestSeedTypesUpserts(t *testing.T) {
	svc, d, _ := setup(t)
	ctx := context.Background()
	off := false
	n, err := svc.SeedTypes(ctx, []TypeSpec{
		{Code: string(KindEtatCree), Libelle: "Renommé", Actif: &off, Roles: []string{"ADMIN"}},
		{Code: "CUSTOM", Libelle: "Custom"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var nt models.NotificationType
	require.NoError(t, d.Where("code = ?", string(KindEtatCree)).First(&nt).Error)
	assert.Equal(t, "Renommé", nt.Libelle)
	assert.False(t, nt.Actif)

	var total int64
	d.Model(&models.NotificationType{}).Count(&total)
	assert.EqualValues(t, len(Kinds)+1, total)
	assert.False(t, KnownKind("CUSTOM"))
	assert.True(t, KnownKind(string(KindEtatCree)))
}
