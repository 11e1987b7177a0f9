package main

import (
	"net/http"
	"time"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/internal/config"
	"github.com/diewo77/go-btp/internal/handlers"
	"github.com/diewo77/go-btp/internal/lock"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/mail"
	"github.com/diewo77/go-btp/internal/middleware"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/diewo77/go-btp/internal/pdf"
	"github.com/diewo77/go-btp/internal/policy"
	"github.com/diewo77/go-btp/internal/services"
	"gorm.io/gorm"
)

const profileCacheTTL = 5 * time.Minute

// Deps are the collaborators built by main. Nil fields get a local default.
type Deps struct {
	DB         *gorm.DB
	Config     *config.Config
	Log        *logger.Logger
	Mailer     mail.Mailer
	Rasterizer pdf.Rasterizer
	Locker     lock.Locker
	Notify     *notify.Service
}

// App is the HTTP API.
type App struct {
	mux     *http.ServeMux
	handler http.Handler
	signer  *auth.Signer
	gate    *policy.AuthGate
	users   *services.UserService
	notify  *notify.Service
}

func NewApp(d Deps) *App {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Config == nil {
		d.Config = config.Load()
	}
	if d.Mailer == nil {
		d.Mailer = mail.New(d.Config.Mail, d.Log)
	}
	if d.Rasterizer == nil {
		d.Rasterizer = pdf.NewRasterizer(d.Config.PDF, d.Log)
	}
	if d.Notify == nil {
		d.Notify = notify.NewService(d.DB, d.Mailer, d.Log, d.Config.App.BaseURL)
	}

	a := &App{
		mux:    http.NewServeMux(),
		signer: auth.NewSigner(d.Config.App.SessionSecret),
		gate:   policy.NewAuthGate(d.DB, profileCacheTTL),
		users:  services.NewUserService(d.DB),
		notify: d.Notify,
	}
	a.setupRoutes(d)

	var h http.Handler = a.mux
	h = a.signer.Middleware(h)
	h = middleware.Prefs(h)
	h = middleware.Recover(d.Log)(h)
	h = middleware.Logging(d.Log)(h)
	a.handler = middleware.RequestID(h)
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// protect requires a session and the resource:action permission.
func (a *App) protect(resource string, action gate.Action, h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.users.Active)(a.gate.RequirePermission(resource, action)(h))
}

func (a *App) admin(h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.users.Active)(a.gate.RequireAdmin()(h))
}

func (a *App) setupRoutes(d Deps) {
	log := d.Log
	docs := services.NewDocumentService(d.DB, d.Rasterizer, d.Config.App.StorageDir, d.Notify, log)
	chantiers := services.NewChantierService(d.DB, d.Notify, log)
	etats := services.NewEtatService(d.DB, d.Locker, d.Notify, log)
	commandes := services.NewCommandeService(d.DB, docs, d.Notify, log)
	soustraitants := services.NewSousTraitantService(d.DB)
	sav := services.NewSAVService(d.DB, d.Notify, log)
	from := mail.Address{Email: d.Config.Mail.FromEmail, Name: d.Config.Mail.FromName}
	envoi := services.NewEnvoiService(d.DB, docs, d.Mailer, from, log)

	ah := handlers.NewAuthHandler(a.users, a.signer, log)
	ch := handlers.NewChantierHandler(chantiers, a.gate)
	eh := handlers.NewEtatHandler(etats, docs, a.gate, log)
	cmh := handlers.NewCommandeHandler(commandes)
	sth := handlers.NewSousTraitantHandler(soustraitants)
	sh := handlers.NewSAVHandler(sav)
	nh := handlers.NewNotificationHandler(d.Notify, log)
	enh := handlers.NewEnvoiHandler(envoi)
	ph := handlers.NewPortalHandler(soustraitants, etats, a.signer, log)
	coh := handlers.NewCompanyHandler(d.DB)
	aph := handlers.NewAdminProfileHandler(d.DB, a.gate)
	auph := handlers.NewAdminUserProfileHandler(d.DB, a.gate)

	// Public
	a.mux.HandleFunc("GET /healthz", handlers.Health(d.DB))
	a.mux.HandleFunc("POST /api/auth/login", ah.Login)
	a.mux.HandleFunc("POST /api/auth/logout", ah.Logout)
	a.mux.Handle("GET /api/auth/me", auth.RequireAuth(a.users.Active)(http.HandlerFunc(ah.Me)))

	// Chantiers
	a.mux.Handle("GET /api/chantiers", a.protect(gate.ResourceChantier, gate.ActionList, ch.List))
	a.mux.Handle("POST /api/chantiers", a.protect(gate.ResourceChantier, gate.ActionCreate, ch.Create))
	a.mux.Handle("GET /api/chantiers/{chantierId}", a.protect(gate.ResourceChantier, gate.ActionView, ch.Get))
	a.mux.Handle("PATCH /api/chantiers/{chantierId}/statut", a.protect(gate.ResourceChantier, gate.ActionUpdate, ch.UpdateStatut))

	// États d'avancement, client scope then sous-traitant scope
	for _, base := range []string{
		"/api/chantiers/{chantierId}/etats-avancement",
		"/api/chantiers/{chantierId}/soustraitants/{soustraitantId}/etats-avancement",
	} {
		a.mux.Handle("GET "+base, a.protect(gate.ResourceEtat, gate.ActionList, eh.List))
		a.mux.Handle("POST "+base, a.protect(gate.ResourceEtat, gate.ActionCreate, eh.Create))
		a.mux.Handle("GET "+base+"/{etatId}", a.protect(gate.ResourceEtat, gate.ActionView, eh.Get))
		a.mux.Handle("PUT "+base+"/{etatId}", a.protect(gate.ResourceEtat, gate.ActionUpdate, eh.Update))
		a.mux.Handle("DELETE "+base+"/{etatId}", a.protect(gate.ResourceEtat, gate.ActionDelete, eh.Delete))
		a.mux.Handle("GET "+base+"/{etatId}/pdf", a.protect(gate.ResourceDocument, gate.ActionView, eh.PDF))
	}

	// Commandes
	a.mux.Handle("GET /api/chantiers/{chantierId}/commandes", a.protect(gate.ResourceCommande, gate.ActionList, cmh.ListByChantier))
	a.mux.Handle("POST /api/commandes", a.protect(gate.ResourceCommande, gate.ActionUpdate, cmh.Save))
	a.mux.Handle("GET /api/commandes/{id}", a.protect(gate.ResourceCommande, gate.ActionView, cmh.Get))

	// Sous-traitants
	a.mux.Handle("GET /api/soustraitants", a.protect(gate.ResourceSousTraitant, gate.ActionList, sth.List))
	a.mux.Handle("POST /api/soustraitants", a.protect(gate.ResourceSousTraitant, gate.ActionCreate, sth.Create))
	a.mux.Handle("PUT /api/soustraitants/{id}/pin", a.protect(gate.ResourceSousTraitant, gate.ActionUpdate, sth.SetPIN))

	// SAV
	a.mux.Handle("GET /api/chantiers/{chantierId}/sav", a.protect(gate.ResourceSAV, gate.ActionList, sh.List))
	a.mux.Handle("POST /api/chantiers/{chantierId}/sav", a.protect(gate.ResourceSAV, gate.ActionCreate, sh.Create))
	a.mux.Handle("PATCH /api/sav/{id}", a.protect(gate.ResourceSAV, gate.ActionUpdate, sh.Update))

	// Notifications
	a.mux.Handle("GET /api/notifications", a.protect(gate.ResourceNotification, gate.ActionList, nh.List))
	a.mux.Handle("POST /api/notifications/{id}/read", a.protect(gate.ResourceNotification, gate.ActionUpdate, nh.MarkRead))
	a.mux.Handle("POST /api/notifications/read-all", a.protect(gate.ResourceNotification, gate.ActionUpdate, nh.MarkAllRead))
	a.mux.Handle("GET /api/notifications/preferences", a.protect(gate.ResourceNotification, gate.ActionList, nh.Preferences))
	a.mux.Handle("PUT /api/notifications/preferences", a.protect(gate.ResourceNotification, gate.ActionUpdate, nh.SetPreferences))
	a.mux.Handle("POST /api/notifications/seed", a.admin(nh.Seed))

	// Email
	a.mux.Handle("POST /api/email/send-etat", a.protect(gate.ResourceEtat, gate.ActionSend, enh.SendEtat))

	// Portail sous-traitant
	a.mux.HandleFunc("POST /api/portail/{soustraitantId}/login", ph.Login)
	a.mux.Handle("GET /api/portail/{soustraitantId}/etats-avancement", a.gate.RequirePortal("soustraitantId")(http.HandlerFunc(ph.Etats)))

	// Administration
	a.mux.Handle("GET /api/company", auth.RequireAuth(a.users.Active)(http.HandlerFunc(coh.Get)))
	a.mux.Handle("PUT /api/company", a.admin(coh.Update))
	a.mux.Handle("GET /api/admin/profiles", a.admin(aph.List))
	a.mux.Handle("POST /api/admin/profiles", a.admin(aph.Create))
	a.mux.Handle("PUT /api/admin/profiles/{id}/permissions", a.admin(aph.SavePermissions))
	a.mux.Handle("DELETE /api/admin/profiles/{id}", a.admin(aph.Delete))
	a.mux.Handle("GET /api/admin/permissions", a.admin(aph.ListPermissions))
	a.mux.Handle("GET /api/admin/users", a.admin(auph.List))
	a.mux.Handle("PUT /api/admin/users/{id}/profile", a.admin(auph.AssignProfile))
}
