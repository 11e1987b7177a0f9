// Package notify fans domain events out to in-app notifications and email.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"slices"
	"sync/atomic"
	"time"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/mail"
	"github.com/diewo77/go-btp/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	InAppTTL     = 30 * 24 * time.Hour
	DefaultLimit = 20
	MaxLimit     = 100
	emailWorkers = 4
)

// Recipients selects who receives an event. When UserIDs and Roles are both empty the
// type's default roles apply.
type Recipients struct {
	UserIDs []uint
	Roles   []models.Role
	Exclude []uint
}

// Result counts what Notify did.
type Result struct {
	Recipients int
	InApp      int
	Emails     int
	EmailFails int
}

type Service struct {
	db      *gorm.DB
	mailer  mail.Mailer
	log     *logger.Logger
	baseURL string
	now     func() time.Time
}

func NewService(db *gorm.DB, mailer mail.Mailer, log *logger.Logger, baseURL string) *Service {
	return &Service{
		db:      db,
		mailer:  mailer,
		log:     log.With("service", "NotificationService"),
		baseURL: baseURL,
		now:     time.Now,
	}
}

// DefaultChannels is the channel policy for users without a stored preference.
func DefaultChannels(role models.Role) (email, inApp bool) {
	switch role {
	case models.RoleAdmin, models.RoleManager:
		return true, true
	case models.RoleUser:
		return false, true
	default:
		return false, false
	}
}

// Notify delivers ev. Unknown or inactive event codes are a no-op. Email failures are
// logged and counted, never returned.
func (s *Service) Notify(ctx context.Context, ev Event, to Recipients) (*Result, error) {
	res := &Result{}
	db := s.db.WithContext(ctx)

	var nt models.NotificationType
	err := db.Where("code = ?", string(ev.Kind())).First(&nt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !nt.Actif) {
		s.log.Warn("notification type unknown or inactive", "code", ev.Kind())
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load notification type: %w", err)
	}

	users, err := s.resolveRecipients(db, nt, to)
	if err != nil {
		return nil, err
	}
	res.Recipients = len(users)
	if len(users) == 0 {
		return res, nil
	}

	prefs, err := s.preferencesFor(db, nt.ID, users)
	if err != nil {
		return nil, err
	}

	content := Render(ev)
	meta := datatypes.JSONMap(ev.Metadata())
	now := s.now()

	var rows []models.Notification
	var emailTo []models.User
	for _, u := range users {
		email, inApp := DefaultChannels(u.Role)
		if p, ok := prefs[u.ID]; ok {
			email, inApp = p.Email, p.InApp
		}
		if inApp {
			rows = append(rows, models.Notification{
				UserID:             u.ID,
				NotificationTypeID: nt.ID,
				Titre:              content.Title,
				Message:            content.Body,
				Lien:               content.Link,
				Metadata:           meta,
				ExpiresAt:          now.Add(InAppTTL),
			})
		}
		if email && u.Email != "" {
			emailTo = append(emailTo, u)
		}
	}

	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			return nil, fmt.Errorf("insert notifications: %w", err)
		}
		res.InApp = len(rows)
	}

	if len(emailTo) > 0 {
		sent, failed := s.sendEmails(ctx, content, emailTo)
		res.Emails, res.EmailFails = sent, failed
	}
	return res, nil
}

// NotifyAsync runs Notify detached from the request and only logs failures.
func (s *Service) NotifyAsync(ev Event, to Recipients) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.Notify(ctx, ev, to); err != nil {
			s.log.Error("notification failed", "code", ev.Kind(), "error", err)
		}
	}()
}

func (s *Service) resolveRecipients(db *gorm.DB, nt models.NotificationType, to Recipients) ([]models.User, error) {
	ids, roles := to.UserIDs, to.Roles
	if len(ids) == 0 && len(roles) == 0 {
		for _, r := range nt.RolesParDefaut {
			roles = append(roles, models.Role(r))
		}
	}
	if len(ids) == 0 && len(roles) == 0 {
		return nil, nil
	}

	q := db.Model(&models.User{}).Where("active = ?", true)
	switch {
	case len(ids) > 0 && len(roles) > 0:
		q = q.Where(db.Where("id IN ?", ids).Or("role IN ?", roles))
	case len(ids) > 0:
		q = q.Where("id IN ?", ids)
	default:
		q = q.Where("role IN ?", roles)
	}
	if len(to.Exclude) > 0 {
		q = q.Where("id NOT IN ?", to.Exclude)
	}
	var users []models.User
	if err := q.Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}
	return users, nil
}

func (s *Service) preferencesFor(db *gorm.DB, typeID uint, users []models.User) (map[uint]models.NotificationPreference, error) {
	ids := make([]uint, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	var prefs []models.NotificationPreference
	if err := db.Where("notification_type_id = ? AND user_id IN ?", typeID, ids).Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	out := make(map[uint]models.NotificationPreference, len(prefs))
	for _, p := range prefs {
		out[p.UserID] = p
	}
	return out, nil
}

var emailTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html lang="fr"><body style="font-family:Helvetica,Arial,sans-serif;color:#222">
<h2 style="font-size:16px">{{.Title}}</h2>
{{with .Body}}<p style="white-space:pre-line">{{.}}</p>{{end}}
{{with .URL}}<p><a href="{{.}}" style="background:#1f6feb;color:#fff;padding:8px 14px;border-radius:4px;text-decoration:none">Ouvrir</a></p>{{end}}
<p style="font-size:11px;color:#888">Bonjour {{.Name}}, vous recevez ce message selon vos préférences de notification.</p>
</body></html>`))

func (s *Service) renderEmail(c Content, u models.User) (string, error) {
	url := ""
	if c.Link != "" {
		url = s.baseURL + c.Link
	}
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, map[string]string{
		"Title": c.Title, "Body": c.Body, "URL": url, "Name": u.FullName(),
	})
	return buf.String(), err
}

func (s *Service) sendEmails(ctx context.Context, c Content, users []models.User) (sent, failed int) {
	var okCount, failCount atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(emailWorkers)
	for _, u := range users {
		g.Go(func() error {
			body, err := s.renderEmail(c, u)
			if err == nil {
				err = s.mailer.Send(gctx, mail.Message{
					To:      []mail.Address{{Email: u.Email, Name: u.FullName()}},
					Subject: c.Title,
					HTML:    body,
					Text:    c.Title + "\n\n" + c.Body,
				})
			}
			if err != nil {
				failCount.Add(1)
				s.log.Warn("notification email failed", "user_id", u.ID, "error", err)
				return nil
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(okCount.Load()), int(failCount.Load())
}

// Page is one page of a user's notifications.
type Page struct {
	Items  []models.Notification `json:"items"`
	Total  int64                 `json:"total"`
	Unread int64                 `json:"unread"`
	Page   int                   `json:"page"`
	Limit  int                   `json:"limit"`
}

// List returns unexpired notifications newest first.
func (s *Service) List(ctx context.Context, userID uint, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	base := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND expires_at > ?", userID, s.now())

	out := &Page{Page: page, Limit: limit, Items: []models.Notification{}}
	if err := base.Session(&gorm.Session{}).Count(&out.Total).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("lu = ?", false).Count(&out.Unread).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&out.Items).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead marks one of the user's notifications read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"lu": true, "lu_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("notification_not_found")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND lu = ?", userID, false).
		Updates(map[string]any{"lu": true, "lu_at": s.now()})
	return res.RowsAffected, res.Error
}

// DeleteExpired removes notifications whose expiry is before now.
func (s *Service) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Notification{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("expired notifications purged", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Preference is the effective channel setting of a user for one active type.
type Preference struct {
	Code      string `json:"code"`
	Libelle   string `json:"libelle"`
	Categorie string `json:"categorie"`
	Email     bool   `json:"email"`
	InApp     bool   `json:"in_app"`
	Custom    bool   `json:"custom"`
}

// Preferences lists every active type with the user's stored or default channels.
func (s *Service) Preferences(ctx context.Context, userID uint) ([]Preference, error) {
	db := s.db.WithContext(ctx)
	var u models.User
	if err := db.First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("user_not_found")
		}
		return nil, err
	}
	var types []models.NotificationType
	if err := db.Where("actif = ?", true).Order("categorie, code").Find(&types).Error; err != nil {
		return nil, err
	}
	var stored []models.NotificationPreference
	if err := db.Where("user_id = ?", userID).Find(&stored).Error; err != nil {
		return nil, err
	}
	byType := make(map[uint]models.NotificationPreference, len(stored))
	for _, p := range stored {
		byType[p.NotificationTypeID] = p
	}

	out := make([]Preference, 0, len(types))
	for _, t := range types {
		email, inApp := DefaultChannels(u.Role)
		p, custom := byType[t.ID]
		if custom {
			email, inApp = p.Email, p.InApp
		}
		out = append(out, Preference{
			Code: t.Code, Libelle: t.Libelle, Categorie: t.Categorie,
			Email: email, InApp: inApp, Custom: custom,
		})
	}
	return out, nil
}

// SetPreference stores the user's channels for a type code.
func (s *Service) SetPreference(ctx context.Context, userID uint, code string, email, inApp bool) error {
	db := s.db.WithContext(ctx)
	var nt models.NotificationType
	if err := db.Where("code = ?", code).First(&nt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apierr.NotFound("notification_type_not_found")
		}
		return err
	}
	pref := models.NotificationPreference{UserID: userID, NotificationTypeID: nt.ID, Email: email, InApp: inApp}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "notification_type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "in_app", "updated_at"}),
	}).Create(&pref).Error
}

// KnownKind reports whether code names an event the application emits.
func KnownKind(code string) bool {
	return slices.Contains(Kinds, Kind(code))
}
