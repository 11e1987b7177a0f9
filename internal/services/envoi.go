package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/mail"
	"github.com/diewo77/go-btp/internal/models"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// SendEtatInput is the payload of POST /api/email/send-etat.
type SendEtatInput struct {
	EtatID  uint     `json:"etat_id"`
	To      []string `json:"to"`
	Cc      []string `json:"cc"`
	Bcc     []string `json:"bcc"`
	Subject string   `json:"subject"`
	Message string   `json:"message"`
}

// EnvoiService emails progress statements as PDF attachments.
type EnvoiService struct {
	db     *gorm.DB
	docs   *DocumentService
	mailer mail.Mailer
	from   mail.Address
	log    *logger.Logger
}

func NewEnvoiService(d *gorm.DB, docs *DocumentService, mailer mail.Mailer, from mail.Address, log *logger.Logger) *EnvoiService {
	return &EnvoiService{
		db:     d,
		docs:   docs,
		mailer: mailer,
		from:   from,
		log:    log.With("service", "EnvoiService"),
	}
}

var envoiTmpl = template.Must(template.New("envoi").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
{{range .Paragraphs}}<p>{{.}}</p>{{end}}
<p>Vous trouverez ci-joint l'état d'avancement n°{{.Numero}} du chantier {{.Chantier}}.</p>
{{if .Sender}}<p>{{.Sender}}<br>{{.Company}}</p>{{end}}
</body></html>`))

// SendEtat renders the statement and sends it in one email. A transport failure is returned:
// sending is the whole point of the call.
func (s *EnvoiService) SendEtat(ctx context.Context, in SendEtatInput, userID uint) error {
	var (
		out     *PDF
		etat    *models.EtatAvancement
		ch      *models.Chantier
		company models.CompanySettings
		sender  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out, err = s.docs.EtatPDF(gctx, in.EtatID)
		return err
	})
	g.Go(func() error {
		var err error
		etat, ch, _, err = locateEtat(s.db.WithContext(gctx), in.EtatID)
		return err
	})
	g.Go(func() error {
		var err error
		company, err = companySettings(gctx, s.db)
		return err
	})
	g.Go(func() error {
		sender = userName(s.db.WithContext(gctx), userID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = fmt.Sprintf("État d'avancement n°%d - %s", etat.Numero, ch.Nom)
	}
	var body strings.Builder
	err := envoiTmpl.Execute(&body, map[string]any{
		"Paragraphs": paragraphs(in.Message),
		"Numero":     etat.Numero,
		"Chantier":   ch.Nom,
		"Sender":     sender,
		"Company":    company.RaisonSociale,
	})
	if err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	from := s.from
	if company.RaisonSociale != "" {
		from.Name = company.RaisonSociale
	}
	msg := mail.Message{
		From:    from,
		To:      mail.Addresses(in.To...),
		Cc:      mail.Addresses(in.Cc...),
		Bcc:     mail.Addresses(in.Bcc...),
		Subject: subject,
		HTML:    body.String(),
		Attachments: []mail.Attachment{{
			Filename: out.Filename,
			MIMEType: mimePDF,
			Content:  out.Content,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return apierr.Upstream("mail_send_failed", err)
	}
	s.log.Info("etat sent", "etat", etat.ID, "to", len(msg.To), "cc", len(msg.Cc), "bcc", len(msg.Bcc))
	return audit(s.db.WithContext(ctx), userID, models.DocumentOwnerEtat, etat.ID, "send", strings.Join(in.To, ","))
}

func paragraphs(msg string) []string {
	var out []string
	for _, p := range strings.Split(msg, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
