package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/logger"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/notify"
	"github.com/diewo77/go-btp/internal/pdf"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const mimePDF = "application/pdf"

// DocumentService renders statements and orders to PDF and stores files on disk.
type DocumentService struct {
	db     *gorm.DB
	raster pdf.Rasterizer
	dir    string
	notify Notifier
	log    *logger.Logger
}

func NewDocumentService(d *gorm.DB, raster pdf.Rasterizer, storageDir string, n Notifier, log *logger.Logger) *DocumentService {
	if n == nil {
		n = nopNotifier{}
	}
	return &DocumentService{
		db:     d,
		raster: raster,
		dir:    storageDir,
		notify: n,
		log:    log.With("service", "DocumentService"),
	}
}

// PDF is a rendered document ready to be served or attached.
type PDF struct {
	Filename string
	Content  []byte
}

// EtatPDF renders a progress statement.
func (s *DocumentService) EtatPDF(ctx context.Context, etatID uint) (*PDF, error) {
	tx := s.db.WithContext(ctx)
	var etat models.EtatAvancement
	err := preloadLedger(tx).First(&etat, etatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("etat_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load etat: %w", err)
	}

	data := pdf.EtatData{Etat: etat}
	if err := tx.First(&data.Chantier, etat.ChantierID).Error; err != nil {
		return nil, fmt.Errorf("load chantier: %w", err)
	}
	if etat.SousTraitantID != 0 {
		if data.SousTraitant, err = findSousTraitant(tx, etat.SousTraitantID); err != nil {
			return nil, err
		}
	}
	company, err := companySettings(ctx, s.db)
	if err != nil {
		return nil, err
	}

	html, err := pdf.EtatAvancementHTML(data, company)
	if err != nil {
		return nil, fmt.Errorf("etat template: %w", err)
	}
	content, err := s.rasterize(ctx, html)
	if err != nil {
		return nil, err
	}
	return &PDF{Filename: pdf.EtatFilename(data.Chantier.Code, etat.Numero), Content: content}, nil
}

// CommandePDF renders an order.
func (s *DocumentService) CommandePDF(ctx context.Context, commandeID uint) (*PDF, *models.Chantier, error) {
	tx := s.db.WithContext(ctx)
	var cmd models.Commande
	err := tx.Preload("Lignes", func(q *gorm.DB) *gorm.DB { return q.Order("ordre, id") }).First(&cmd, commandeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apierr.NotFound("commande_not_found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load commande: %w", err)
	}

	data := pdf.CommandeData{Commande: cmd}
	if err := tx.First(&data.Chantier, cmd.ChantierID).Error; err != nil {
		return nil, nil, fmt.Errorf("load chantier: %w", err)
	}
	if cmd.SousTraitantID != 0 {
		if data.SousTraitant, err = findSousTraitant(tx, cmd.SousTraitantID); err != nil {
			return nil, nil, err
		}
	}
	company, err := companySettings(ctx, s.db)
	if err != nil {
		return nil, nil, err
	}

	html, err := pdf.CommandeHTML(data, company)
	if err != nil {
		return nil, nil, fmt.Errorf("commande template: %w", err)
	}
	content, err := s.rasterize(ctx, html)
	if err != nil {
		return nil, nil, err
	}
	return &PDF{Filename: pdf.CommandeFilename(data.Chantier.Code, cmd.ID), Content: content}, &data.Chantier, nil
}

func (s *DocumentService) rasterize(ctx context.Context, html string) ([]byte, error) {
	content, err := s.raster.HTMLToPDF(ctx, html)
	if err != nil {
		return nil, apierr.Upstream("pdf_generation_failed", err)
	}
	return content, nil
}

// Store writes content under the storage directory and records it against its owner.
func (s *DocumentService) Store(ctx context.Context, owner string, ownerID uint, name, mimeType string, content []byte, userID uint) (*models.Document, error) {
	dir := filepath.Join(s.dir, strings.ToLower(owner))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+filepath.Ext(name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("write document: %w", err)
	}

	doc := models.Document{
		OwnerType:  owner,
		OwnerID:    ownerID,
		Type:       strings.TrimPrefix(filepath.Ext(name), "."),
		Name:       name,
		Path:       path,
		MimeType:   mimeType,
		Size:       int64(len(content)),
		UploadedBy: userID,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("record document: %w", err)
	}
	return &doc, nil
}

// ArchiveCommande renders an order, stores the PDF and announces the new document.
func (s *DocumentService) ArchiveCommande(ctx context.Context, commandeID, userID uint) (*models.Document, error) {
	out, chantier, err := s.CommandePDF(ctx, commandeID)
	if err != nil {
		return nil, err
	}
	doc, err := s.Store(ctx, models.DocumentOwnerCommande, commandeID, out.Filename, mimePDF, out.Content, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("commande pdf archived", "commande", commandeID, "document", doc.ID, "size", doc.Size)
	s.notify.NotifyAsync(notify.DocumentAjoute{
		ChantierCode: chantier.Code,
		DocumentID:   doc.ID,
		Nom:          doc.Name,
	}, notify.Recipients{Exclude: []uint{userID}})
	return doc, nil
}

// ListByOwner returns the documents attached to an entity, newest first.
func (s *DocumentService) ListByOwner(ctx context.Context, owner string, ownerID uint) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Where("owner_type = ? AND owner_id = ?", owner, ownerID).
		Order("id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
