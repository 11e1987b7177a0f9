package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/diewo77/go-btp/internal/money"
	"github.com/diewo77/go-btp/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CompanyHandler edits the contractor details printed on documents.
type CompanyHandler struct {
	db *gorm.DB
}

func NewCompanyHandler(d *gorm.DB) *CompanyHandler {
	return &CompanyHandler{db: d}
}

func (h *CompanyHandler) current(r *http.Request) (models.CompanySettings, error) {
	var cs models.CompanySettings
	err := h.db.WithContext(r.Context()).Order("id").First(&cs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CompanySettings{TauxTVADefaut: decimal.NewFromInt(20)}, nil
	}
	return cs, err
}

// Get: GET /api/company
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	cs, err := h.current(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}

type companyRequest struct {
	RaisonSociale string      `json:"raison_sociale"`
	Email         string      `json:"email"`
	Telephone     string      `json:"telephone"`
	SiteWeb       string      `json:"site_web"`
	Adresse       string      `json:"adresse"`
	CodePostal    string      `json:"code_postal"`
	Ville         string      `json:"ville"`
	SIRET         string      `json:"siret"`
	TVAIntra      string      `json:"tva_intra"`
	RCS           string      `json:"rcs"`
	IBAN          string      `json:"iban"`
	LogoURL       string      `json:"logo_url"`
	TauxTVADefaut money.Input `json:"taux_tva_defaut"`
}

// Update: PUT /api/company
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}
	v := validation.Violations{}
	validation.Required("raison_sociale", req.RaisonSociale, v)
	if req.Email != "" {
		validation.Email("email", req.Email, v)
	}
	var rate decimal.Decimal
	if req.TauxTVADefaut.Set() {
		var err error
		if rate, err = req.TauxTVADefaut.Parse(); err != nil {
			v["taux_tva_defaut"] = "out_of_range"
		} else {
			validation.Range("taux_tva_defaut", rate, decimal.Zero, decimal.NewFromInt(100), v)
		}
	}
	if !v.Empty() {
		invalid(w, r, v)
		return
	}

	cs, err := h.current(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	cs.RaisonSociale = strings.TrimSpace(req.RaisonSociale)
	cs.Email = req.Email
	cs.Telephone = req.Telephone
	cs.SiteWeb = req.SiteWeb
	cs.Adresse = req.Adresse
	cs.CodePostal = req.CodePostal
	cs.Ville = req.Ville
	cs.SIRET = req.SIRET
	cs.TVAIntra = req.TVAIntra
	cs.RCS = req.RCS
	cs.IBAN = strings.ReplaceAll(req.IBAN, " ", "")
	cs.LogoURL = req.LogoURL
	if req.TauxTVADefaut.Set() {
		cs.TauxTVADefaut = rate
	}
	if err := h.db.WithContext(r.Context()).Save(&cs).Error; err != nil {
		httpx.Error(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cs)
}
