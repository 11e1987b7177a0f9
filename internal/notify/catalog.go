package notify

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/diewo77/go-btp/internal/models"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// TypeSpec describes one catalog entry. Actif defaults to true when omitted.
type TypeSpec struct {
	Code        string   `yaml:"code" json:"code"`
	Libelle     string   `yaml:"libelle" json:"libelle"`
	Description string   `yaml:"description" json:"description"`
	Categorie   string   `yaml:"categorie" json:"categorie"`
	Actif       *bool    `yaml:"actif" json:"actif"`
	Roles       []string `yaml:"roles" json:"roles_par_defaut"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() ([]TypeSpec, error) {
	var specs []TypeSpec
	if err := yaml.Unmarshal(defaultCatalog, &specs); err != nil {
		return nil, fmt.Errorf("parse notification catalog: %w", err)
	}
	return specs, nil
}

// Validate returns a message per invalid entry, keyed by index.
func Validate(specs []TypeSpec) map[string]string {
	problems := map[string]string{}
	seen := map[string]bool{}
	for i, s := range specs {
		key := fmt.Sprintf("types[%d]", i)
		code := strings.TrimSpace(s.Code)
		switch {
		case code == "":
			problems[key] = "code requis"
		case strings.TrimSpace(s.Libelle) == "":
			problems[key] = "libelle requis"
		case seen[code]:
			problems[key] = "code en double: " + code
		}
		for _, r := range s.Roles {
			if !models.Role(r).Valid() {
				problems[key] = "rôle inconnu: " + r
			}
		}
		seen[code] = true
	}
	return problems
}

// SeedTypes upserts specs by code and returns how many rows were written.
func (s *Service) SeedTypes(ctx context.Context, specs []TypeSpec) (int, error) {
	if len(specs) == 0 {
		return 0, nil
	}
	rows := make([]models.NotificationType, 0, len(specs))
	for _, sp := range specs {
		actif := true
		if sp.Actif != nil {
			actif = *sp.Actif
		}
		roles := sp.Roles
		if roles == nil {
			roles = []string{}
		}
		rows = append(rows, models.NotificationType{
			Code:           strings.TrimSpace(sp.Code),
			Libelle:        sp.Libelle,
			Description:    sp.Description,
			Categorie:      sp.Categorie,
			Actif:          actif,
			RolesParDefaut: datatypes.JSONSlice[string](roles),
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"libelle", "description", "categorie", "actif", "roles_par_defaut", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("upsert notification types: %w", err)
	}
	return len(rows), nil
}

// SeedDefaults upserts the embedded catalog.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	specs, err := DefaultCatalog()
	if err != nil {
		return 0, err
	}
	return s.SeedTypes(ctx, specs)
}
