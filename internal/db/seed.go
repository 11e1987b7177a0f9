package db

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-btp/gate"
	"github.com/diewo77/go-btp/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seededResources = []string{
	gate.ResourceChantier,
	gate.ResourceCommande,
	gate.ResourceEtat,
	gate.ResourceSousTraitant,
	gate.ResourceSAV,
	gate.ResourceNotification,
	gate.ResourceDocument,
}

var seededActions = []gate.Action{
	gate.ActionList, gate.ActionView, gate.ActionCreate, gate.ActionUpdate,
	gate.ActionDelete, gate.ActionFinalize, gate.ActionSend, gate.ActionSeed,
}

type profileSeed struct {
	Name        string
	Description string
	Permissions []gate.Permission
}

var profileSeeds = []profileSeed{
	{
		Name:        "admin",
		Description: "Administrateur, tous les droits",
		Permissions: []gate.Permission{gate.PermissionSuperAdmin},
	},
	{
		Name:        "manager",
		Description: "Conduite de travaux et facturation",
		Permissions: []gate.Permission{
			"chantier:*", "commande:*", "etat:*", "soustraitant:*",
			"sav:*", "notification:list", "notification:update", "document:*",
		},
	},
	{
		Name:        "user",
		Description: "Saisie des avancements et du SAV",
		Permissions: []gate.Permission{
			"chantier:list", "chantier:view",
			"commande:list", "commande:view",
			"etat:list", "etat:view", "etat:create", "etat:update",
			"soustraitant:list", "soustraitant:view",
			"sav:list", "sav:view", "sav:create", "sav:update",
			"notification:list", "notification:update",
			"document:view",
		},
	},
	{
		Name:        "bot",
		Description: "Intégrations, lecture seule",
		Permissions: []gate.Permission{"chantier:list", "chantier:view", "etat:list", "etat:view"},
	},
}

// ProfileForRole names the system profile assigned to new users of a role.
func ProfileForRole(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return "admin"
	case models.RoleManager:
		return "manager"
	case models.RoleBot:
		return "bot"
	default:
		return "user"
	}
}

// SeedPermissions creates every resource:action pair plus the wildcards. Idempotent.
func SeedPermissions(d *gorm.DB) error {
	perms := []models.Permission{{ResourceType: "*", Action: "*", Description: "Full system access"}}
	for _, res := range seededResources {
		perms = append(perms, models.Permission{ResourceType: res, Action: "*", Description: "All " + res + " actions"})
		for _, act := range seededActions {
			perms = append(perms, models.Permission{ResourceType: res, Action: string(act)})
		}
	}
	for _, p := range perms {
		perm := p
		if err := d.Where("resource_type = ? AND action = ?", p.ResourceType, p.Action).
			FirstOrCreate(&perm).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedProfiles creates the system profiles and resets their permission sets.
func SeedProfiles(d *gorm.DB) error {
	if err := SeedPermissions(d); err != nil {
		return err
	}
	for _, p := range profileSeeds {
		profile := models.Profile{Name: p.Name, Description: p.Description, IsSystem: true}
		if err := d.Where("name = ?", p.Name).FirstOrCreate(&profile).Error; err != nil {
			return err
		}
		var perms []models.Permission
		for _, code := range p.Permissions {
			res, act := code.Parse()
			var perm models.Permission
			if err := d.Where("resource_type = ? AND action = ?", res, string(act)).First(&perm).Error; err == nil {
				perms = append(perms, perm)
			}
		}
		if err := d.Model(&profile).Association("Permissions").Replace(perms); err != nil {
			return err
		}
	}
	return nil
}

// SeedAdmin creates the admin account when it does not exist yet.
func SeedAdmin(d *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	var existing models.User
	err := d.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	var profile models.Profile
	if err := d.Where("name = ?", "admin").First(&profile).Error; err != nil {
		return fmt.Errorf("admin profile: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return d.Create(&models.User{
		Email:     email,
		Nom:       "Administrateur",
		Password:  string(hash),
		Role:      models.RoleAdmin,
		Active:    true,
		ProfileID: &profile.ID,
	}).Error
}

// SeedCompany inserts a placeholder company row so documents always have a header.
func SeedCompany(d *gorm.DB) error {
	var count int64
	if err := d.Model(&models.CompanySettings{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return d.Create(&models.CompanySettings{
		RaisonSociale: "Mon entreprise BTP",
		TauxTVADefaut: decimal.NewFromInt(20),
	}).Error
}

// Seed runs every seeder. Safe to call on each start.
func Seed(d *gorm.DB, adminEmail, adminPassword string) error {
	if err := SeedProfiles(d); err != nil {
		return fmt.Errorf("seed profiles: %w", err)
	}
	if err := SeedCompany(d); err != nil {
		return fmt.Errorf("seed company: %w", err)
	}
	if err := SeedAdmin(d, adminEmail, adminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	return nil
}
