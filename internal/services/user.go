package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(d *gorm.DB) *UserService {
	return &UserService{db: d}
}

// Authenticate checks email and password. Every failure reads as invalid_credentials.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Unauthorized("invalid_credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !u.Active || bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, apierr.Unauthorized("invalid_credentials")
	}
	return &u, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Preload("Profile.Permissions").First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound("user_not_found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}

// Active reports whether the session user still exists and may log in.
func (s *UserService) Active(ctx context.Context, id uint) bool {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ? AND active = ?", id, true).Count(&n).Error
	return err == nil && n > 0
}
