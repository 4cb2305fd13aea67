package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"traffic-monitor/backend/models"

	"gorm.io/gorm"
)

// ErrProtectedUser is returned when deleting the built-in admin account.
var ErrProtectedUser = errors.New("the admin account cannot be deleted")

// FindUserByName looks a user up by login name.
func (s *Store) FindUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// ListUsers returns every account ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateUser inserts a user whose password is already hashed.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// DeleteUser removes a user. The account named "admin" is protected.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.Name == "admin" {
		return ErrProtectedUser
	}
	if err := s.db.WithContext(ctx).Delete(&user).Error; err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// SetPassword replaces the stored hash of user id.
func (s *Store) SetPassword(ctx context.Context, id uint, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", hash)
	if res.Error != nil {
		return fmt.Errorf("failed to update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(ctx context.Context, id uint, at time.Time) error {
	at = at.UTC()
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", &at).Error; err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// EnsureAdmin creates the admin account with the given hash when it is
// missing. It reports whether a row was created.
func (s *Store) EnsureAdmin(ctx context.Context, hash string) (bool, error) {
	_, err := s.FindUserByName(ctx, "admin")
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	admin := &models.User{Name: "admin", Role: models.RoleAdmin, Password: hash}
	if err := s.CreateUser(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}
