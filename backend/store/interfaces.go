package store

import (
	"context"
	"errors"
	"fmt"

	"traffic-monitor/backend/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertInterface inserts or refreshes a host interface keyed by name. The
// monitored flag is only set on insert so operator toggles survive restarts.
func (s *Store) UpsertInterface(ctx context.Context, iface *models.NetworkInterface) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "ip_address", "mac_address", "status"}),
	}).Create(iface).Error
	if err != nil {
		return fmt.Errorf("failed to upsert interface %s: %w", iface.Name, err)
	}
	return nil
}

// ListInterfaces returns the known interfaces ordered by name.
func (s *Store) ListInterfaces(ctx context.Context) ([]models.NetworkInterface, error) {
	var ifaces []models.NetworkInterface
	if err := s.db.WithContext(ctx).Order("name").Find(&ifaces).Error; err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	return ifaces, nil
}

// ToggleInterface flips is_monitored and returns the updated row.
func (s *Store) ToggleInterface(ctx context.Context, id uint) (*models.NetworkInterface, error) {
	var iface models.NetworkInterface
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&iface, id).Error; err != nil {
			return err
		}
		iface.IsMonitored = !iface.IsMonitored
		return tx.Model(&iface).Update("is_monitored", iface.IsMonitored).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle interface %d: %w", id, err)
	}
	return &iface, nil
}
