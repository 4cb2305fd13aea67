// Package store is the durable record store shared by the ingestion loop
// (writer) and the dashboard API (reader).
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

// TimeRange is a half-open interval [From, To). A zero To means unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Last returns the range covering the d before now.
func Last(d time.Duration, now time.Time) TimeRange {
	return TimeRange{From: now.Add(-d)}
}

func (r TimeRange) apply(q *gorm.DB) *gorm.DB {
	if !r.From.IsZero() {
		q = q.Where("timestamp >= ?", r.From.UTC())
	}
	if !r.To.IsZero() {
		q = q.Where("timestamp < ?", r.To.UTC())
	}
	return q
}

// Store wraps the gorm handle. Every write is its own transaction; SQLite
// serializes concurrent writers.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Options tunes Open.
type Options struct {
	WAL bool
}

// Open connects to the SQLite database at path, creating parent directories,
// and migrates the schema.
func Open(path string, opts Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// WAL lets dashboard readers proceed while the ingestion loop writes,
	// and busy_timeout absorbs short writer contention.
	if opts.WAL {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			system.Warn("Failed to enable WAL mode: %v", err)
		} else {
			system.Info("SQLite WAL mode enabled")
		}
	}
	if err := db.Exec("PRAGMA busy_timeout=5000;").Error; err != nil {
		system.Warn("Failed to set busy timeout: %v", err)
	}

	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle for startup seeding.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate brings the schema up to date.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(
		&models.User{},
		&models.Packet{},
		&models.Alert{},
		&models.NetworkInterface{},
		&models.TrafficStats{},
	); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendPacket persists one packet record.
func (s *Store) AppendPacket(ctx context.Context, p *models.Packet) error {
	p.Timestamp = p.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to append packet: %w", err)
	}
	return nil
}

// AppendAlert persists one alert record.
func (s *Store) AppendAlert(ctx context.Context, a *models.Alert) error {
	a.Timestamp = a.Timestamp.UTC()
	if a.Status == "" {
		a.Status = models.AlertStatusActive
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// ListRecentPackets returns up to limit packets, newest first.
func (s *Store) ListRecentPackets(ctx context.Context, limit int) ([]models.Packet, error) {
	var packets []models.Packet
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&packets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list packets: %w", err)
	}
	return packets, nil
}

// ListRecentAlerts returns up to limit alerts, newest first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// CountPackets returns the number of stored packets.
func (s *Store) CountPackets(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Packet{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count packets: %w", err)
	}
	return count, nil
}

// SumBytes returns the total packet length, optionally restricted to a range.
func (s *Store) SumBytes(ctx context.Context, r *TimeRange) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Packet{})
	if r != nil {
		q = r.apply(q)
	}

	var total int64
	if err := q.Select("COALESCE(SUM(length), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to sum bytes: %w", err)
	}
	return total, nil
}

// CountDistinctConnections counts unique (src_ip, dst_ip) pairs seen in r.
func (s *Store) CountDistinctConnections(ctx context.Context, r TimeRange) (int64, error) {
	q := r.apply(s.db.WithContext(ctx).Model(&models.Packet{}))

	var count int64
	if err := q.Select("COUNT(DISTINCT src_ip || '|' || dst_ip)").Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

// CountAlerts returns the number of stored alerts.
func (s *Store) CountAlerts(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Alert{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// ResolveAlert moves an active alert to resolved. Resolving an alert that is
// already resolved is a no-op returning it unchanged; an unknown id yields
// ErrNotFound.
func (s *Store) ResolveAlert(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now().UTC()
		res := tx.Model(&models.Alert{}).
			Where("id = ? AND status = ?", id, models.AlertStatusActive).
			Updates(map[string]interface{}{
				"status":      models.AlertStatusResolved,
				"resolved_at": now,
			})
		if res.Error != nil {
			return res.Error
		}

		if err := tx.First(&alert, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve alert %d: %w", id, err)
	}
	return &alert, nil
}

// BucketBytes sums packet bytes into n consecutive buckets of the given width
// starting at from, with one query grouped by stored timestamp. Labels are
// the bucket start as HH:MM in UTC.
func (s *Store) BucketBytes(ctx context.Context, from time.Time, width time.Duration, n int) ([]models.TrendPoint, error) {
	from = from.UTC()
	points := make([]models.TrendPoint, n)
	for i := range points {
		start := from.Add(time.Duration(i) * width)
		points[i] = models.TrendPoint{Start: start, Label: start.Format("15:04")}
	}
	if n <= 0 || width <= 0 {
		return points, nil
	}

	var rows []struct {
		Timestamp time.Time
		Bytes     int64
	}
	r := TimeRange{From: from, To: from.Add(time.Duration(n) * width)}
	err := r.apply(s.db.WithContext(ctx).Model(&models.Packet{})).
		Select("timestamp, SUM(length) AS bytes").
		Group("timestamp").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to bucket bytes: %w", err)
	}

	for _, row := range rows {
		i := int(row.Timestamp.Sub(from) / width)
		if i >= 0 && i < n {
			points[i].TotalBytes += row.Bytes
		}
	}
	return points, nil
}

// TrafficTrend returns the n one-minute buckets ending at now.
func (s *Store) TrafficTrend(ctx context.Context, now time.Time, n int) ([]models.TrendPoint, error) {
	return s.BucketBytes(ctx, now.Add(-time.Duration(n)*time.Minute), time.Minute, n)
}

// Summary gathers the dashboard headline numbers. Active connections cover
// the five minutes before now.
func (s *Store) Summary(ctx context.Context, now time.Time) (*models.TrafficSummary, error) {
	var (
		sum models.TrafficSummary
		err error
	)
	if sum.TotalPackets, err = s.CountPackets(ctx); err != nil {
		return nil, err
	}
	if sum.TotalBytes, err = s.SumBytes(ctx, nil); err != nil {
		return nil, err
	}
	if sum.ActiveConnections, err = s.CountDistinctConnections(ctx, Last(5*time.Minute, now)); err != nil {
		return nil, err
	}
	if sum.AlertCount, err = s.CountAlerts(ctx); err != nil {
		return nil, err
	}
	return &sum, nil
}

// TopSources ranks source addresses by bytes sent within r.
func (s *Store) TopSources(ctx context.Context, r TimeRange, limit int) ([]models.SourceVolume, error) {
	var rows []models.SourceVolume
	err := r.apply(s.db.WithContext(ctx).Model(&models.Packet{})).
		Select("src_ip AS source_ip, COUNT(*) AS packets, COALESCE(SUM(length), 0) AS bytes").
		Group("src_ip").
		Order("bytes DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to rank sources: %w", err)
	}
	return rows, nil
}

// PurgePacketsBefore deletes packets older than cutoff and reports how many
// rows went away.
func (s *Store) PurgePacketsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("timestamp < ?", cutoff.UTC()).Delete(&models.Packet{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge packets: %w", res.Error)
	}
	return res.RowsAffected, nil
}
