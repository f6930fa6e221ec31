package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/alderburg/Teste-sub007/internal/models"
)

// GormStore keeps sessions in the application database.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store on db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

func (s *GormStore) Create(ctx context.Context, sess *models.Session) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, s.now()).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &sess, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *GormStore) RecordFailedAttempt(ctx context.Context, sess *models.Session) (int, error) {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND expires_at > ?", sess.ID, s.now()).
			Update("failed_attempts", gorm.Expr("failed_attempts + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return tx.Model(&models.Session{}).Where("id = ?", sess.ID).Pluck("failed_attempts", &attempts).Error
	})
	if errors.Is(err, ErrSessionNotFound) {
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt: %w", err)
	}
	return attempts, nil
}

func (s *GormStore) DeleteForUser(ctx context.Context, userID string) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
