package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps agent records in the agents table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The agents table must already be migrated.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, agent *models.Agent) error {
	if err := s.db.WithContext(ctx).Create(agent).Error; err != nil {
		return fmt.Errorf("presence: insert %s: %w", agent.ID, err)
	}
	return nil
}

func (s *GormStore) Touch(ctx context.Context, id string, seen time.Time, status *string) (bool, error) {
	updates := map[string]interface{}{"last_seen": seen}
	if status != nil {
		updates["status"] = *status
	}
	result := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("presence: touch %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	// MySQL reports matched-but-unchanged rows as unaffected, e.g. two
	// heartbeats inside the same DATETIME second.
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Agent{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("presence: touch %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Agent{}).Error; err != nil {
		return fmt.Errorf("presence: delete %s: %w", id, err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("presence: get %s: %w", id, err)
	}
	return &agent, nil
}

func (s *GormStore) All(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("presence: list: %w", err)
	}
	return agents, nil
}
