// Package ledger is the append-only history of channel and direct messages.
package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/switchboard/internal/models"
)

// Read limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ChannelCount is a channel name with the number of messages sent to it.
type ChannelCount struct {
	Channel      string `json:"channel"`
	MessageCount int64  `json:"message_count"`
}

// Ledger stores envelopes in the envelopes table.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates a Ledger on db. The schema must already be migrated.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Record appends env, filling in the cursor, GUID, priority and timestamp
// when they are unset.
func (l *Ledger) Record(ctx context.Context, env *models.Envelope) error {
	if env.From == "" {
		return fmt.Errorf("ledger: from is required")
	}
	if strings.TrimSpace(env.Content) == "" {
		return fmt.Errorf("ledger: content is required")
	}
	if env.GUID == "" {
		env.GUID = uuid.NewString()
	}
	if env.Priority == "" {
		env.Priority = models.PriorityNormal
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = l.now().UTC()
	}
	env.ID = 0
	if err := l.db.WithContext(ctx).Create(env).Error; err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

// ChannelHistory returns the newest limit messages in channel, oldest first.
func (l *Ledger) ChannelHistory(ctx context.Context, channel string, limit int) ([]models.Envelope, error) {
	if channel == "" {
		return nil, fmt.Errorf("ledger: channel is required")
	}
	var envs []models.Envelope
	if err := l.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("id DESC").Limit(clampLimit(limit)).
		Find(&envs).Error; err != nil {
		return nil, fmt.Errorf("ledger: channel history %s: %w", channel, err)
	}
	slices.Reverse(envs)
	return envs, nil
}

// DMHistory returns the newest limit direct messages exchanged between a and
// b in either direction, oldest first.
func (l *Ledger) DMHistory(ctx context.Context, a, b string, limit int) ([]models.Envelope, error) {
	if a == "" || b == "" {
		return nil, fmt.Errorf("ledger: both agents are required")
	}
	var envs []models.Envelope
	if err := l.db.WithContext(ctx).
		Where("channel = ''").
		Where("(from_agent = ? AND to_agent = ?) OR (from_agent = ? AND to_agent = ?)", a, b, b, a).
		Order("id DESC").Limit(clampLimit(limit)).
		Find(&envs).Error; err != nil {
		return nil, fmt.Errorf("ledger: dm history %s/%s: %w", a, b, err)
	}
	slices.Reverse(envs)
	return envs, nil
}

// ChannelList returns every channel that has messages, sorted by name.
func (l *Ledger) ChannelList(ctx context.Context) ([]ChannelCount, error) {
	out := []ChannelCount{}
	if err := l.db.WithContext(ctx).Model(&models.Envelope{}).
		Select("channel, COUNT(*) AS message_count").
		Where("channel <> ''").
		Group("channel").
		Order("channel ASC").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("ledger: channel list: %w", err)
	}
	return out, nil
}

// MessagesSince returns up to limit envelopes recorded after cursor, in
// cursor order. Pass 0 to read from the beginning.
func (l *Ledger) MessagesSince(ctx context.Context, cursor uint64, limit int) ([]models.Envelope, error) {
	var envs []models.Envelope
	if err := l.db.WithContext(ctx).
		Where("id > ?", cursor).
		Order("id ASC").Limit(clampLimit(limit)).
		Find(&envs).Error; err != nil {
		return nil, fmt.Errorf("ledger: messages since %d: %w", cursor, err)
	}
	return envs, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
