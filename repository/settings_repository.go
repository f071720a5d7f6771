package repository

import (
	"context"
	"errors"
	"fmt"

	"Resona/model"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// playerSettingsRecord is the persisted form of model.PlayerSettings.
type playerSettingsRecord struct {
	GuildID    uint64 `gorm:"primaryKey;column:guild_id"`
	Volume     int    `gorm:"column:volume"`
	RepeatMode string `gorm:"column:repeat_mode;size:16"`
}

func (playerSettingsRecord) TableName() string {
	return "music_player_settings"
}

// PlayerSettingsRecord exposes the schema for migration.
func PlayerSettingsRecord() interface{} {
	return &playerSettingsRecord{}
}

// SettingsRepository defines persisted access to per-guild player settings.
type SettingsRepository interface {
	Get(ctx context.Context, guildID snowflake.ID) (*model.PlayerSettings, error)
	Upsert(ctx context.Context, settings model.PlayerSettings) error
}

// gormSettingsRepository implements SettingsRepository on GORM/MySQL.
type gormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new gormSettingsRepository.
func NewGormSettingsRepository(db *gorm.DB) SettingsRepository {
	return &gormSettingsRepository{db: db}
}

// Get retrieves the settings for a guild. A guild without a record returns
// (nil, nil); callers apply defaults.
func (r *gormSettingsRepository) Get(ctx context.Context, guildID snowflake.ID) (*model.PlayerSettings, error) {
	var record playerSettingsRecord
	err := r.db.WithContext(ctx).First(&record, "guild_id = ?", uint64(guildID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load player settings for guild %s: %w", guildID, err)
	}

	mode, ok := model.ParseRepeatMode(record.RepeatMode)
	if !ok {
		mode = model.RepeatOff
	}
	return &model.PlayerSettings{
		GuildID:    snowflake.ID(record.GuildID),
		Volume:     record.Volume,
		RepeatMode: mode,
	}, nil
}

// Upsert inserts or updates the settings record for a guild.
func (r *gormSettingsRepository) Upsert(ctx context.Context, settings model.PlayerSettings) error {
	record := playerSettingsRecord{
		GuildID:    uint64(settings.GuildID),
		Volume:     settings.Volume,
		RepeatMode: string(settings.RepeatMode),
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"volume", "repeat_mode"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to upsert player settings for guild %s: %w", settings.GuildID, err)
	}
	return nil
}
