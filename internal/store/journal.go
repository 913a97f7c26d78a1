package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/a3tai/facturx-bridge/internal/convert"
)

// ConversionLog writes the conversion journal
type ConversionLog struct {
	db *gorm.DB
}

// NewConversionLog creates a journal on db
func NewConversionLog(db *gorm.DB) *ConversionLog {
	return &ConversionLog{db: db}
}

// Record appends entry to the journal
func (l *ConversionLog) Record(ctx context.Context, entry convert.JournalEntry) error {
	return l.db.WithContext(ctx).Create(&ConversionLogEntry{
		FileID:     entry.FileID,
		Subject:    entry.Subject,
		Path:       entry.Path,
		Profile:    entry.Profile,
		Stage:      string(entry.Stage),
		FailedAt:   string(entry.FailedAt),
		Kind:       string(entry.Kind),
		Message:    entry.Message,
		DurationMS: entry.Duration.Milliseconds(),
	}).Error
}

// ForFile returns the journal of one upload, oldest first
func (l *ConversionLog) ForFile(ctx context.Context, fileID string) ([]ConversionLogEntry, error) {
	var entries []ConversionLogEntry
	err := l.db.WithContext(ctx).Where("file_id = ?", fileID).Order("id ASC").Find(&entries).Error
	return entries, err
}
