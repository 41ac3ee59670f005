// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/domain"
)

// CreateMessage inserts a new message row under the given session.
// Timestamp and the created/updated stamps are all set to the same UTC
// instant at write time.
func CreateMessage(db *gorm.DB, sessionID, content string) (*domain.Message, error) {
	now := time.Now().UTC()
	m := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Timestamp: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return m, db.Create(m).Error
}

// ListMessages returns a session's messages ordered deterministically
// (Timestamp ASC, ID ASC). A limit <= 0 returns all rows.
func ListMessages(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	out := []domain.Message{} // non-nil so empty sessions serialize as []
	q := db.Where("session_id = ?", sessionID).Order("timestamp ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MessagesStats returns aggregate metadata for messages within a session:
// the total number of rows and the maximum UpdatedAt timestamp among them.
// Used for conditional responses (ETag generation) in the HTTP layer.
// When the session has no messages, count is 0 and maxUpdatedAt is nil.
func MessagesStats(db *gorm.DB, sessionID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.Model(&domain.Message{}).Where("session_id = ?", sessionID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
