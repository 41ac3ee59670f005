// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Response model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/domain"
)

// CreateResponse inserts the analysis result for a message. llmMetadata is
// an optional opaque JSON blob; pass nil when nothing was captured.
func CreateResponse(db *gorm.DB, messageID, followUp, themeTag string, confidence float64, llmMetadata *string) (*domain.Response, error) {
	now := time.Now().UTC()
	r := &domain.Response{
		ID:          uuid.NewString(),
		MessageID:   messageID,
		FollowUp:    followUp,
		ThemeTag:    themeTag,
		Confidence:  confidence,
		LLMMetadata: llmMetadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return r, db.Create(r).Error
}

// GetResponseByMessage fetches the response attached to a message, or
// ErrNotFound when the message has not been analyzed.
func GetResponseByMessage(db *gorm.DB, messageID string) (*domain.Response, error) {
	var r domain.Response
	if err := db.Where("message_id = ?", messageID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResponsesBySession returns every response belonging to a session's
// messages, in session-relative chronological order. This is the only
// cross-entity join in the repository layer: responses carry no session id,
// so the lookup goes through the messages table and inherits its ordering.
func ListResponsesBySession(db *gorm.DB, sessionID string) ([]domain.Response, error) {
	out := []domain.Response{}
	err := db.
		Joins("JOIN messages ON messages.id = responses.message_id").
		Where("messages.session_id = ?", sessionID).
		Order("messages.timestamp ASC, messages.id ASC").
		Find(&out).Error
	return out, err
}
