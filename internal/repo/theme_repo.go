// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Theme model.
//
// The (session, tag) uniqueness of themes is an application-level invariant
// maintained by the service's accumulation logic; the repository only offers
// the primitive operations it composes.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/domain"
)

// CreateTheme inserts a new theme row for the first sighting of a tag in a
// session. FirstOccurrence and the created/updated stamps share one UTC
// instant.
func CreateTheme(db *gorm.DB, sessionID, tag string, confidence float64) (*domain.Theme, error) {
	now := time.Now().UTC()
	t := &domain.Theme{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Tag:             tag,
		Confidence:      confidence,
		FirstOccurrence: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return t, db.Create(t).Error
}

// ListThemes returns a session's themes ordered by first occurrence
// ascending (and ID for a stable tie-break).
func ListThemes(db *gorm.DB, sessionID string) ([]domain.Theme, error) {
	out := []domain.Theme{}
	err := db.
		Where("session_id = ?", sessionID).
		Order("first_occurrence ASC, id ASC").
		Find(&out).Error
	return out, err
}

// FindThemesByTag returns every theme row carrying the given tag across all
// sessions, most recent sighting first. Global lookup path; not used by the
// per-session accumulation flow.
func FindThemesByTag(db *gorm.DB, tag string) ([]domain.Theme, error) {
	out := []domain.Theme{}
	err := db.
		Where("tag = ?", tag).
		Order("first_occurrence DESC, id DESC").
		Find(&out).Error
	return out, err
}

// UpdateThemeConfidence sets a theme's confidence, bumping updated_at but
// leaving first_occurrence untouched. Returns ErrNotFound when no row was
// affected.
func UpdateThemeConfidence(db *gorm.DB, id string, confidence float64) error {
	res := db.
		Model(&domain.Theme{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"confidence": confidence,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
