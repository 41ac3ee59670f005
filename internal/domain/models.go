// Package domain defines the persistence models for interview sessions,
// messages, analysis responses, and accumulated themes. These types are
// mapped with GORM and form the core data layer of the interview backend.
package domain

import "time"

// Session represents one ongoing interview conversation, identified by an
// opaque UUID. A session owns its messages and themes; deleting a session
// cascades to both.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), immutable once created.
//   - UserID: optional identifier of the interviewee; nil when the session
//     was created implicitly by the first message.
//   - CreatedAt / UpdatedAt: UTC timestamps; UpdatedAt is bumped on each
//     new message in the session.
type Session struct {
	ID        string    `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID    *string   `json:"userId,omitempty" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message represents a single user utterance within a session. Messages are
// immutable after creation and are cascade-deleted with their session.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SessionID: foreign key to the owning session (indexed).
//   - Content: full text of the user message; never empty.
//   - Timestamp: when the message was submitted (ordering key).
//   - CreatedAt / UpdatedAt: timestamps managed at write time.
type Message struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"sessionId" gorm:"type:char(36);not null;index:idx_messages_session,priority:1"`
	Content   string    `json:"content"   gorm:"type:text;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"index:idx_messages_session,priority:2"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Session is the owning conversation. Messages are cascade-deleted
	// when their session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Response holds the analysis produced for exactly one message: the
// follow-up question, the detected theme tag, and a confidence score.
// Responses are immutable and cascade-deleted with their message.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - MessageID: foreign key to the analyzed message (indexed, one-to-one
//     in practice since the service creates one response per message).
//   - FollowUp: generated follow-up question.
//   - ThemeTag: detected theme in "category: value" form.
//   - Confidence: score in [0,1]; stored as given, not clamped.
//   - LLMMetadata: optional opaque JSON blob (model, token usage, latency)
//     kept for audit; nil when nothing was captured.
type Response struct {
	ID          string    `json:"id"                    gorm:"type:char(36);primaryKey"`
	MessageID   string    `json:"messageId"             gorm:"type:char(36);not null;index:idx_responses_message"`
	FollowUp    string    `json:"followUp"              gorm:"type:text;not null"`
	ThemeTag    string    `json:"themeTag"              gorm:"type:varchar(255);not null"`
	Confidence  float64   `json:"confidence"            gorm:"not null"`
	LLMMetadata *string   `json:"llmMetadata,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Message is the analyzed user message. Responses are cascade-deleted
	// when the underlying message is removed.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Response.
func (Response) TableName() string { return "responses" }

// Theme represents a recurring topic detected across a session's messages.
// At most one row exists per (session, tag) pair; this is enforced by the
// accumulation logic in the service layer, not by a uniqueness constraint.
// Confidence carries the highest value observed so far and never decreases.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SessionID: foreign key to the owning session (indexed).
//   - Tag: theme tag string (indexed for the global lookup-by-tag path).
//   - Confidence: highest confidence observed for this tag in the session.
//   - FirstOccurrence: when the tag was first sighted; preserved on updates.
type Theme struct {
	ID              string    `json:"id"              gorm:"type:char(36);primaryKey"`
	SessionID       string    `json:"sessionId"       gorm:"type:char(36);not null;index:idx_themes_session"`
	Tag             string    `json:"tag"             gorm:"type:varchar(255);not null;index:idx_themes_tag"`
	Confidence      float64   `json:"confidence"      gorm:"not null"`
	FirstOccurrence time.Time `json:"firstOccurrence" gorm:"not null"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	// Session is the owning conversation. Themes are cascade-deleted
	// when their session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Theme.
func (Theme) TableName() string { return "themes" }

// Idempotency represents a recorded result of a previously processed message
// submission, keyed by (session_id, key). It enables safe retries of
// POST /api/messages by replaying the originally created message instead of
// re-running the analysis pipeline.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:2"`
	MessageID string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
