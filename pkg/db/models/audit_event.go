package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEvent records a saga action for after-the-fact inspection. Writes
// happen outside the saga transaction; a failed audit write never rolls
// the saga back.
type AuditEvent struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Action     string          `gorm:"column:action;not null"`
	EntityType string          `gorm:"column:entity_type;not null"`
	EntityID   string          `gorm:"column:entity_id;not null;index"`
	Metadata   json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
