package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Project groups tasks under a case-insensitive-unique Code, which plugins
// use to address tasks via project-code in their result envelopes.
type Project struct {
	ID        uuid.UUID       `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	OwnerID   uuid.UUID       `json:"owner_id"`
	Options   json.RawMessage `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
