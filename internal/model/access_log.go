package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Denial reasons recorded in the access journal
const (
	DenialUnauthenticated = "UNAUTHENTICATED"
	DenialNoProfile       = "NO_PROFILE"
	DenialNoRole          = "NO_ROLE"
	DenialNotPermitted    = "NOT_PERMITTED"
	DenialUnmappedPath    = "UNMAPPED_PATH"
	DenialStoreFailure    = "STORE_FAILURE"
)

// AccessLog tracks Who, Where, and Why for every authorization denial
type AccessLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for unauthenticated requests
	User         *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	RoleName     string     `gorm:"type:varchar(50)" json:"role_name"`
	Path         string     `gorm:"type:varchar(512);not null" json:"path"`
	ResourceCode string     `gorm:"type:varchar(100);index" json:"resource_code"`
	Action       string     `gorm:"type:varchar(20)" json:"action"`
	Reason       string     `gorm:"type:varchar(50);not null;index" json:"reason"`
	Detail       string     `gorm:"type:text" json:"detail"` // Human-readable denial reason, for audit/debug only
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (l *AccessLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
