package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SuperuserRole is the reserved role name that bypasses every permission check.
const SuperuserRole = "admin"

// Role represents a named authorization group assigned to users
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"` // System roles cannot be renamed or deleted
	Active      bool         `gorm:"default:true" json:"active"`
	Permissions []Permission `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// IsSuperuser reports whether this role bypasses permission rows entirely
func (r *Role) IsSuperuser() bool {
	return r.Name == SuperuserRole
}

// Resource represents a protectable section of the application.
// The Code is the stable join key between route paths, menu items and
// permission rows; paths and labels may change as long as the code holds.
type Resource struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"` // e.g. "produits", "commandes"
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        string    `gorm:"type:varchar(100)" json:"icon"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"` // Menu rendering order
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *Resource) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Permission grants a role a CRUD capability set on one resource.
// At most one row exists per (role, resource) pair; a missing row means
// all four flags are false.
type Permission struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RoleID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_resource" json:"role_id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_role_resource" json:"resource_id"`
	Resource   *Resource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
	CanCreate  bool      `gorm:"default:false" json:"can_create"`
	CanRead    bool      `gorm:"default:false" json:"can_read"`
	CanUpdate  bool      `gorm:"default:false" json:"can_update"`
	CanDelete  bool      `gorm:"default:false" json:"can_delete"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
