package model

import (
	"time"

	"gorm.io/gorm/schema"
)

// Role is a tenant's account role.
type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleAgency Role = "agency"
	RoleClient Role = "client"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleAgency, RoleClient:
		return true
	}
	return false
}

// DefaultInteractionQuota is granted to accounts created by the identity webhook.
const DefaultInteractionQuota = 100

// User is a tenant. Every other row is scoped by its ID.
type User struct {
	ID               uint64    `json:"id" gorm:"primaryKey"`
	ExternalID       string    `json:"external_id" gorm:"type:text;uniqueIndex;not null" validate:"required"`
	Email            string    `json:"email" gorm:"type:text;index" validate:"omitempty,email"`
	Name             string    `json:"name" gorm:"type:text"`
	Role             Role      `json:"role" gorm:"type:text;default:user"`
	InteractionQuota int       `json:"interaction_quota" gorm:"not null;default:100"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (User) TableName(namer schema.Namer) string {
	return namer.TableName("users")
}
