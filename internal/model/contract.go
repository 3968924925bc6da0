package model

import (
	"fmt"
	"time"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gorm.io/gorm/schema"
)

type ContractType string

const (
	ContractService    ContractType = "service"
	ContractNDA        ContractType = "nda"
	ContractNonCompete ContractType = "non_compete"
)

func (t ContractType) Valid() bool {
	switch t {
	case ContractService, ContractNDA, ContractNonCompete:
		return true
	}
	return false
}

type ContractStatus string

const (
	ContractDraft   ContractStatus = "draft"
	ContractSent    ContractStatus = "sent"
	ContractSigned  ContractStatus = "signed"
	ContractPaid    ContractStatus = "paid"
	ContractExpired ContractStatus = "expired"
)

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractDraft:  {ContractSent, ContractExpired},
	ContractSent:   {ContractSigned, ContractExpired},
	ContractSigned: {ContractPaid, ContractExpired},
}

func (s ContractStatus) Valid() bool {
	switch s {
	case ContractDraft, ContractSent, ContractSigned, ContractPaid, ContractExpired:
		return true
	}
	return false
}

// Contract is a document generated for a booking. IDs are ULIDs.
type Contract struct {
	ID        string         `json:"id" gorm:"primaryKey;type:text"`
	BookingID uint64         `json:"booking_id" gorm:"not null;index" validate:"required"`
	UserID    uint64         `json:"user_id" gorm:"not null;index" validate:"required"`
	Type      ContractType   `json:"type" gorm:"type:text;not null"`
	Language  string         `json:"language" gorm:"type:text;default:en"`
	Content   string         `json:"content" gorm:"type:text"`
	Status    ContractStatus `json:"status" gorm:"type:text;not null;default:draft"`
	SignedBy  string         `json:"signed_by,omitempty" gorm:"type:text"`
	SentAt    *time.Time     `json:"sent_at,omitempty"`
	SignedAt  *time.Time     `json:"signed_at,omitempty"`
	PaidAt    *time.Time     `json:"paid_at,omitempty"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Contract) TableName(namer schema.Namer) string {
	return namer.TableName("contracts")
}

// Transition moves the contract to next and stamps the matching timestamp.
func (c *Contract) Transition(next ContractStatus, at time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, fmt.Errorf("%w: unknown contract status %q", apperrors.ErrValidation, next)
	}
	if c.Status == next {
		return false, nil
	}
	allowed := false
	for _, s := range contractTransitions[c.Status] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, fmt.Errorf("%w: contract %s %s -> %s", apperrors.ErrInvalidTransition, c.ID, c.Status, next)
	}
	c.Status = next
	switch next {
	case ContractSent:
		c.SentAt = &at
	case ContractSigned:
		c.SignedAt = &at
	case ContractPaid:
		c.PaidAt = &at
	}
	return true, nil
}
