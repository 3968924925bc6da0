package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm/schema"
)

// ContactStatus is the funnel stage of a contact.
type ContactStatus string

const (
	ContactProspect ContactStatus = "prospect"
	ContactLead     ContactStatus = "lead"
	ContactActive   ContactStatus = "active"
	ContactPast     ContactStatus = "past"
)

// TagAutoAdded marks contacts created by the inbound pipeline.
const TagAutoAdded = "Auto-added"

// Contact is a person a tenant talks to. Identifier is unique per tenant.
type Contact struct {
	ID               uint64                      `json:"id" gorm:"primaryKey"`
	UserID           uint64                      `json:"user_id" gorm:"not null;uniqueIndex:idx_contacts_user_identifier,priority:1" validate:"required"`
	Identifier       string                      `json:"identifier" gorm:"type:text;not null;uniqueIndex:idx_contacts_user_identifier,priority:2" validate:"required"`
	Name             string                      `json:"name" gorm:"type:text"`
	Phone            string                      `json:"phone,omitempty" gorm:"type:text"`
	Email            string                      `json:"email,omitempty" gorm:"type:text"`
	AdditionalPhones datatypes.JSONSlice[string] `json:"additional_phones,omitempty" gorm:"type:jsonb"`
	AdditionalEmails datatypes.JSONSlice[string] `json:"additional_emails,omitempty" gorm:"type:jsonb"`
	Platform         Platform                    `json:"platform" gorm:"type:text"`
	Status           ContactStatus               `json:"status" gorm:"type:text;default:prospect;index"`
	Tags             datatypes.JSONSlice[string] `json:"tags,omitempty" gorm:"type:jsonb"`
	Notes            string                      `json:"notes,omitempty" gorm:"type:text"`
	Avatar           string                      `json:"avatar,omitempty" gorm:"type:text"`
	CreatedAt        time.Time                   `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                   `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Contact) TableName(namer schema.Namer) string {
	return namer.TableName("contacts")
}

// NormalizeTags trims tags, drops empties and removes case-insensitive
// duplicates. The first spelling of a tag wins and order is preserved.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// HasTag reports whether the contact carries tag, ignoring case.
func (c *Contact) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// AddTag adds tag unless already present. Returns true when the set changed.
func (c *Contact) AddTag(tag string) bool {
	if strings.TrimSpace(tag) == "" || c.HasTag(tag) {
		return false
	}
	c.Tags = datatypes.NewJSONSlice(NormalizeTags(append([]string(c.Tags), tag)))
	return true
}

// SetTags replaces the tag set with the normalized form of tags.
func (c *Contact) SetTags(tags []string) {
	c.Tags = datatypes.NewJSONSlice(NormalizeTags(tags))
}

var identifierReplacer = strings.NewReplacer("+", "", " ", "", "-", "", "(", "", ")", "")

// NormalizeIdentifier reduces a transport address to the contact identifier:
// JID server and device suffixes are removed along with phone punctuation.
// "+62 (812) 555-01:3@s.whatsapp.net" becomes "6281255501".
func NormalizeIdentifier(raw string) string {
	id := strings.TrimSpace(raw)
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	if colon := strings.IndexByte(id, ':'); colon >= 0 {
		id = id[:colon]
	}
	return identifierReplacer.Replace(id)
}
