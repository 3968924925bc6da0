package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// NewUser returns a tenant with fake data. Non-zero override fields win.
func NewUser(override ...*User) *User {
	u := &User{
		ID:               uint64(gofakeit.Number(1, 1_000_000)),
		ExternalID:       "user_" + gofakeit.LetterN(24),
		Email:            gofakeit.Email(),
		Name:             gofakeit.Name(),
		Role:             RoleUser,
		InteractionQuota: DefaultInteractionQuota,
	}
	if len(override) > 0 && override[0] != nil {
		o := override[0]
		if o.ID != 0 {
			u.ID = o.ID
		}
		if o.ExternalID != "" {
			u.ExternalID = o.ExternalID
		}
		if o.Role != "" {
			u.Role = o.Role
		}
		if o.InteractionQuota != 0 {
			u.InteractionQuota = o.InteractionQuota
		}
	}
	return u
}

// NewContact returns an auto-added lead for tenantID.
func NewContact(tenantID uint64, override ...*Contact) *Contact {
	phone := gofakeit.Numerify("628##########")
	c := &Contact{
		UserID:     tenantID,
		Identifier: phone,
		Name:       gofakeit.Name(),
		Phone:      phone,
		Platform:   PlatformWhatsApp,
		Status:     ContactLead,
		Tags:       datatypes.NewJSONSlice([]string{TagAutoAdded}),
	}
	if len(override) > 0 && override[0] != nil {
		o := override[0]
		if o.ID != 0 {
			c.ID = o.ID
		}
		if o.Identifier != "" {
			c.Identifier = o.Identifier
		}
		if o.Status != "" {
			c.Status = o.Status
		}
		if o.Platform != "" {
			c.Platform = o.Platform
		}
	}
	return c
}

// NewBooking returns a confirmed booking for tenantID at eventDate.
func NewBooking(tenantID uint64, eventDate time.Time, override ...*Booking) *Booking {
	b := &Booking{
		ID:          uint64(gofakeit.Number(1, 1_000_000)),
		UserID:      tenantID,
		ClientName:  gofakeit.Name(),
		ClientPhone: gofakeit.Numerify("+4477########"),
		ClientEmail: gofakeit.Email(),
		EventDate:   eventDate,
		EventType:   gofakeit.RandomString([]string{"Wedding", "Gala Dinner", "Yacht Party", "Private Concert"}),
		Location:    gofakeit.City(),
		Budget:      int64(gofakeit.Number(10_000, 500_000)) * 100,
		Currency:    "EUR",
		Status:      BookingConfirmed,
		CreatedAt:   utils.Now().Add(-72 * time.Hour),
	}
	if len(override) > 0 && override[0] != nil {
		o := override[0]
		if o.ID != 0 {
			b.ID = o.ID
		}
		if o.Status != "" {
			b.Status = o.Status
		}
		if o.EventType != "" {
			b.EventType = o.EventType
		}
		if o.Location != "" {
			b.Location = o.Location
		}
		if o.Currency != "" {
			b.Currency = o.Currency
		}
		if o.Budget != 0 {
			b.Budget = o.Budget
		}
		b.ClientPhone = o.ClientPhone
		b.ClientEmail = o.ClientEmail
	}
	return b
}

// NewInboundEvent returns a text event from a random sender.
func NewInboundEvent(override ...*InboundEvent) *InboundEvent {
	e := &InboundEvent{
		Platform:   PlatformWhatsApp,
		ExternalID: gofakeit.UUID(),
		Sender:     gofakeit.Numerify("628##########") + "@s.whatsapp.net",
		SenderName: gofakeit.FirstName(),
		Text:       gofakeit.Sentence(8),
		Timestamp:  utils.Now(),
	}
	if len(override) > 0 && override[0] != nil {
		o := override[0]
		if o.Platform != "" {
			e.Platform = o.Platform
		}
		if o.Sender != "" {
			e.Sender = o.Sender
		}
		e.FromMe = o.FromMe
		e.Text = o.Text
		e.MediaType = o.MediaType
		e.MimeType = o.MimeType
		e.MediaBase64 = o.MediaBase64
	}
	return e
}
