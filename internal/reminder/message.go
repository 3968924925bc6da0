package reminder

import (
	"fmt"
	"strings"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

// Message is a composed reminder. Subject is used by e-mail only.
type Message struct {
	Subject string
	Body    string
}

// Compose renders the reminder for interval label. Unknown labels get the
// generic wording.
func Compose(b *model.Booking, label string) Message {
	eventType := strings.TrimSpace(b.EventType)
	if eventType == "" {
		eventType = "event"
	}
	location := strings.TrimSpace(b.Location)
	if location == "" {
		location = "the agreed venue"
	}
	when := b.EventDate.UTC().Format("Monday 2 January at 15:04 MST")

	greeting := "Hello"
	if name := strings.TrimSpace(b.ClientName); name != "" {
		greeting = "Dear " + name
	}

	switch label {
	case "48h":
		return Message{
			Subject: fmt.Sprintf("Your %s is in two days", eventType),
			Body: fmt.Sprintf("%s, a gentle reminder that your %s at %s takes place in two days, on %s. "+
				"Reply to this message if anything needs adjusting.", greeting, eventType, location, when),
		}
	case "24h":
		return Message{
			Subject: fmt.Sprintf("Your %s is tomorrow", eventType),
			Body: fmt.Sprintf("%s, your %s at %s is tomorrow, %s. Everything is prepared and we look forward to welcoming you.",
				greeting, eventType, location, when),
		}
	case "1h":
		return Message{
			Subject: fmt.Sprintf("URGENT: your %s starts in one hour", eventType),
			Body: fmt.Sprintf("URGENT: %s, your %s at %s begins in one hour (%s). Our team is ready for your arrival.",
				greeting, eventType, location, when),
		}
	}
	return Message{
		Subject: fmt.Sprintf("Reminder: your %s", eventType),
		Body:    fmt.Sprintf("%s, this is a reminder of your %s at %s on %s.", greeting, eventType, location, when),
	}
}
