package usecase

import (
	"crypto/rand"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/oklog/ulid/v2"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

const contractHeader = `{{define "header"}}{{.Title}}
Reference: booking #{{.Booking.ID}}
Date: {{.Issued}}

Client: {{.Booking.ClientName}}{{if .Booking.ClientEmail}} <{{.Booking.ClientEmail}}>{{end}}
{{end}}`

var contractTemplates = map[model.ContractType]string{
	model.ContractService: `{{template "header" .}}
1. Services. The provider will plan and host a {{.Booking.EventType}} on {{.EventDate}}{{if .Booking.Location}} at {{.Booking.Location}}{{end}}.
2. Fee. The agreed budget is {{.Budget}} {{.Booking.Currency}}. A deposit of 30% is due on signature and the balance seven days before the event.
3. Cancellation. Cancellations later than thirty days before the event forfeit the deposit.
4. Changes. Changes to scope are agreed in writing and may alter the fee.

Signed for the provider: ____________________
Signed by the client:   ____________________
`,
	model.ContractNDA: `{{template "header" .}}
1. Confidential information. Guest lists, venue details, budgets and all details of the {{.Booking.EventType}} on {{.EventDate}} are confidential.
2. Obligations. Neither party discloses confidential information to third parties without written consent.
3. Term. These obligations survive the event by five years.

Signed for the provider: ____________________
Signed by the client:   ____________________
`,
	model.ContractNonCompete: `{{template "header" .}}
1. Scope. For the {{.Booking.EventType}} on {{.EventDate}} the client will not engage vendors introduced by the provider directly.
2. Duration. This restriction lasts twelve months from the event date.
3. Remedy. A breach entitles the provider to the commission it would have earned.

Signed for the provider: ____________________
Signed by the client:   ____________________
`,
}

var contractTitles = map[model.ContractType]string{
	model.ContractService:    "EVENT SERVICES AGREEMENT",
	model.ContractNDA:        "NON-DISCLOSURE AGREEMENT",
	model.ContractNonCompete: "NON-COMPETE AGREEMENT",
}

var parsedContracts = func() map[model.ContractType]*template.Template {
	out := make(map[model.ContractType]*template.Template, len(contractTemplates))
	for ct, body := range contractTemplates {
		out[ct] = template.Must(template.Must(template.New(string(ct)).Parse(contractHeader)).Parse(body))
	}
	return out
}()

type contractData struct {
	Title     string
	Booking   *model.Booking
	EventDate string
	Issued    string
	Budget    string
}

func renderContract(ct model.ContractType, b *model.Booking, issued time.Time) (string, error) {
	tmpl, ok := parsedContracts[ct]
	if !ok {
		return "", fmt.Errorf("%w: unknown contract type %q", apperrors.ErrValidation, ct)
	}
	var out strings.Builder
	err := tmpl.Execute(&out, contractData{
		Title:     contractTitles[ct],
		Booking:   b,
		EventDate: b.EventDate.UTC().Format("2 January 2006 15:04 MST"),
		Issued:    issued.UTC().Format("2 January 2006"),
		Budget:    formatMinorUnits(b.Budget),
	})
	if err != nil {
		return "", fmt.Errorf("render %s contract: %w", ct, err)
	}
	return out.String(), nil
}

func formatMinorUnits(v int64) string {
	sign := ""
	if v < 0 {
		sign, v = "-", -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func newContractID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}
