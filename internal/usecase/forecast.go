package usecase

import (
	"context"
	"sort"
	"time"

	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
)

// ForecastHorizon is how far ahead projected revenue looks.
const ForecastHorizon = 30 * 24 * time.Hour

// Forecast summarises the tenant's bookings in one currency. Money is in
// minor units.
type Forecast struct {
	Currency           string  `json:"currency"`
	TotalBookings      int     `json:"total_bookings"`
	PipelineValue      int64   `json:"pipeline_value"`
	ConfirmedRevenue   int64   `json:"confirmed_revenue"`
	CompletedRevenue   int64   `json:"completed_revenue"`
	AverageBookingSize int64   `json:"average_booking_value"`
	ConversionRate     float64 `json:"conversion_rate"`
	CancellationRate   float64 `json:"cancellation_rate"`
	ProjectedRevenue   int64   `json:"projected_revenue_30d"`
}

// Forecast computes one summary per currency, sorted by currency code.
func (s *BookingService) Forecast(ctx context.Context, now time.Time) ([]Forecast, error) {
	bookings, err := s.bookings.List(ctx, storage.BookingFilter{})
	if err != nil {
		return nil, err
	}
	return computeForecast(bookings, now), nil
}

func computeForecast(bookings []model.Booking, now time.Time) []Forecast {
	type acc struct {
		f                 Forecast
		confirmed         int
		completed         int
		cancelled         int
		sum               int64
		confirmedUpcoming int64
		pendingUpcoming   int64
	}
	byCurrency := map[string]*acc{}
	horizon := now.Add(ForecastHorizon)

	for _, b := range bookings {
		cur := b.Currency
		if cur == "" {
			cur = "EUR"
		}
		a, ok := byCurrency[cur]
		if !ok {
			a = &acc{f: Forecast{Currency: cur}}
			byCurrency[cur] = a
		}
		a.f.TotalBookings++
		a.sum += b.Budget
		upcoming := !b.EventDate.Before(now) && !b.EventDate.After(horizon)

		switch b.Status {
		case model.BookingPending:
			a.f.PipelineValue += b.Budget
			if upcoming {
				a.pendingUpcoming += b.Budget
			}
		case model.BookingConfirmed:
			a.confirmed++
			a.f.PipelineValue += b.Budget
			a.f.ConfirmedRevenue += b.Budget
			if upcoming {
				a.confirmedUpcoming += b.Budget
			}
		case model.BookingCompleted:
			a.completed++
			a.f.CompletedRevenue += b.Budget
		case model.BookingCancelled:
			a.cancelled++
		}
	}

	out := make([]Forecast, 0, len(byCurrency))
	for _, a := range byCurrency {
		total := float64(a.f.TotalBookings)
		a.f.AverageBookingSize = a.sum / int64(a.f.TotalBookings)
		a.f.ConversionRate = float64(a.confirmed+a.completed) / total
		a.f.CancellationRate = float64(a.cancelled) / total
		a.f.ProjectedRevenue = a.confirmedUpcoming + int64(float64(a.pendingUpcoming)*a.f.ConversionRate)
		out = append(out, a.f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
