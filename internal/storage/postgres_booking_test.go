package storage

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

var bookingCols = []string{"id", "user_id", "client_name", "event_date", "event_type", "location", "status"}

func TestUpdateBookingStatus_Confirms(t *testing.T) {
	repo, mock := newTestRepo(t)
	eventDate := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT * FROM "bookings" WHERE (id = $1 AND user_id = $2)`)+".*FOR UPDATE").
		WithArgs(uint64(3), testTenantID, 1).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(3, testTenantID, "Ada", eventDate, "Wedding", "Lake Como", "pending"))
	mock.ExpectExec(q(`UPDATE "bookings" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	booking, changed, err := repo.UpdateBookingStatus(tenantCtx(), 3, model.BookingConfirmed)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
}

func TestUpdateBookingStatus_SameStatusIsNoop(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(3, testTenantID, "Ada", time.Now(), "Wedding", "Lake Como", "confirmed"))
	mock.ExpectCommit()

	_, changed, err := repo.UpdateBookingStatus(tenantCtx(), 3, model.BookingConfirmed)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateBookingStatus_IllegalTransitionRollsBack(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT * FROM "bookings"`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(3, testTenantID, "Ada", time.Now(), "Wedding", "Lake Como", "completed"))
	mock.ExpectRollback()

	_, _, err := repo.UpdateBookingStatus(tenantCtx(), 3, model.BookingCancelled)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
}

func TestFindConfirmedBookingsBetween(t *testing.T) {
	repo, mock := newTestRepo(t)
	from := time.Date(2026, 6, 1, 11, 30, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	mock.ExpectQuery(q(`SELECT * FROM "bookings" WHERE (status = $1 AND event_date BETWEEN $2 AND $3) ORDER BY event_date ASC`)).
		WithArgs(model.BookingConfirmed, from, to).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(1, 4, "Ada", from.Add(30*time.Minute), "Gala Dinner", "Monaco", "confirmed").
			AddRow(2, 9, "Bo", to, "Wedding", "Capri", "confirmed"))

	bookings, err := repo.FindConfirmedBookingsBetween(tenantCtx(), from, to)
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, uint64(9), bookings[1].UserID)
}

func TestSetBookingCalendarEventID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectExec(q(`UPDATE "bookings" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetBookingCalendarEventID(tenantCtx(), 99, "evt")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSaveBooking_DefaultsToPending(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(q(`INSERT INTO "bookings"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))

	b := &model.Booking{UserID: testTenantID, ClientName: "Ada", EventType: "Wedding", EventDate: time.Now().Add(48 * time.Hour)}
	require.NoError(t, repo.SaveBooking(tenantCtx(), b))
	assert.Equal(t, model.BookingPending, b.Status)
	assert.Equal(t, uint64(21), b.ID)
}
