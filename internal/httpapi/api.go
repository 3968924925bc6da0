package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/credentials"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/session"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/internal/validator"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

type sendMessageRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required,max=4096"`
}

type createBookingRequest struct {
	ContactID   *uint64   `json:"contact_id,omitempty"`
	ClientName  string    `json:"client_name"`
	ClientPhone string    `json:"client_phone,omitempty"`
	ClientEmail string    `json:"client_email,omitempty"`
	EventDate   time.Time `json:"event_date"`
	EventType   string    `json:"event_type"`
	Location    string    `json:"location,omitempty"`
	Budget      int64     `json:"budget"`
	Currency    string    `json:"currency,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
}

type contractRequest struct {
	Type     model.ContractType `json:"type" validate:"required,contract_type"`
	Language string             `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
}

type transcribeRequest struct {
	AudioBase64 string `json:"audio_base64" validate:"required"`
	MimeType    string `json:"mime_type" validate:"required"`
}

// decode reads and validates a JSON body into dst.
func decode(r *http.Request, dst interface{}) error {
	if err := utils.DecodeJSONBody(r, dst); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}
	return validator.Validate(dst)
}

func idParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid id", apperrors.ErrBadRequest)
	}
	return id, nil
}

func actor(r *http.Request) string {
	return fmt.Sprintf("api:tenant:%d", tenant.MustFromContext(r.Context()))
}

func (h *handler) connectSession(w http.ResponseWriter, r *http.Request) {
	res := h.Sessions.Connect(r.Context(), tenant.MustFromContext(r.Context()))
	if !res.Success {
		utils.WriteJSONResponse(w, http.StatusBadGateway, utils.APIResponse{Success: false, Data: res, Error: res.Error})
		return
	}
	utils.WriteSuccess(w, http.StatusOK, res)
}

func (h *handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w, http.StatusOK, h.Sessions.Info(tenant.MustFromContext(r.Context())))
}

func (h *handler) disconnectSession(w http.ResponseWriter, r *http.Request) {
	if !h.Sessions.Disconnect(r.Context(), tenant.MustFromContext(r.Context())) {
		writeError(w, r, fmt.Errorf("%w: no session", apperrors.ErrNotFound))
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"status": string(session.StatusDisconnected)})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	to := model.NormalizeIdentifier(req.To)
	if to == "" {
		writeError(w, r, fmt.Errorf("%w: invalid recipient", apperrors.ErrValidation))
		return
	}
	id, err := h.Sessions.SendText(r.Context(), tenant.MustFromContext(r.Context()), to, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"message_id": id})
}

func (h *handler) listSettings(w http.ResponseWriter, r *http.Request) {
	category := model.SettingCategory(chi.URLParam(r, "category"))
	if !category.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown category %q", apperrors.ErrValidation, category))
		return
	}
	values, err := h.Credentials.GetAllByCategory(r.Context(), category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, values)
}

func (h *handler) putSetting(w http.ResponseWriter, r *http.Request) {
	var in credentials.SetInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Actor = actor(r)
	if err := h.Credentials.Set(r.Context(), in); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"key": in.Key})
}

func (h *handler) deleteSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	deleted, err := h.Credentials.Delete(r.Context(), key, actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, fmt.Errorf("%w: setting %s", apperrors.ErrNotFound, key))
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"key": key})
}

func (h *handler) googleAuthURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.Calendar.AuthURL(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"url": url})
}

func (h *handler) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.BookingFilter
	if s := q.Get("status"); s != "" {
		filter.Status = model.BookingStatus(s)
		if !filter.Status.Valid() {
			writeError(w, r, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, s))
			return
		}
	}
	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(name); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s must be RFC3339", apperrors.ErrBadRequest, name))
				return
			}
			*dst = t
		}
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, r, fmt.Errorf("%w: invalid %s", apperrors.ErrBadRequest, name))
				return
			}
			*dst = n
		}
	}

	bookings, err := h.Bookings.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, bookings)
}

func (h *handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b := &model.Booking{
		ContactID:   req.ContactID,
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		ClientEmail: req.ClientEmail,
		EventDate:   req.EventDate,
		EventType:   req.EventType,
		Location:    req.Location,
		Budget:      req.Budget,
		Currency:    req.Currency,
		Notes:       req.Notes,
	}
	if err := h.Bookings.Create(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, b)
}

func (h *handler) getBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, b)
}

func (h *handler) transitionBooking(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next := model.BookingStatus(req.Status)
	if !next.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, req.Status))
		return
	}
	b, err := h.Bookings.Transition(r.Context(), id, next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, b)
}

func (h *handler) generateContract(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req contractRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Bookings.GenerateContract(r.Context(), id, req.Type, req.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusCreated, c)
}

func (h *handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Bookings.GetContract(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, c)
}

func (h *handler) transitionContract(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.Bookings.TransitionContract(r.Context(), chi.URLParam(r, "id"), model.ContractStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, c)
}

func (h *handler) forecast(w http.ResponseWriter, r *http.Request) {
	out, err := h.Bookings.Forecast(r.Context(), utils.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, out)
}

func (h *handler) transcribe(w http.ResponseWriter, r *http.Request) {
	var req transcribeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text, err := h.Transcriber.TranscribeBase64Audio(r.Context(), req.AudioBase64, req.MimeType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteSuccess(w, http.StatusOK, map[string]string{"text": text})
}
