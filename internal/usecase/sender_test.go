package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
)

func TestPlatformSender_Routes(t *testing.T) {
	sessions := new(sessionSenderMock)
	meta := new(metaSenderMock)
	sessions.On("SendText", tenantIs(7), uint64(7), "6281234", "hi").Return("3EB0", nil)
	meta.On("SendWhatsApp", tenantIs(7), "6281234", "hi").Return("wamid.9", nil)
	meta.On("SendInstagram", tenantIs(7), "IGSID7", "hi").Return("mid.9", nil)

	s := NewPlatformSender(sessions, meta)
	ctx := testCtx(t, 0)

	id, err := s.Send(ctx, 7, model.PlatformWhatsApp, "6281234", "hi")
	require.NoError(t, err)
	assert.Equal(t, "3EB0", id)

	id, err = s.Send(ctx, 7, model.PlatformWhatsAppCloud, "6281234", "hi")
	require.NoError(t, err)
	assert.Equal(t, "wamid.9", id)

	id, err = s.Send(ctx, 7, model.PlatformInstagram, "IGSID7", "hi")
	require.NoError(t, err)
	assert.Equal(t, "mid.9", id)
}

func TestPlatformSender_Errors(t *testing.T) {
	ctx := testCtx(t, 0)

	_, err := NewPlatformSender(nil, nil).Send(ctx, 7, model.PlatformWhatsApp, "1", "hi")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = NewPlatformSender(nil, nil).Send(ctx, 7, model.PlatformInstagram, "1", "hi")
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)

	meta := new(metaSenderMock)
	_, err = NewPlatformSender(nil, meta).Send(ctx, 7, model.PlatformTelegram, "1", "hi")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	meta.AssertNotCalled(t, "SendWhatsApp", mock.Anything, mock.Anything, mock.Anything)
}
